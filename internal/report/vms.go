package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/metrics"
)

// PromQL expressions for virt-launcher usage, grouped by pod and namespace
const (
	LauncherCPUQuery    = `sum(rate(container_cpu_usage_seconds_total{container="virt-launcher"}[2m])) by (pod, namespace)`
	LauncherMemoryQuery = `sum(container_memory_working_set_bytes{container="virt-launcher"}) by (pod, namespace)`
)

const launcherPrefix = "virt-launcher-"

// Querier runs metric queries. *metrics.QueryClient implements it.
type Querier interface {
	Query(ctx context.Context, expr string, tr *metrics.TimeRange) ([]metrics.Sample, error)
}

// VMRow is the reporting view of a virtual machine
type VMRow struct {
	Name        string  `json:"name"`
	Namespace   string  `json:"namespace"`
	Status      string  `json:"status"`
	Ready       bool    `json:"ready"`
	RunStrategy string  `json:"runStrategy"`
	CPUCores    float64 `json:"cpu"`
	MemoryBytes float64 `json:"memory"`
}

// VMRows builds rows from VM envelopes
func VMRows(vms []codec.Envelope) []VMRow {
	rows := make([]VMRow, 0, len(vms))
	for _, vm := range vms {
		status, ok := vm.NestedString("status", "printableStatus")
		if !ok {
			status = "Unknown"
		}
		ready, _ := vm.NestedBool("status", "ready")
		strategy, ok := vm.NestedString("spec", "runStrategy")
		if !ok {
			strategy = "Unknown"
		}
		rows = append(rows, VMRow{
			Name:        vm.Name(),
			Namespace:   vm.Namespace(),
			Status:      status,
			Ready:       ready,
			RunStrategy: strategy,
		})
	}
	return rows
}

// EnrichVMs fills CPU and memory usage from the virt-launcher pod of each VM.
// Rows without samples keep zero usage. The input slice is not modified.
func EnrichVMs(ctx context.Context, q Querier, rows []VMRow) ([]VMRow, error) {
	cpu, err := q.Query(ctx, LauncherCPUQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query CPU usage: %w", err)
	}
	mem, err := q.Query(ctx, LauncherMemoryQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory usage: %w", err)
	}

	out := make([]VMRow, len(rows))
	copy(out, rows)
	for i := range out {
		if s, ok := launcherSample(cpu, out[i].Namespace, out[i].Name); ok {
			out[i].CPUCores = s.Value
		}
		if s, ok := launcherSample(mem, out[i].Namespace, out[i].Name); ok {
			out[i].MemoryBytes = s.Value
		}
	}
	return out, nil
}

// launcherSample finds the sample of the launcher pod for a VM. The pod is
// either named virt-launcher-{vm} or carries one generated suffix after it.
func launcherSample(samples []metrics.Sample, namespace, vm string) (metrics.Sample, bool) {
	exact := launcherPrefix + vm
	var found *metrics.Sample
	for i := range samples {
		s := samples[i]
		if s.Labels["namespace"] != namespace {
			continue
		}
		pod := s.Labels["pod"]
		if pod == exact {
			return s, true
		}
		if suffix, ok := strings.CutPrefix(pod, exact+"-"); ok && suffix != "" && !strings.Contains(suffix, "-") && found == nil {
			found = &samples[i]
		}
	}
	if found != nil {
		return *found, true
	}
	return metrics.Sample{}, false
}
