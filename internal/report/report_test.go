package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/metrics"
)

func envelope(t *testing.T, obj map[string]interface{}) codec.Envelope {
	t.Helper()
	env, err := codec.NewEnvelope(obj)
	require.NoError(t, err)
	return env
}

func meta(name, namespace string) map[string]interface{} {
	return map[string]interface{}{"name": name, "namespace": namespace}
}

type fakeQuerier struct {
	results map[string][]metrics.Sample
	err     error
	queries []string
}

func (f *fakeQuerier) Query(_ context.Context, expr string, _ *metrics.TimeRange) ([]metrics.Sample, error) {
	f.queries = append(f.queries, expr)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[expr], nil
}

func launcher(ns, pod string, v float64) metrics.Sample {
	return metrics.Sample{Labels: map[string]string{"namespace": ns, "pod": pod}, Value: v}
}

func TestVMRows(t *testing.T) {
	vms := []codec.Envelope{
		envelope(t, map[string]interface{}{
			"metadata": meta("fedora-vm", "dev"),
			"spec":     map[string]interface{}{"runStrategy": "Always"},
			"status":   map[string]interface{}{"printableStatus": "Running", "ready": true},
		}),
		envelope(t, map[string]interface{}{"metadata": meta("new-vm", "dev")}),
	}

	rows := VMRows(vms)
	require.Len(t, rows, 2)
	assert.Equal(t, VMRow{Name: "fedora-vm", Namespace: "dev", Status: "Running", Ready: true, RunStrategy: "Always"}, rows[0])
	assert.Equal(t, "Unknown", rows[1].Status)
	assert.Equal(t, "Unknown", rows[1].RunStrategy)
	assert.False(t, rows[1].Ready)
}

func TestEnrichVMs(t *testing.T) {
	q := &fakeQuerier{results: map[string][]metrics.Sample{
		LauncherCPUQuery: {
			launcher("dev", "virt-launcher-fedora-vm-x7k2p", 0.5),
			launcher("dev", "virt-launcher-fedora-vm-extra-abcde", 9),
			launcher("prod", "virt-launcher-db", 1.5),
		},
		LauncherMemoryQuery: {
			launcher("dev", "virt-launcher-fedora-vm-x7k2p", 2048),
		},
	}}
	rows := []VMRow{
		{Name: "fedora-vm", Namespace: "dev"},
		{Name: "db", Namespace: "prod"},
		{Name: "db", Namespace: "dev"},
	}

	enriched, err := EnrichVMs(context.Background(), q, rows)
	require.NoError(t, err)
	assert.Equal(t, 0.5, enriched[0].CPUCores)
	assert.Equal(t, 2048.0, enriched[0].MemoryBytes)
	assert.Equal(t, 1.5, enriched[1].CPUCores)
	assert.Zero(t, enriched[1].MemoryBytes)
	assert.Zero(t, enriched[2].CPUCores, "namespace must match")
	assert.Zero(t, rows[0].CPUCores, "input rows are not modified")
	assert.Equal(t, []string{LauncherCPUQuery, LauncherMemoryQuery}, q.queries)
}

func TestEnrichVMsError(t *testing.T) {
	boom := errors.New("boom")
	_, err := EnrichVMs(context.Background(), &fakeQuerier{err: boom}, []VMRow{{Name: "a"}})
	assert.ErrorIs(t, err, boom)
}

func TestBuildPlanReport(t *testing.T) {
	tests := []struct {
		name   string
		plan   map[string]interface{}
		expect PlanReport
	}{
		{
			name: "succeeded from history",
			plan: map[string]interface{}{
				"metadata": meta("plan-a", "openshift-mtv"),
				"spec": map[string]interface{}{
					"targetNamespace": "dev",
					"vms":             []interface{}{map[string]interface{}{"name": "fedora-vm"}, map[string]interface{}{"id": "vm-42"}},
				},
				"status": map[string]interface{}{
					"conditions": []interface{}{map[string]interface{}{"type": "Failed", "status": "True"}},
					"migration": map[string]interface{}{
						"started":   "2025-03-01T10:00:00Z",
						"completed": "2025-03-01T10:42:30Z",
						"history": []interface{}{
							map[string]interface{}{"conditions": []interface{}{map[string]interface{}{"type": "Failed", "status": "True"}}},
							map[string]interface{}{"conditions": []interface{}{map[string]interface{}{"type": "Succeeded", "status": "True"}}},
						},
					},
				},
			},
			expect: PlanReport{
				Name: "plan-a", Namespace: "openshift-mtv", Status: "Succeeded",
				Duration: "42m30s", TargetNamespace: "dev", VMs: []string{"fedora-vm", "vm-42"},
			},
		},
		{
			name: "failed from conditions with first VM error",
			plan: map[string]interface{}{
				"metadata": meta("plan-b", "openshift-mtv"),
				"status": map[string]interface{}{
					"conditions": []interface{}{map[string]interface{}{"type": "Failed", "status": "True"}},
					"migration": map[string]interface{}{
						"vms": []interface{}{
							map[string]interface{}{"name": "ok-vm"},
							map[string]interface{}{"name": "bad-vm", "error": map[string]interface{}{"reasons": []interface{}{"disk transfer failed", "later"}}},
						},
					},
				},
			},
			expect: PlanReport{
				Name: "plan-b", Namespace: "openshift-mtv", Status: "Failed",
				VMs: []string{}, Error: "disk transfer failed",
			},
		},
		{
			name: "no status",
			plan: map[string]interface{}{"metadata": meta("plan-c", "openshift-mtv")},
			expect: PlanReport{
				Name: "plan-c", Namespace: "openshift-mtv", Status: StatusUnknown, VMs: []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPlanReport(envelope(t, tt.plan))
			got.Started, got.Completed = nil, nil
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestDuplicateVMs(t *testing.T) {
	plan := func(name string, vms ...string) codec.Envelope {
		list := make([]interface{}, 0, len(vms))
		for _, vm := range vms {
			list = append(list, map[string]interface{}{"name": vm})
		}
		return envelope(t, map[string]interface{}{
			"metadata": meta(name, "openshift-mtv"),
			"spec":     map[string]interface{}{"vms": list},
		})
	}

	assert.Empty(t, DuplicateVMs(nil))
	assert.Empty(t, DuplicateVMs([]codec.Envelope{plan("a", "vm1", "vm1"), plan("b", "vm2")}))

	dups := DuplicateVMs([]codec.Envelope{
		plan("wave-1", "web", "db"),
		plan("wave-2", "db", "cache"),
		plan("wave-3", "web"),
	})
	assert.Equal(t, []Duplicate{
		{VM: "db", Plans: []string{"wave-1", "wave-2"}},
		{VM: "web", Plans: []string{"wave-1", "wave-3"}},
	}, dups)
}

func TestFilterNamespaces(t *testing.T) {
	namespaces := []codec.Envelope{
		envelope(t, map[string]interface{}{"metadata": map[string]interface{}{
			"name":        "dev",
			"labels":      map[string]interface{}{"team": "cae"},
			"annotations": map[string]interface{}{"openshift.io/requester": "alice"},
		}}),
		envelope(t, map[string]interface{}{"metadata": map[string]interface{}{
			"name":   "prod",
			"labels": map[string]interface{}{"team": "ops"},
		}}),
		envelope(t, map[string]interface{}{"metadata": map[string]interface{}{"name": "bare"}}),
	}
	cae := "cae"

	assert.Len(t, FilterByLabel(namespaces, "team", nil), 2)

	rows := FilterByLabel(namespaces, "team", &cae)
	require.Len(t, rows, 1)
	assert.Equal(t, "dev", rows[0].Name)

	rows = FilterByAnnotation(namespaces, "openshift.io/requester", nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Values["openshift.io/requester"])

	assert.NotNil(t, FilterByAnnotation(namespaces, "missing", nil))
}
