package report

import (
	"sort"
	"time"

	"github.com/kloia/kubevirt-api-client/internal/codec"
)

// StatusUnknown is reported when no Succeeded or Failed condition exists
const StatusUnknown = "Unknown"

// PlanReport summarizes one migration plan
type PlanReport struct {
	Name            string     `json:"planName"`
	Namespace       string     `json:"namespace"`
	Status          string     `json:"status"`
	Started         *time.Time `json:"startTime,omitempty"`
	Completed       *time.Time `json:"endTime,omitempty"`
	Duration        string     `json:"duration,omitempty"`
	TargetNamespace string     `json:"targetNamespace"`
	VMs             []string   `json:"virtualMachines"`
	Error           string     `json:"errorMessage,omitempty"`
}

// BuildPlanReport extracts the report of a plan envelope
func BuildPlanReport(plan codec.Envelope) PlanReport {
	r := PlanReport{
		Name:      plan.Name(),
		Namespace: plan.Namespace(),
		Status:    StatusUnknown,
		VMs:       planVMs(plan),
	}
	r.TargetNamespace, _ = plan.NestedString("spec", "targetNamespace")

	if cond, ok := codec.ResolveMigrationStatus(plan); ok {
		r.Status = cond.Type
	}
	r.Started = timestamp(plan, "status", "migration", "started")
	r.Completed = timestamp(plan, "status", "migration", "completed")
	if r.Started != nil && r.Completed != nil {
		r.Duration = r.Completed.Sub(*r.Started).String()
	}
	if r.Status == codec.ConditionFailed {
		r.Error = firstVMError(plan)
	}
	return r
}

func timestamp(e codec.Envelope, fields ...string) *time.Time {
	s, ok := e.NestedString(fields...)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// planVMs returns the VMs of spec.vms by name, falling back to id
func planVMs(plan codec.Envelope) []string {
	raw, _ := plan.NestedSlice("spec", "vms")
	vms := make([]string, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if name, _ := m["name"].(string); name != "" {
			vms = append(vms, name)
		} else if id, _ := m["id"].(string); id != "" {
			vms = append(vms, id)
		}
	}
	return vms
}

// firstVMError returns the first reason of the first VM migration that reports an error
func firstVMError(plan codec.Envelope) string {
	raw, _ := plan.NestedSlice("status", "migration", "vms")
	for _, item := range raw {
		vm, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		verr, ok := vm["error"].(map[string]interface{})
		if !ok {
			continue
		}
		if reasons, ok := verr["reasons"].([]interface{}); ok && len(reasons) > 0 {
			if reason, ok := reasons[0].(string); ok {
				return reason
			}
		}
		return "Unknown error"
	}
	return ""
}

// Duplicate is a VM that is listed by more than one plan
type Duplicate struct {
	VM    string   `json:"vm"`
	Plans []string `json:"plans"`
}

// DuplicateVMs reports VMs that appear in more than one plan, sorted by VM name
func DuplicateVMs(plans []codec.Envelope) []Duplicate {
	owners := make(map[string][]string)
	for _, plan := range plans {
		for _, vm := range planVMs(plan) {
			if !contains(owners[vm], plan.Name()) {
				owners[vm] = append(owners[vm], plan.Name())
			}
		}
	}

	var dups []Duplicate
	for vm, planNames := range owners {
		if len(planNames) > 1 {
			dups = append(dups, Duplicate{VM: vm, Plans: planNames})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].VM < dups[j].VM })
	return dups
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
