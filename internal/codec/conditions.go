package codec

// ConditionStatus is the ternary status of a condition
type ConditionStatus string

const (
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
	ConditionUnknown ConditionStatus = "Unknown"
)

// Common condition types
const (
	ConditionSucceeded = "Succeeded"
	ConditionFailed    = "Failed"
	ConditionReady     = "Ready"
)

// Condition is one status entry of a resource
type Condition struct {
	Type               string          `json:"type"`
	Status             ConditionStatus `json:"status"`
	Reason             string          `json:"reason,omitempty"`
	Message            string          `json:"message,omitempty"`
	LastTransitionTime string          `json:"lastTransitionTime,omitempty"`
}

// IsTrue reports whether the condition status is True
func (c Condition) IsTrue() bool {
	return c.Status == ConditionTrue
}

// ParseConditions converts a raw conditions list. Entries that are not objects
// or have no type are skipped; an unrecognised status becomes Unknown.
func ParseConditions(raw []interface{}) []Condition {
	out := make([]Condition, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := Condition{
			Type:               stringField(m, "type"),
			Reason:             stringField(m, "reason"),
			Message:            stringField(m, "message"),
			LastTransitionTime: stringField(m, "lastTransitionTime"),
		}
		if c.Type == "" {
			continue
		}
		switch s := ConditionStatus(stringField(m, "status")); s {
		case ConditionTrue, ConditionFalse:
			c.Status = s
		default:
			c.Status = ConditionUnknown
		}
		out = append(out, c)
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// Conditions returns the conditions at fields, status.conditions when none are given
func (e Envelope) Conditions(fields ...string) []Condition {
	if len(fields) == 0 {
		fields = []string{"status", "conditions"}
	}
	raw, ok := e.NestedSlice(fields...)
	if !ok {
		return nil
	}
	return ParseConditions(raw)
}

// LatestCondition returns the last condition whose type is one of types.
// Earlier entries of the same type are stale.
func LatestCondition(conds []Condition, types ...string) (Condition, bool) {
	for i := len(conds) - 1; i >= 0; i-- {
		for _, t := range types {
			if conds[i].Type == t {
				return conds[i], true
			}
		}
	}
	return Condition{}, false
}

// ResolveMigrationStatus picks the current terminal condition of a migration plan.
// The last record of status.migration.history wins; within it, the last
// Succeeded or Failed entry. Without history the top-level status.conditions
// are searched the same way.
func ResolveMigrationStatus(e Envelope) (Condition, bool) {
	if history, ok := e.NestedSlice("status", "migration", "history"); ok && len(history) > 0 {
		if last, ok := history[len(history)-1].(map[string]interface{}); ok {
			if raw, ok := last["conditions"].([]interface{}); ok {
				if c, found := LatestCondition(ParseConditions(raw), ConditionSucceeded, ConditionFailed); found {
					return c, true
				}
			}
		}
	}
	return LatestCondition(e.Conditions(), ConditionSucceeded, ConditionFailed)
}
