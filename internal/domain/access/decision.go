package access

// FieldMask is the computed field-visibility result attached to an ALLOW
// decision. An empty mask exposes all fields.
type FieldMask struct {
	// AllowedFields, when non-empty, is an inclusion filter applied first.
	AllowedFields []string
	// DeniedFields are removed after the inclusion filter.
	DeniedFields []string
}

// IsZero reports whether the mask imposes no restriction.
func (m FieldMask) IsZero() bool {
	return len(m.AllowedFields) == 0 && len(m.DeniedFields) == 0
}

// Visible reports whether the named field survives the mask.
func (m FieldMask) Visible(field string) bool {
	if len(m.AllowedFields) > 0 {
		found := false
		for _, f := range m.AllowedFields {
			if f == field {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range m.DeniedFields {
		if f == field {
			return false
		}
	}
	return true
}

// Apply filters a record down to the visible fields. The input is not
// modified; the boundary calls this before serializing a response.
func (m FieldMask) Apply(record map[string]any) map[string]any {
	if m.IsZero() {
		out := make(map[string]any, len(record))
		for k, v := range record {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		if m.Visible(k) {
			out[k] = v
		}
	}
	return out
}

// RuleRef identifies the rule that produced a decision.
type RuleRef struct {
	RuleID        string
	PolicyID      string
	PolicyName    string
	ConditionType ConditionType
}

// Decision is the outcome of resolving (actor, resource, action, context).
// A negative decision is a normal value, never an error.
type Decision struct {
	// Allowed is true when the action is permitted.
	Allowed bool
	// Reason explains the decision in human terms.
	Reason string
	// MatchedRule references the first matching rule, nil for default
	// (role-hierarchy) decisions.
	MatchedRule *RuleRef
	// FieldMask is the visibility mask from the matching ALLOW rule.
	// Default decisions carry an empty mask (all fields exposed).
	FieldMask FieldMask
}
