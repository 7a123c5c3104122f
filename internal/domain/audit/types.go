// Package audit contains domain types for the append-only audit trail of
// policy and assignment mutations.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Action constants categorize audit entries by what was mutated.
const (
	ActionPolicyCreated   = "policy.create"
	ActionPolicySubmitted = "policy.submit"
	ActionPolicyApproved  = "policy.approve"
	ActionPolicyRejected  = "policy.reject"
	ActionPolicyCloned    = "policy.clone"
	ActionPolicyDeleted   = "policy.delete"
	ActionRuleUpserted    = "rule.upsert"
	ActionRuleDeleted     = "rule.delete"
	ActionAssignCreated   = "assignment.create"
	ActionAssignRevoked   = "assignment.revoke"
)

// Entry is one immutable audit record. The engine exposes no update or
// delete operation on entries; recorders only append.
type Entry struct {
	// ID is assigned by the recorder.
	ID string `json:"id"`
	// OccurredAt is when the mutation happened (UTC).
	OccurredAt time.Time `json:"occurred_at"`

	// Acting identity and organization. Always captured.
	OrganizationID string `json:"organization_id"`
	ActorID        string `json:"actor_id"`
	ActorName      string `json:"actor_name,omitempty"`
	ActorLevel     string `json:"actor_level,omitempty"`

	// Action is one of the Action* constants.
	Action string `json:"action"`
	// Resource names the mutated entity kind (access_policy, policy_assignment).
	Resource string `json:"resource"`
	// ResourceID and ResourceName identify the mutated entity.
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`

	// PreviousState and NewState capture the entity before and after.
	PreviousState map[string]any `json:"previous_state,omitempty"`
	NewState      map[string]any `json:"new_state,omitempty"`

	// Summary is the human-readable account of the change. For
	// assignments it includes the justification text verbatim.
	Summary string `json:"summary"`
}

// ChangeSummary produces a short human-readable list of changed fields,
// e.g. "priority, status" or "name, priority, status and 2 more".
func ChangeSummary(previous, next map[string]any) string {
	var changed []string
	for key, nv := range next {
		pv, ok := previous[key]
		if !ok || !jsonEqual(pv, nv) {
			changed = append(changed, key)
		}
	}
	for key := range previous {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	if len(changed) == 0 {
		return "no changes detected"
	}
	sort.Strings(changed)
	if len(changed) <= 3 {
		return strings.Join(changed, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(changed[:3], ", "), len(changed)-3)
}

// jsonEqual compares values through their JSON encoding, mirroring how
// states are persisted.
func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
