package access

import "time"

// PolicyStatus is the lifecycle state of an AccessPolicy.
type PolicyStatus string

const (
	// StatusDraft is the initial state. Rules are editable, nothing is evaluated.
	StatusDraft PolicyStatus = "DRAFT"
	// StatusSubmitted means the policy is awaiting approver review.
	StatusSubmitted PolicyStatus = "SUBMITTED"
	// StatusApproved means the policy is usable for assignments and evaluation.
	StatusApproved PolicyStatus = "APPROVED"
	// StatusRejected is terminal. A rejected policy must be cloned into a
	// fresh draft to retry; there is no transition back to SUBMITTED.
	StatusRejected PolicyStatus = "REJECTED"
)

// Effect is the outcome attached to a rule.
type Effect string

const (
	// EffectAllow permits the action when the rule matches.
	EffectAllow Effect = "ALLOW"
	// EffectDeny blocks the action when the rule matches.
	EffectDeny Effect = "DENY"
)

// Valid reports whether the effect is ALLOW or DENY.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Well-known actions of the closed action vocabulary. Rules may also carry
// custom named actions (e.g. "assign", "export"); matching is exact-string.
const (
	ActionList   = "list"
	ActionShow   = "show"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// Policy is an organization-scoped, named rule bundle.
type Policy struct {
	// ID is the unique identifier for this policy.
	ID string
	// OrganizationID scopes the policy; rules and assignments inherit it.
	OrganizationID string
	// Name is unique within the organization.
	Name string
	// Description provides additional context about the policy.
	Description string
	// DefaultLevel optionally attaches the policy to everyone at a given
	// hierarchy level. Empty means assignment-only.
	DefaultLevel PermissionLevel
	// Status is the lifecycle state. Only APPROVED policies are evaluated.
	Status PolicyStatus
	// Priority determines evaluation order; higher is evaluated first.
	Priority int
	// IsActive gates the whole policy independent of status.
	IsActive bool
	// Version increments on each approval.
	Version int
	// RejectionReason records why an approver rejected the policy.
	RejectionReason string
	// CreatedBy is the user ID of the author.
	CreatedBy string
	// ApprovedBy is the user ID of the approver (set on approval).
	ApprovedBy string

	SubmittedAt *time.Time
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Rules in stored order. Order is significant: within a policy the
	// first matching rule wins.
	Rules []Rule
}

// Effective reports whether the policy's rules may be consulted by the
// resolver: approved and active.
func (p *Policy) Effective() bool {
	return p.Status == StatusApproved && p.IsActive
}

// FindRule returns the index of the rule matching (resource, action), or -1.
// Used by upsert to replace an existing statement in place.
func (p *Policy) FindRule(resource, action string) int {
	for i := range p.Rules {
		if p.Rules[i].Resource == resource && p.Rules[i].Action == action {
			return i
		}
	}
	return -1
}

// Copy returns a deep copy detached from the original's rule slice and
// per-rule maps. Services snapshot a policy before mutating it so a
// failed follow-up write can restore the prior state.
func (p *Policy) Copy() *Policy {
	cp := *p
	cp.Rules = make([]Rule, len(p.Rules))
	for i := range p.Rules {
		cp.Rules[i] = p.Rules[i].copy()
	}
	return &cp
}

// Rule is a single permission statement owned by one policy.
type Rule struct {
	// ID is the unique identifier for this rule.
	ID string
	// PolicyID is the owning policy.
	PolicyID string
	// Resource identifies the protected resource type (e.g. "clients").
	Resource string
	// Action is the operation the rule speaks to (list, show, create, ...).
	Action string
	// Effect is ALLOW or DENY.
	Effect Effect
	// ConditionType selects the predicate consulted during matching.
	ConditionType ConditionType
	// ConditionParams are interpreted by ConditionType. Malformed params
	// make the rule non-matching, never an evaluation error.
	ConditionParams map[string]string
	// AllowedFields, when non-empty, is the inclusion filter for response
	// fields. DeniedFields is applied after it.
	AllowedFields []string
	// DeniedFields are always suppressed.
	DeniedFields []string
	// IsActive gates the rule independent of the policy.
	IsActive bool
	// Position is the stored order within the policy.
	Position int

	CreatedAt time.Time
}

// copy returns the rule with its own params map and field slices.
func (r Rule) copy() Rule {
	if r.ConditionParams != nil {
		params := make(map[string]string, len(r.ConditionParams))
		for k, v := range r.ConditionParams {
			params[k] = v
		}
		r.ConditionParams = params
	}
	r.AllowedFields = append([]string(nil), r.AllowedFields...)
	r.DeniedFields = append([]string(nil), r.DeniedFields...)
	return r
}

// Assignment grants one user the rules of one policy. Unique per
// (policy, user) within an organization.
type Assignment struct {
	PolicyID       string
	UserID         string
	OrganizationID string
	// Reason is the mandatory audit justification for the grant.
	Reason string
	// BusinessCase is optional supporting context.
	BusinessCase string
	// AssignedBy is the user ID of the granter.
	AssignedBy string
	AssignedAt time.Time
	// ExpiresAt, when set, bounds the grant. Expired assignments remain in
	// storage for audit but never contribute rules.
	ExpiresAt *time.Time
	// NotifiedUsers lists user IDs informed of the grant.
	NotifiedUsers []string
}

// Effective reports whether the assignment is unexpired at now.
func (a *Assignment) Effective(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// EffectiveAssignment pairs an unexpired assignment with its approved,
// active policy. This is the unit the resolver iterates over.
type EffectiveAssignment struct {
	Assignment Assignment
	Policy     Policy
}

// PolicyVersion is an immutable snapshot taken when a policy is approved.
type PolicyVersion struct {
	PolicyID       string
	OrganizationID string
	Version        int
	Name           string
	Description    string
	DefaultLevel   PermissionLevel
	Priority       int
	// RulesSnapshot is the rule set at approval time.
	RulesSnapshot []Rule
	ChangeSummary string
	ChangedBy     string
	CreatedAt     time.Time
}

// User is the minimal identity shape the engine needs: org scoping,
// department for SAME_DEPARTMENT conditions, team lead for notification
// fan-out, and the hierarchy level for default decisions.
type User struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	Department     string
	Level          PermissionLevel
	// TeamLeadID is the user's team lead or manager, if any.
	TeamLeadID string
	IsActive   bool
}

// Actor is the authenticated identity on whose behalf a decision or
// management operation is requested. The session layer resolves it.
type Actor struct {
	ID             string
	OrganizationID string
	Name           string
	Level          PermissionLevel
}
