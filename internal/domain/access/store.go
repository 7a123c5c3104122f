package access

import (
	"context"
	"time"
)

// PolicyStore persists policies, their rules, and approval snapshots.
// Interface owned by the domain; adapters implement it over memory or a
// relational store. All queries are organization-scoped.
type PolicyStore interface {
	// CreatePolicy persists a new policy with its rules. Returns
	// ErrConflict when the (organization, name) pair already exists.
	CreatePolicy(ctx context.Context, p *Policy) error
	// GetPolicy returns a policy with its rules in stored order.
	// Returns ErrNotFound when absent or out-of-organization.
	GetPolicy(ctx context.Context, orgID, id string) (*Policy, error)
	// GetPolicyByName looks a policy up by its unique name.
	GetPolicyByName(ctx context.Context, orgID, name string) (*Policy, error)
	// ListPolicies returns all policies for the organization ordered by
	// priority descending.
	ListPolicies(ctx context.Context, orgID string) ([]Policy, error)
	// UpdatePolicy overwrites policy fields and rules. Returns
	// ErrNotFound when absent, ErrConflict on a name collision.
	UpdatePolicy(ctx context.Context, p *Policy) error
	// DeletePolicy removes a policy, cascading to its rules and
	// assignments. Returns ErrNotFound when absent.
	DeletePolicy(ctx context.Context, orgID, id string) error

	// SaveVersion stores an approval snapshot, replacing any existing
	// snapshot for the same (policy, version) pair.
	SaveVersion(ctx context.Context, v *PolicyVersion) error
	// ListVersions returns snapshots for a policy, newest first.
	ListVersions(ctx context.Context, orgID, policyID string) ([]PolicyVersion, error)
}

// AssignmentStore persists per-user policy grants. The (policy, user)
// uniqueness constraint lives here so concurrent grants produce exactly
// one winner and one ErrConflict.
type AssignmentStore interface {
	// CreateAssignment persists a grant. Returns ErrConflict when the
	// (policy, user) pair already exists.
	CreateAssignment(ctx context.Context, a *Assignment) error
	// GetAssignment returns the grant for (policy, user), or ErrNotFound.
	GetAssignment(ctx context.Context, orgID, policyID, userID string) (*Assignment, error)
	// DeleteAssignment removes the grant, returning its prior state for
	// audit. Returns ErrNotFound when absent.
	DeleteAssignment(ctx context.Context, orgID, policyID, userID string) (*Assignment, error)
	// ListAssignmentsForUser returns every grant for the user, expired
	// ones included; callers filter with Assignment.Effective.
	ListAssignmentsForUser(ctx context.Context, orgID, userID string) ([]Assignment, error)
	// ListAssignmentsForPolicy returns every grant against a policy.
	ListAssignmentsForPolicy(ctx context.Context, orgID, policyID string) ([]Assignment, error)
}

// UserStore resolves identities referenced by assignments and decisions.
type UserStore interface {
	// GetUser returns the user, or ErrNotFound when absent or
	// out-of-organization.
	GetUser(ctx context.Context, orgID, id string) (*User, error)
}

// EffectiveLister is the read side the resolver consumes: the registry's
// listEffective operation. The assignment service implements it; a
// caching layer may wrap it without changing the contract.
type EffectiveLister interface {
	// ListEffective returns unexpired assignments joined to approved,
	// active policies, plus approved policies attached to the user's
	// hierarchy level, ordered by policy priority descending then
	// AssignedAt ascending.
	ListEffective(ctx context.Context, orgID, userID string, now time.Time) ([]EffectiveAssignment, error)
}

// Notifier receives the notification fan-out computed on assignment
// mutations. Delivery is an external collaborator's concern; failures
// are logged, not returned to the granter.
type Notifier interface {
	Notify(ctx context.Context, orgID string, userIDs []string, message string) error
}
