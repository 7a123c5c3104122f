package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spokestack/accessctl/internal/adapter/outbound/expr"
	"github.com/spokestack/accessctl/internal/adapter/outbound/memory"
	"github.com/spokestack/accessctl/internal/domain/access"
)

// testOrg is the organization every fixture entity lives in.
const testOrg = "org-1"

// Fixed clock keeps assertions on timestamps and expiry deterministic.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// env bundles the stores and services under test. Service tests run over
// the memory adapters so registry filtering, ordering, and uniqueness
// are exercised end to end.
type env struct {
	policies    *memory.PolicyStore
	assignments *memory.AssignmentStore
	users       *memory.UserStore
	recorder    *memory.AuditRecorder
	notifier    *memory.Notifier

	admin    *PolicyAdminService
	registry *AssignmentService
	resolver *DecisionService
}

// Fixture actors, highest to lowest rank.
var (
	actorAdmin = access.Actor{ID: "admin-1", OrganizationID: testOrg, Name: "Ada", Level: access.LevelAdmin}
	actorLead  = access.Actor{ID: "lead-1", OrganizationID: testOrg, Name: "Lena", Level: access.LevelLeadership}
	actorStaff = access.Actor{ID: "staff-1", OrganizationID: testOrg, Name: "Sam", Level: access.LevelStaff}
)

func newEnv(t *testing.T, opts ...DecisionServiceOption) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &env{
		policies:    memory.NewPolicyStore(),
		assignments: memory.NewAssignmentStore(),
		users:       memory.NewUserStore(),
		recorder:    memory.NewAuditRecorder(),
		notifier:    memory.NewNotifier(),
	}

	e.users.AddUser(&access.User{ID: "admin-1", OrganizationID: testOrg, Name: "Ada", Level: access.LevelAdmin, IsActive: true})
	e.users.AddUser(&access.User{ID: "lead-1", OrganizationID: testOrg, Name: "Lena", Level: access.LevelLeadership, IsActive: true})
	e.users.AddUser(&access.User{ID: "tl-1", OrganizationID: testOrg, Name: "Théo", Department: "design", Level: access.LevelTeamLead, IsActive: true})
	e.users.AddUser(&access.User{ID: "staff-1", OrganizationID: testOrg, Name: "Sam", Department: "design", Level: access.LevelStaff, TeamLeadID: "tl-1", IsActive: true})
	e.users.AddUser(&access.User{ID: "free-1", OrganizationID: testOrg, Name: "Finn", Department: "content", Level: access.LevelFreelancer, IsActive: true})

	evaluator, err := expr.NewEvaluator()
	if err != nil {
		t.Fatalf("expr.NewEvaluator: %v", err)
	}

	clock := func() time.Time { return testNow }
	e.admin = NewPolicyAdminService(e.policies, e.assignments, e.recorder, evaluator, logger,
		WithPolicyAdminClock(clock))
	e.registry = NewAssignmentService(e.policies, e.assignments, e.users, e.recorder, e.notifier, logger,
		WithAssignmentClock(clock))

	resolverOpts := append([]DecisionServiceOption{
		WithExpressionEvaluator(evaluator),
		WithDecisionClock(clock),
	}, opts...)
	e.resolver = NewDecisionService(e.users, e.registry, logger, resolverOpts...)
	return e
}

// approvedPolicy drives a policy through the full lifecycle with the
// given rules and returns it APPROVED.
func (e *env) approvedPolicy(t *testing.T, name string, priority int, rules ...RuleInput) *access.Policy {
	t.Helper()
	return e.approvedPolicyInput(t, CreatePolicyInput{Name: name, Priority: &priority}, rules...)
}

// approvedLevelPolicy approves a policy that attaches to every user at
// the given hierarchy level without an explicit grant.
func (e *env) approvedLevelPolicy(t *testing.T, name string, level access.PermissionLevel, priority int, rules ...RuleInput) *access.Policy {
	t.Helper()
	return e.approvedPolicyInput(t, CreatePolicyInput{Name: name, DefaultLevel: level, Priority: &priority}, rules...)
}

func (e *env) approvedPolicyInput(t *testing.T, in CreatePolicyInput, rules ...RuleInput) *access.Policy {
	t.Helper()
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, in)
	if err != nil {
		t.Fatalf("create policy %q: %v", in.Name, err)
	}
	for _, r := range rules {
		if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, r); err != nil {
			t.Fatalf("upsert rule on %q: %v", in.Name, err)
		}
	}
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); err != nil {
		t.Fatalf("submit %q: %v", in.Name, err)
	}
	approved, err := e.admin.Approve(ctx, actorAdmin, p.ID)
	if err != nil {
		t.Fatalf("approve %q: %v", in.Name, err)
	}
	return approved
}

// assign grants a policy with a valid justification.
func (e *env) assign(t *testing.T, policyID, userID string) {
	t.Helper()
	_, err := e.registry.Assign(context.Background(), actorLead, AssignInput{
		PolicyID: policyID,
		UserID:   userID,
		Reason:   "quarterly access review grant",
	})
	if err != nil {
		t.Fatalf("assign %s to %s: %v", policyID, userID, err)
	}
}

func allowRule(resource, action string) RuleInput {
	return RuleInput{Resource: resource, Action: action, Effect: access.EffectAllow, ConditionType: access.ConditionNone}
}

func denyRule(resource, action string) RuleInput {
	return RuleInput{Resource: resource, Action: action, Effect: access.EffectDeny, ConditionType: access.ConditionNone}
}
