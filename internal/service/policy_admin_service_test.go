package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/domain/audit"
)

func TestPolicyCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	over := 1001
	tests := []struct {
		name    string
		actor   access.Actor
		in      CreatePolicyInput
		wantErr error
	}{
		{"staff cannot author", actorStaff, CreatePolicyInput{Name: "x"}, access.ErrForbidden},
		{"empty name", actorLead, CreatePolicyInput{Name: "  "}, access.ErrValidation},
		{"bad default level", actorLead, CreatePolicyInput{Name: "x", DefaultLevel: "SUPERUSER"}, access.ErrValidation},
		{"priority out of range", actorLead, CreatePolicyInput{Name: "x", Priority: &over}, access.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.admin.Create(ctx, tt.actor, tt.in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "  padded  ", Description: "d"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "padded" || p.Status != access.StatusDraft || p.Priority != DefaultPolicyPriority {
		t.Fatalf("created policy = %+v", p)
	}
}

func TestPolicyNameUniquePerOrganization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "taken"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "taken"}); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}
}

func TestPolicyLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "lifecycle"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A draft without rules cannot be submitted.
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("empty submit: got %v, want ErrInvalidState", err)
	}
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	// Approval is only reachable from SUBMITTED.
	if _, err := e.admin.Approve(ctx, actorAdmin, p.ID); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("approve draft: got %v, want ErrInvalidState", err)
	}

	submitted, err := e.admin.Submit(ctx, actorLead, p.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.Status != access.StatusSubmitted || submitted.SubmittedAt == nil {
		t.Fatalf("submitted policy = %+v", submitted)
	}
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("double submit: got %v, want ErrInvalidState", err)
	}

	// Approval needs ADMIN, not just LEADERSHIP.
	if _, err := e.admin.Approve(ctx, actorLead, p.ID); !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("lead approve: got %v, want ErrForbidden", err)
	}

	approved, err := e.admin.Approve(ctx, actorAdmin, p.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != access.StatusApproved || approved.Version != 1 || approved.ApprovedAt == nil {
		t.Fatalf("approved policy = %+v", approved)
	}
	if approved.ApprovedBy != actorAdmin.ID {
		t.Fatalf("approvedBy = %s", approved.ApprovedBy)
	}

	// Terminal: an approved policy cannot be approved or rejected again.
	if _, err := e.admin.Approve(ctx, actorAdmin, p.ID); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("double approve: got %v, want ErrInvalidState", err)
	}
	if _, err := e.admin.Reject(ctx, actorAdmin, p.ID, "too late"); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("reject approved: got %v, want ErrInvalidState", err)
	}
}

func TestPolicyRejectIsTerminal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "doomed"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := e.admin.Reject(ctx, actorAdmin, p.ID, "  "); !errors.Is(err, access.ErrValidation) {
		t.Fatalf("empty reason: got %v, want ErrValidation", err)
	}

	rejected, err := e.admin.Reject(ctx, actorAdmin, p.ID, "overlaps the finance policy")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != access.StatusRejected || rejected.RejectionReason == "" || rejected.IsActive {
		t.Fatalf("rejected policy = %+v", rejected)
	}

	// No resubmission; the retry path is a clone.
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("resubmit rejected: got %v, want ErrInvalidState", err)
	}

	clone, err := e.admin.Clone(ctx, actorLead, p.ID, "doomed-v2")
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if clone.Status != access.StatusDraft || clone.ID == p.ID {
		t.Fatalf("clone = %+v", clone)
	}
	if len(clone.Rules) != 1 || clone.Rules[0].ID == rejected.Rules[0].ID {
		t.Fatalf("clone rules = %+v, want fresh copies", clone.Rules)
	}
	if clone.RejectionReason != "" {
		t.Fatal("clone must not inherit the rejection")
	}
}

func TestPolicyApproveWritesVersionSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.approvedPolicy(t, "versioned", 10,
		allowRule("clients", "edit"), denyRule("clients", "delete"))

	versions, err := e.admin.Versions(ctx, actorAdmin, p.ID)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("want 1 snapshot, got %d", len(versions))
	}
	v := versions[0]
	if v.Version != 1 || len(v.RulesSnapshot) != 2 || v.ChangedBy != actorAdmin.ID {
		t.Fatalf("snapshot = %+v", v)
	}
}

func TestUpsertRule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "rule-edits"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name string
		in   RuleInput
	}{
		{"missing resource", RuleInput{Action: "edit", Effect: access.EffectAllow}},
		{"bad effect", RuleInput{Resource: "clients", Action: "edit", Effect: "MAYBE"}},
		{"bad condition type", RuleInput{Resource: "clients", Action: "edit", Effect: access.EffectAllow, ConditionType: "WEEKENDS"}},
		{"time window missing params", RuleInput{Resource: "clients", Action: "edit", Effect: access.EffectAllow, ConditionType: access.ConditionTimeWindow}},
		{"custom params empty", RuleInput{Resource: "clients", Action: "edit", Effect: access.EffectAllow, ConditionType: access.ConditionCustomParams}},
		{"expression does not compile", RuleInput{
			Resource: "clients", Action: "edit", Effect: access.EffectAllow,
			ConditionType:   access.ConditionExpression,
			ConditionParams: map[string]string{access.ParamExpression: `target[`},
		}},
		{"expression not bool", RuleInput{
			Resource: "clients", Action: "edit", Effect: access.EffectAllow,
			ConditionType:   access.ConditionExpression,
			ConditionParams: map[string]string{access.ParamExpression: `actor["id"]`},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, tt.in); !errors.Is(err, access.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}

	first, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit"))
	if err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	// Same (resource, action) replaces in place and keeps the identity.
	replaced, err := e.admin.UpsertRule(ctx, actorLead, p.ID, denyRule("clients", "edit"))
	if err != nil {
		t.Fatalf("UpsertRule replace: %v", err)
	}
	if replaced.ID != first.ID || replaced.Position != first.Position {
		t.Fatalf("replacement changed identity: %+v vs %+v", replaced, first)
	}
	if replaced.Effect != access.EffectDeny {
		t.Fatalf("effect = %s", replaced.Effect)
	}

	// A different pair appends.
	second, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "show"))
	if err != nil {
		t.Fatalf("UpsertRule append: %v", err)
	}
	if second.Position != 1 {
		t.Fatalf("position = %d, want 1", second.Position)
	}

	got, err := e.admin.Get(ctx, actorLead, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(got.Rules))
	}
}

func TestDeleteRuleRepositions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "shrinking"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r0, _ := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "list"))
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "show")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	if err := e.admin.DeleteRule(ctx, actorLead, p.ID, r0.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := e.admin.DeleteRule(ctx, actorLead, p.ID, r0.ID); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("double delete: got %v, want ErrNotFound", err)
	}

	got, err := e.admin.Get(ctx, actorLead, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(got.Rules))
	}
	for i, r := range got.Rules {
		if r.Position != i {
			t.Fatalf("rule %d has position %d", i, r.Position)
		}
	}
}

func TestPolicyDeleteCascadesAssignments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.approvedPolicy(t, "short-lived", 10, allowRule("clients", "edit"))
	e.assign(t, p.ID, "staff-1")
	e.assign(t, p.ID, "free-1")

	if err := e.admin.Delete(ctx, actorLead, p.ID); !errors.Is(err, access.ErrForbidden) {
		t.Fatalf("lead delete: got %v, want ErrForbidden", err)
	}
	if err := e.admin.Delete(ctx, actorAdmin, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := e.policies.GetPolicy(ctx, testOrg, p.ID); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("policy survived delete: %v", err)
	}
	left, err := e.assignments.ListAssignmentsForPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("ListAssignmentsForPolicy: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("assignments survived the cascade: %d", len(left))
	}

	entries := e.recorder.Entries()
	last := entries[len(entries)-1]
	if last.Action != audit.ActionPolicyDeleted || last.PreviousState == nil {
		t.Fatalf("audit entry = %+v", last)
	}
}

func TestPolicyCreateAuditFailureUndoes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.recorder.FailNext(errors.New("trail unavailable"))
	if _, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "phantom"}); err == nil {
		t.Fatal("expected creation to fail with the audit write")
	}

	// The name is free again once the trail recovers.
	if _, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "phantom"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPolicySubmitAuditFailureUndoes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "stalled"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	e.recorder.FailNext(errors.New("trail unavailable"))
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); err == nil {
		t.Fatal("expected submit to fail with the audit write")
	}

	got, err := e.policies.GetPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.Status != access.StatusDraft || got.SubmittedAt != nil {
		t.Fatalf("policy after failed submit = %+v, want untouched draft", got)
	}

	if _, err := e.admin.Submit(ctx, actorLead, p.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPolicyApproveAuditFailureUndoes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "held-back"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	e.recorder.FailNext(errors.New("trail unavailable"))
	if _, err := e.admin.Approve(ctx, actorAdmin, p.ID); err == nil {
		t.Fatal("expected approval to fail with the audit write")
	}

	got, err := e.policies.GetPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.Status != access.StatusSubmitted || got.Version != 0 || got.ApprovedAt != nil {
		t.Fatalf("policy after failed approval = %+v, want untouched submission", got)
	}

	// An unapproved policy must not attach anywhere.
	if _, err := e.registry.Assign(ctx, actorAdmin, AssignInput{
		PolicyID: p.ID, UserID: "staff-1", Reason: "quarterly access review grant",
	}); !errors.Is(err, access.ErrInvalidState) {
		t.Fatalf("assign unapproved: got %v, want ErrInvalidState", err)
	}

	approved, err := e.admin.Approve(ctx, actorAdmin, p.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if approved.Status != access.StatusApproved || approved.Version != 1 {
		t.Fatalf("retried approval = %+v", approved)
	}
	versions, err := e.admin.Versions(ctx, actorAdmin, p.ID)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("want 1 snapshot after retry, got %d", len(versions))
	}
}

func TestPolicyRejectAuditFailureUndoes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "spared"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if _, err := e.admin.Submit(ctx, actorLead, p.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	e.recorder.FailNext(errors.New("trail unavailable"))
	if _, err := e.admin.Reject(ctx, actorAdmin, p.ID, "overlaps the finance policy"); err == nil {
		t.Fatal("expected rejection to fail with the audit write")
	}

	got, err := e.policies.GetPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if got.Status != access.StatusSubmitted || got.RejectionReason != "" || !got.IsActive {
		t.Fatalf("policy after failed rejection = %+v, want untouched submission", got)
	}

	if _, err := e.admin.Reject(ctx, actorAdmin, p.ID, "overlaps the finance policy"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestRuleEditAuditFailureUndoes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p, err := e.admin.Create(ctx, actorLead, CreatePolicyInput{Name: "stable-rules"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	kept, err := e.admin.UpsertRule(ctx, actorLead, p.ID, allowRule("clients", "edit"))
	if err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	e.recorder.FailNext(errors.New("trail unavailable"))
	if _, err := e.admin.UpsertRule(ctx, actorLead, p.ID, denyRule("clients", "delete")); err == nil {
		t.Fatal("expected rule upsert to fail with the audit write")
	}
	got, err := e.policies.GetPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if len(got.Rules) != 1 || got.Rules[0].ID != kept.ID {
		t.Fatalf("rules after failed upsert = %+v, want only the original", got.Rules)
	}

	e.recorder.FailNext(errors.New("trail unavailable"))
	if err := e.admin.DeleteRule(ctx, actorLead, p.ID, kept.ID); err == nil {
		t.Fatal("expected rule delete to fail with the audit write")
	}
	got, err = e.policies.GetPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if len(got.Rules) != 1 || got.Rules[0].ID != kept.ID {
		t.Fatalf("rules after failed delete = %+v, want the original back", got.Rules)
	}

	if err := e.admin.DeleteRule(ctx, actorLead, p.ID, kept.ID); err != nil {
		t.Fatalf("retry delete: %v", err)
	}
}

func TestPolicyDeleteAuditFailureRestores(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.approvedPolicy(t, "resilient", 10, allowRule("clients", "edit"))
	e.assign(t, p.ID, "staff-1")

	e.recorder.FailNext(errors.New("trail unavailable"))
	if err := e.admin.Delete(ctx, actorAdmin, p.ID); err == nil {
		t.Fatal("expected delete to fail with the audit write")
	}

	got, err := e.policies.GetPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("policy not restored: %v", err)
	}
	if got.Status != access.StatusApproved || len(got.Rules) != 1 {
		t.Fatalf("restored policy = %+v", got)
	}
	grants, err := e.assignments.ListAssignmentsForPolicy(ctx, testOrg, p.ID)
	if err != nil {
		t.Fatalf("ListAssignmentsForPolicy: %v", err)
	}
	if len(grants) != 1 || grants[0].UserID != "staff-1" {
		t.Fatalf("grants after failed delete = %+v, want the grant back", grants)
	}

	if err := e.admin.Delete(ctx, actorAdmin, p.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestPolicyAuditTrailNarratesLifecycle(t *testing.T) {
	e := newEnv(t)
	e.approvedPolicy(t, "narrated", 10, allowRule("clients", "edit"))

	var actions []string
	for _, entry := range e.recorder.Entries() {
		actions = append(actions, entry.Action)
	}
	want := []string{
		audit.ActionPolicyCreated,
		audit.ActionRuleUpserted,
		audit.ActionPolicySubmitted,
		audit.ActionPolicyApproved,
	}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Fatalf("trail = %v, want %v", actions, want)
	}
}
