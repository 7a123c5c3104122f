package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spokestack/accessctl/internal/adapter/outbound/memory"
	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/service"
)

func newAdminService(t *testing.T) (*service.PolicyAdminService, *memory.PolicyStore) {
	t.Helper()
	policies := memory.NewPolicyStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin := service.NewPolicyAdminService(policies, memory.NewAssignmentStore(),
		memory.NewAuditRecorder(), nil, logger)
	return admin, policies
}

func TestApplyCreatesApprovedPolicies(t *testing.T) {
	admin, policies := newAdminService(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	created, err := Apply(ctx, admin, "org-1", logger)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if created != 6 {
		t.Fatalf("created = %d, want 6", created)
	}

	all, err := policies.ListPolicies(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("policies = %d, want 6", len(all))
	}
	for _, p := range all {
		if p.Status != access.StatusApproved {
			t.Fatalf("policy %q is %s, want APPROVED", p.Name, p.Status)
		}
		if len(p.Rules) == 0 {
			t.Fatalf("policy %q has no rules", p.Name)
		}
		if p.CreatedBy != SystemActorID {
			t.Fatalf("policy %q created by %s", p.Name, p.CreatedBy)
		}
	}

	// Highest priority bundle entry comes first.
	if all[0].Name != "admin-full-access" {
		t.Fatalf("first policy = %q", all[0].Name)
	}

	// The level bundles attach to users at their hierarchy level; only
	// annual-report-window requires an explicit grant.
	levels := map[string]access.PermissionLevel{
		"admin-full-access": access.LevelAdmin,
		"leadership-access": access.LevelLeadership,
		"team-lead-access":  access.LevelTeamLead,
		"staff-access":      access.LevelStaff,
		"freelancer-access": access.LevelFreelancer,
	}
	for _, p := range all {
		if p.DefaultLevel != levels[p.Name] {
			t.Fatalf("policy %q default level = %q, want %q", p.Name, p.DefaultLevel, levels[p.Name])
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	admin, policies := newAdminService(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := Apply(ctx, admin, "org-1", logger); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	created, err := Apply(ctx, admin, "org-1", logger)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if created != 0 {
		t.Fatalf("second run created %d policies", created)
	}

	all, err := policies.ListPolicies(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("policies = %d after rerun, want 6", len(all))
	}
}

func TestApplyScopesToOrganization(t *testing.T) {
	admin, policies := newAdminService(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := Apply(ctx, admin, "org-1", logger); err != nil {
		t.Fatalf("Apply org-1: %v", err)
	}
	if _, err := Apply(ctx, admin, "org-2", logger); err != nil {
		t.Fatalf("Apply org-2: %v", err)
	}

	for _, org := range []string{"org-1", "org-2"} {
		all, err := policies.ListPolicies(ctx, org)
		if err != nil {
			t.Fatalf("ListPolicies %s: %v", org, err)
		}
		if len(all) != 6 {
			t.Fatalf("%s has %d policies, want 6", org, len(all))
		}
	}
}
