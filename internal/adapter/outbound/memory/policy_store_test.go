package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spokestack/accessctl/internal/domain/access"
)

func testPolicy(id, org, name string, priority int) *access.Policy {
	now := time.Now().UTC()
	return &access.Policy{
		ID:             id,
		OrganizationID: org,
		Name:           name,
		Status:         access.StatusDraft,
		Priority:       priority,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
		Rules: []access.Rule{
			{
				ID:       id + "-r1",
				PolicyID: id,
				Resource: "clients",
				Action:   access.ActionEdit,
				Effect:   access.EffectAllow,
				ConditionType: access.ConditionNone,
				IsActive: true,
			},
		},
	}
}

func TestPolicyStoreNameUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.CreatePolicy(ctx, testPolicy("p1", "org-1", "Restricted", 10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.CreatePolicy(ctx, testPolicy("p2", "org-1", "Restricted", 20))
	if !errors.Is(err, access.ErrConflict) {
		t.Errorf("duplicate name in same org: got %v, want ErrConflict", err)
	}
	// Same name in another org is fine.
	if err := store.CreatePolicy(ctx, testPolicy("p3", "org-2", "Restricted", 10)); err != nil {
		t.Errorf("same name, different org: %v", err)
	}
}

func TestPolicyStoreOrgScoping(t *testing.T) {
	ctx := context.Background()
	store := NewPolicyStore()
	if err := store.CreatePolicy(ctx, testPolicy("p1", "org-1", "A", 10)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.GetPolicy(ctx, "org-2", "p1"); !errors.Is(err, access.ErrNotFound) {
		t.Errorf("cross-org get: got %v, want ErrNotFound", err)
	}
	if _, err := store.GetPolicy(ctx, "org-1", "p1"); err != nil {
		t.Errorf("in-org get: %v", err)
	}
}

func TestPolicyStoreCopySemantics(t *testing.T) {
	ctx := context.Background()
	store := NewPolicyStore()
	p := testPolicy("p1", "org-1", "A", 10)
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	p.Rules[0].Effect = access.EffectDeny
	got, err := store.GetPolicy(ctx, "org-1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rules[0].Effect != access.EffectAllow {
		t.Error("store leaked a mutation through a shared rule slice")
	}

	// Mutating a fetched copy must not affect later reads.
	got.Name = "tampered"
	again, err := store.GetPolicy(ctx, "org-1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Name != "A" {
		t.Error("fetched copy shares state with the store")
	}
}

func TestPolicyStoreListOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewPolicyStore()
	for _, p := range []*access.Policy{
		testPolicy("p1", "org-1", "Low", 5),
		testPolicy("p2", "org-1", "High", 50),
		testPolicy("p3", "org-1", "Mid", 20),
	} {
		if err := store.CreatePolicy(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.ListPolicies(ctx, "org-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"High", "Mid", "Low"}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestPolicyStoreVersions(t *testing.T) {
	ctx := context.Background()
	store := NewPolicyStore()
	if err := store.CreatePolicy(ctx, testPolicy("p1", "org-1", "A", 10)); err != nil {
		t.Fatalf("create: %v", err)
	}

	for v := 1; v <= 2; v++ {
		err := store.SaveVersion(ctx, &access.PolicyVersion{
			PolicyID:       "p1",
			OrganizationID: "org-1",
			Version:        v,
			Name:           "A",
		})
		if err != nil {
			t.Fatalf("save version %d: %v", v, err)
		}
	}

	versions, err := store.ListVersions(ctx, "org-1", "p1")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 2 {
		t.Errorf("versions = %v, want newest first", versions)
	}
}
