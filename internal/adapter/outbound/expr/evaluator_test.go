package expr

import (
	"strings"
	"testing"
	"time"

	"github.com/spokestack/accessctl/internal/domain/access"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return e
}

func TestEvaluateRule(t *testing.T) {
	e := newTestEvaluator(t)
	rc := access.RequestContext{
		ActorID:         "user-1",
		ActorDepartment: "design",
		OrganizationID:  "org-1",
		Target: &access.TargetEntity{
			ID:         "brief-1",
			OwnerID:    "user-1",
			Department: "design",
			Attributes: map[string]string{"status": "open"},
		},
		Now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name       string
		expression string
		want       bool
		wantErr    bool
	}{
		{"actor id match", `actor.id == "user-1"`, true, false},
		{"ownership via maps", `target.ownerId == actor.id`, true, false},
		{"attribute access", `target.status == "open"`, true, false},
		{"negative match", `actor.department == "engineering"`, false, false},
		{"timestamp comparison", `now < timestamp("2027-01-01T00:00:00Z")`, true, false},
		{"missing key errors and fails closed", `target.missing == "x"`, false, true},
		{"compile error", `actor.id ==`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvaluateRule(tt.expression, rc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EvaluateRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("EvaluateRule() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateRuleWithoutTarget(t *testing.T) {
	e := newTestEvaluator(t)
	rc := access.RequestContext{ActorID: "user-1", Now: time.Now().UTC()}

	// target is an empty map; membership checks still work.
	got, err := e.EvaluateRule(`!("id" in target)`, rc)
	if err != nil {
		t.Fatalf("EvaluateRule: %v", err)
	}
	if !got {
		t.Error("expected empty target map")
	}
}

func TestValidate(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"valid", `actor.id == target.ownerId`, false},
		{"empty", ``, true},
		{"not bool", `actor.id`, true},
		{"syntax error", `&&&`, true},
		{"too long", strings.Repeat("true && ", 200) + "true", true},
		{"too deeply nested", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Validate(tt.expression)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.expression, err, tt.wantErr)
			}
		})
	}
}

func TestCompiledProgramCache(t *testing.T) {
	e := newTestEvaluator(t)
	rc := access.RequestContext{ActorID: "user-1", Now: time.Now().UTC()}

	const expression = `actor.id == "user-1"`
	for i := 0; i < 3; i++ {
		if _, err := e.EvaluateRule(expression, rc); err != nil {
			t.Fatalf("EvaluateRule: %v", err)
		}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.programs) != 1 {
		t.Errorf("program cache size = %d, want 1", len(e.programs))
	}
}
