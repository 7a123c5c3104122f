// Package seed applies the embedded default policy bundle to an
// organization: each bundled policy is created as a draft, submitted,
// and approved by the system actor, so fresh organizations start with a
// sensible baseline instead of bare hierarchy defaults.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/service"
)

//go:embed default_policies.yaml
var defaultBundle []byte

// SystemActorID marks seed mutations in the audit trail.
const SystemActorID = "system"

type bundle struct {
	Policies []policySpec `yaml:"policies"`
}

type policySpec struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	DefaultLevel string     `yaml:"defaultLevel"`
	Priority     int        `yaml:"priority"`
	Rules        []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Resource        string            `yaml:"resource"`
	Action          string            `yaml:"action"`
	Effect          string            `yaml:"effect"`
	ConditionType   string            `yaml:"conditionType"`
	ConditionParams map[string]string `yaml:"conditionParams"`
	AllowedFields   []string          `yaml:"allowedFields"`
	DeniedFields    []string          `yaml:"deniedFields"`
}

// Apply drives the embedded bundle through the full policy lifecycle
// for one organization. Policies whose name is already taken are
// skipped, so Apply is safe to run repeatedly. Returns the number of
// policies created.
func Apply(ctx context.Context, admin *service.PolicyAdminService, orgID string, logger *slog.Logger) (int, error) {
	var b bundle
	if err := yaml.Unmarshal(defaultBundle, &b); err != nil {
		return 0, fmt.Errorf("parse default policy bundle: %w", err)
	}

	actor := access.Actor{
		ID:             SystemActorID,
		OrganizationID: orgID,
		Name:           "System",
		Level:          access.LevelAdmin,
	}

	created := 0
	for _, spec := range b.Policies {
		priority := spec.Priority
		p, err := admin.Create(ctx, actor, service.CreatePolicyInput{
			Name:         spec.Name,
			Description:  spec.Description,
			DefaultLevel: access.PermissionLevel(spec.DefaultLevel),
			Priority:     &priority,
		})
		if err != nil {
			if errors.Is(err, access.ErrConflict) {
				logger.Debug("seed policy already present", "name", spec.Name, "organization_id", orgID)
				continue
			}
			return created, fmt.Errorf("seed policy %q: %w", spec.Name, err)
		}

		for _, r := range spec.Rules {
			if _, err := admin.UpsertRule(ctx, actor, p.ID, service.RuleInput{
				Resource:        r.Resource,
				Action:          r.Action,
				Effect:          access.Effect(r.Effect),
				ConditionType:   access.ConditionType(r.ConditionType),
				ConditionParams: r.ConditionParams,
				AllowedFields:   r.AllowedFields,
				DeniedFields:    r.DeniedFields,
			}); err != nil {
				return created, fmt.Errorf("seed rule %s/%s on %q: %w", r.Resource, r.Action, spec.Name, err)
			}
		}

		if _, err := admin.Submit(ctx, actor, p.ID); err != nil {
			return created, fmt.Errorf("submit seed policy %q: %w", spec.Name, err)
		}
		if _, err := admin.Approve(ctx, actor, p.ID); err != nil {
			return created, fmt.Errorf("approve seed policy %q: %w", spec.Name, err)
		}

		created++
		logger.Info("seed policy applied", "name", spec.Name, "organization_id", orgID)
	}
	return created, nil
}
