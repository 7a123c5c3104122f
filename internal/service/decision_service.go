package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// DecisionService is the decision resolver: given (actor, resource,
// action, optional target) it returns an authorization decision plus a
// field-visibility mask. It holds no mutable state beyond the optional
// cache; every evaluation re-queries the registry, so correctness under
// concurrent policy edits reduces to the store's own guarantees.
type DecisionService struct {
	users       access.UserStore
	effective   access.EffectiveLister
	expressions access.ExpressionEvaluator
	metrics     *Metrics
	logger      *slog.Logger
	cache       *decisionCache
	now         func() time.Time
}

// DecisionServiceOption configures DecisionService.
type DecisionServiceOption func(*DecisionService)

// WithExpressionEvaluator enables EXPRESSION rule conditions. Without
// it, such rules never match.
func WithExpressionEvaluator(e access.ExpressionEvaluator) DecisionServiceOption {
	return func(s *DecisionService) { s.expressions = e }
}

// WithDecisionMetrics attaches metrics recording.
func WithDecisionMetrics(m *Metrics) DecisionServiceOption {
	return func(s *DecisionService) { s.metrics = m }
}

// WithDecisionCache enables the short-TTL decision cache.
func WithDecisionCache(maxSize int, ttl time.Duration) DecisionServiceOption {
	return func(s *DecisionService) {
		if maxSize > 0 && ttl > 0 {
			s.cache = newDecisionCache(maxSize, ttl)
		}
	}
}

// WithDecisionClock overrides the time source (for tests).
func WithDecisionClock(now func() time.Time) DecisionServiceOption {
	return func(s *DecisionService) { s.now = now }
}

// NewDecisionService creates the resolver.
func NewDecisionService(
	users access.UserStore,
	effective access.EffectiveLister,
	logger *slog.Logger,
	opts ...DecisionServiceOption,
) *DecisionService {
	s := &DecisionService{
		users:     users,
		effective: effective,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve evaluates the actor's effective policies in priority order and
// returns the first matching rule's effect, falling back to the static
// role-hierarchy default table. "Not allowed" is a normal decision
// value; only malformed input (empty fields, unknown actor) is an error.
func (s *DecisionService) Resolve(ctx context.Context, actor access.Actor, resource, action string, target *access.TargetEntity) (access.Decision, error) {
	if resource == "" || action == "" {
		return access.Decision{}, fmt.Errorf("resource and action are required: %w", access.ErrValidation)
	}
	if actor.ID == "" || actor.OrganizationID == "" {
		return access.Decision{}, fmt.Errorf("actor identity is required: %w", access.ErrValidation)
	}

	// The stored identity is canonical for level and department; a
	// session carrying a stale or foreign actor surfaces here.
	user, err := s.users.GetUser(ctx, actor.OrganizationID, actor.ID)
	if err != nil {
		return access.Decision{}, fmt.Errorf("resolve actor %s: %w", actor.ID, err)
	}

	now := s.now()
	var cacheKey uint64
	if s.cache != nil {
		cacheKey = decisionCacheKey(actor.OrganizationID, user.ID, resource, action, target)
		if d, ok := s.cache.Get(cacheKey, now); ok {
			s.metrics.recordCacheHit()
			return d, nil
		}
	}

	rc := access.RequestContext{
		ActorID:         user.ID,
		ActorDepartment: user.Department,
		OrganizationID:  user.OrganizationID,
		Target:          target,
		Now:             now,
	}

	effective, err := s.effective.ListEffective(ctx, actor.OrganizationID, user.ID, now)
	if err != nil {
		return access.Decision{}, fmt.Errorf("list effective assignments: %w", err)
	}

	d, matched := s.scanRules(effective, resource, action, rc)
	if !matched {
		d = s.defaultDecision(user.Level, resource, action)
		s.metrics.recordDecision(resource, d.Allowed, "default")
	} else {
		s.metrics.recordDecision(resource, d.Allowed, "rule")
	}

	if s.cache != nil {
		s.cache.Put(cacheKey, d, now)
	}
	return d, nil
}

// scanRules walks policies in priority order and each policy's rules in
// stored order. The first structurally-and-conditionally matching rule
// wins; there is no merging of effects across rules.
func (s *DecisionService) scanRules(effective []access.EffectiveAssignment, resource, action string, rc access.RequestContext) (access.Decision, bool) {
	for _, ea := range effective {
		for i := range ea.Policy.Rules {
			rule := &ea.Policy.Rules[i]
			if !rule.IsActive || rule.Resource != resource || rule.Action != action {
				continue
			}
			if !s.conditionHolds(rule, rc) {
				continue
			}

			ref := &access.RuleRef{
				RuleID:        rule.ID,
				PolicyID:      ea.Policy.ID,
				PolicyName:    ea.Policy.Name,
				ConditionType: rule.ConditionType,
			}
			if rule.Effect == access.EffectDeny {
				return access.Decision{
					Allowed:     false,
					Reason:      fmt.Sprintf("denied by policy %q rule %s/%s", ea.Policy.Name, resource, action),
					MatchedRule: ref,
				}, true
			}
			return access.Decision{
				Allowed:     true,
				Reason:      fmt.Sprintf("allowed by policy %q rule %s/%s", ea.Policy.Name, resource, action),
				MatchedRule: ref,
				FieldMask: access.FieldMask{
					AllowedFields: rule.AllowedFields,
					DeniedFields:  rule.DeniedFields,
				},
			}, true
		}
	}
	return access.Decision{}, false
}

// conditionHolds evaluates a rule's condition, failing closed on
// malformed params and expression errors.
func (s *DecisionService) conditionHolds(rule *access.Rule, rc access.RequestContext) bool {
	if rule.ConditionType == access.ConditionExpression {
		if s.expressions == nil {
			return false
		}
		ok, err := s.expressions.EvaluateRule(rule.ConditionParams[access.ParamExpression], rc)
		if err != nil {
			s.logger.Debug("expression condition failed closed",
				"rule_id", rule.ID, "error", err)
			return false
		}
		return ok
	}
	return access.EvaluateCondition(rule.ConditionType, rule.ConditionParams, rc)
}

// defaultDecision applies the static resource/action default table: a
// pure function of the actor's rank. Default decisions carry no field
// mask.
func (s *DecisionService) defaultDecision(level access.PermissionLevel, resource, action string) access.Decision {
	min := access.DefaultMinimumLevel(resource, action)
	if level.AtLeast(min) {
		return access.Decision{
			Allowed: true,
			Reason:  fmt.Sprintf("allowed by role hierarchy default: %s meets %s for %s/%s", level, min, resource, action),
		}
	}
	return access.Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("denied by role hierarchy default: %s/%s requires %s", resource, action, min),
	}
}
