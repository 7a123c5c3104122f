package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/domain/audit"
)

// Privilege ranks for policy management. Authoring (create, submit,
// clone, rule edits) needs leadership; the approval branch and deletion
// need admin.
const (
	authorLevel   = access.LevelLeadership
	approverLevel = access.LevelAdmin
)

// DefaultPolicyPriority is used when a new policy does not specify one.
const DefaultPolicyPriority = 50

// PolicyAdminService provides policy CRUD, rule upsert, and the approval
// state machine. Every mutation emits an audit entry; a failed audit
// write fails the mutation.
type PolicyAdminService struct {
	policies    access.PolicyStore
	assignments access.AssignmentStore
	recorder    audit.Recorder
	expressions access.ExpressionEvaluator
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// PolicyAdminOption configures PolicyAdminService.
type PolicyAdminOption func(*PolicyAdminService)

// WithPolicyAdminMetrics attaches metrics recording.
func WithPolicyAdminMetrics(m *Metrics) PolicyAdminOption {
	return func(s *PolicyAdminService) { s.metrics = m }
}

// WithPolicyAdminClock overrides the time source (for tests).
func WithPolicyAdminClock(now func() time.Time) PolicyAdminOption {
	return func(s *PolicyAdminService) { s.now = now }
}

// NewPolicyAdminService creates the policy administration service.
// expressions may be nil, in which case EXPRESSION rules are rejected at
// save time.
func NewPolicyAdminService(
	policies access.PolicyStore,
	assignments access.AssignmentStore,
	recorder audit.Recorder,
	expressions access.ExpressionEvaluator,
	logger *slog.Logger,
	opts ...PolicyAdminOption,
) *PolicyAdminService {
	s := &PolicyAdminService{
		policies:    policies,
		assignments: assignments,
		recorder:    recorder,
		expressions: expressions,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePolicyInput carries the parameters of a new policy.
type CreatePolicyInput struct {
	Name         string
	Description  string
	DefaultLevel access.PermissionLevel
	Priority     *int
}

// Create creates a new policy in DRAFT.
func (s *PolicyAdminService) Create(ctx context.Context, actor access.Actor, in CreatePolicyInput) (*access.Policy, error) {
	if !actor.Level.AtLeast(authorLevel) {
		return nil, fmt.Errorf("creating policies requires %s: %w", authorLevel, access.ErrForbidden)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("policy name is required: %w", access.ErrValidation)
	}
	if in.DefaultLevel != "" && !in.DefaultLevel.Valid() {
		return nil, fmt.Errorf("unknown default level %q: %w", in.DefaultLevel, access.ErrValidation)
	}
	priority := DefaultPolicyPriority
	if in.Priority != nil {
		if *in.Priority < 0 || *in.Priority > 1000 {
			return nil, fmt.Errorf("priority %d out of range [0, 1000]: %w", *in.Priority, access.ErrValidation)
		}
		priority = *in.Priority
	}

	now := s.now()
	p := &access.Policy{
		ID:             uuid.New().String(),
		OrganizationID: actor.OrganizationID,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		DefaultLevel:   in.DefaultLevel,
		Status:         access.StatusDraft,
		Priority:       priority,
		IsActive:       true,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.policies.CreatePolicy(ctx, p); err != nil {
		return nil, err
	}

	if err := s.audit(ctx, actor, audit.ActionPolicyCreated, p, nil, policyState(p),
		fmt.Sprintf("Created policy %q as draft", p.Name)); err != nil {
		if derr := s.policies.DeletePolicy(ctx, p.OrganizationID, p.ID); derr != nil {
			s.logger.Error("failed to undo unaudited policy create", "policy_id", p.ID, "error", derr)
		}
		return nil, err
	}

	s.logger.Info("policy created", "policy_id", p.ID, "name", p.Name, "created_by", actor.ID)
	return p, nil
}

// Get returns a policy with its rules.
func (s *PolicyAdminService) Get(ctx context.Context, actor access.Actor, policyID string) (*access.Policy, error) {
	return s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
}

// List returns the organization's policies ordered by priority.
func (s *PolicyAdminService) List(ctx context.Context, actor access.Actor) ([]access.Policy, error) {
	return s.policies.ListPolicies(ctx, actor.OrganizationID)
}

// Submit moves a DRAFT policy to SUBMITTED. The policy must carry at
// least one rule.
func (s *PolicyAdminService) Submit(ctx context.Context, actor access.Actor, policyID string) (*access.Policy, error) {
	if !actor.Level.AtLeast(authorLevel) {
		return nil, fmt.Errorf("submitting policies requires %s: %w", authorLevel, access.ErrForbidden)
	}
	p, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status != access.StatusDraft {
		return nil, fmt.Errorf("policy %q is %s, only drafts can be submitted: %w",
			p.Name, p.Status, access.ErrInvalidState)
	}
	if len(p.Rules) == 0 {
		return nil, fmt.Errorf("policy %q has no rules: %w", p.Name, access.ErrInvalidState)
	}

	previous := policyState(p)
	prior := p.Copy()
	now := s.now()
	p.Status = access.StatusSubmitted
	p.SubmittedAt = &now
	p.UpdatedAt = now
	if err := s.policies.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}

	if err := s.audit(ctx, actor, audit.ActionPolicySubmitted, p, previous, policyState(p),
		fmt.Sprintf("Policy %q submitted for approval", p.Name)); err != nil {
		s.undoPolicyUpdate(ctx, prior, "submit")
		return nil, err
	}
	s.logger.Info("policy submitted", "policy_id", p.ID, "name", p.Name, "submitted_by", actor.ID)
	return p, nil
}

// Approve moves a SUBMITTED policy to APPROVED, making it usable for
// assignments and evaluation, and writes a version snapshot.
func (s *PolicyAdminService) Approve(ctx context.Context, actor access.Actor, policyID string) (*access.Policy, error) {
	if !actor.Level.AtLeast(approverLevel) {
		return nil, fmt.Errorf("approving policies requires %s: %w", approverLevel, access.ErrForbidden)
	}
	p, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status != access.StatusSubmitted {
		return nil, fmt.Errorf("policy %q is %s, only submitted policies can be approved: %w",
			p.Name, p.Status, access.ErrInvalidState)
	}

	previous := policyState(p)
	prior := p.Copy()
	now := s.now()
	p.Status = access.StatusApproved
	p.IsActive = true
	p.Version++
	p.ApprovedBy = actor.ID
	p.ApprovedAt = &now
	p.UpdatedAt = now
	if err := s.policies.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Policy %q approved (version %d)", p.Name, p.Version)
	if err := s.policies.SaveVersion(ctx, &access.PolicyVersion{
		PolicyID:       p.ID,
		OrganizationID: p.OrganizationID,
		Version:        p.Version,
		Name:           p.Name,
		Description:    p.Description,
		DefaultLevel:   p.DefaultLevel,
		Priority:       p.Priority,
		RulesSnapshot:  p.Rules,
		ChangeSummary:  summary,
		ChangedBy:      actor.ID,
		CreatedAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("save version snapshot: %w", err)
	}

	if err := s.audit(ctx, actor, audit.ActionPolicyApproved, p, previous, policyState(p), summary); err != nil {
		// The version snapshot for this number is overwritten when the
		// approval is retried.
		s.undoPolicyUpdate(ctx, prior, "approve")
		return nil, err
	}
	s.logger.Info("policy approved", "policy_id", p.ID, "name", p.Name, "version", p.Version, "approved_by", actor.ID)
	return p, nil
}

// Reject moves a SUBMITTED policy to REJECTED. Rejection is terminal:
// the policy must be cloned into a fresh draft to retry. A reason is
// required.
func (s *PolicyAdminService) Reject(ctx context.Context, actor access.Actor, policyID, reason string) (*access.Policy, error) {
	if !actor.Level.AtLeast(approverLevel) {
		return nil, fmt.Errorf("rejecting policies requires %s: %w", approverLevel, access.ErrForbidden)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("rejection reason is required: %w", access.ErrValidation)
	}
	p, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status != access.StatusSubmitted {
		return nil, fmt.Errorf("policy %q is %s, only submitted policies can be rejected: %w",
			p.Name, p.Status, access.ErrInvalidState)
	}

	previous := policyState(p)
	prior := p.Copy()
	now := s.now()
	p.Status = access.StatusRejected
	p.IsActive = false
	p.RejectedAt = &now
	p.RejectionReason = reason
	p.UpdatedAt = now
	if err := s.policies.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}

	if err := s.audit(ctx, actor, audit.ActionPolicyRejected, p, previous, policyState(p),
		fmt.Sprintf("Policy %q rejected: %s", p.Name, reason)); err != nil {
		s.undoPolicyUpdate(ctx, prior, "reject")
		return nil, err
	}
	s.logger.Info("policy rejected", "policy_id", p.ID, "name", p.Name, "rejected_by", actor.ID)
	return p, nil
}

// Clone copies a policy's rules into a fresh DRAFT under a new name.
// This is the retry path for rejected policies.
func (s *PolicyAdminService) Clone(ctx context.Context, actor access.Actor, policyID, newName string) (*access.Policy, error) {
	if !actor.Level.AtLeast(authorLevel) {
		return nil, fmt.Errorf("cloning policies requires %s: %w", authorLevel, access.ErrForbidden)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("clone name is required: %w", access.ErrValidation)
	}
	src, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	clone := &access.Policy{
		ID:             uuid.New().String(),
		OrganizationID: src.OrganizationID,
		Name:           newName,
		Description:    src.Description,
		DefaultLevel:   src.DefaultLevel,
		Status:         access.StatusDraft,
		Priority:       src.Priority,
		IsActive:       true,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, r := range src.Rules {
		r.ID = uuid.New().String()
		r.PolicyID = clone.ID
		r.Position = i
		r.CreatedAt = now
		clone.Rules = append(clone.Rules, r)
	}
	if err := s.policies.CreatePolicy(ctx, clone); err != nil {
		return nil, err
	}

	if err := s.audit(ctx, actor, audit.ActionPolicyCloned, clone, nil, policyState(clone),
		fmt.Sprintf("Cloned policy %q into draft %q", src.Name, clone.Name)); err != nil {
		if derr := s.policies.DeletePolicy(ctx, clone.OrganizationID, clone.ID); derr != nil {
			s.logger.Error("failed to undo unaudited policy clone", "policy_id", clone.ID, "error", derr)
		}
		return nil, err
	}
	s.logger.Info("policy cloned", "source_id", src.ID, "policy_id", clone.ID, "name", clone.Name)
	return clone, nil
}

// RuleInput carries one permission statement for upsert.
type RuleInput struct {
	Resource        string
	Action          string
	Effect          access.Effect
	ConditionType   access.ConditionType
	ConditionParams map[string]string
	AllowedFields   []string
	DeniedFields    []string
}

// UpsertRule adds or replaces the statement for (resource, action) on a
// policy. Rules are editable in any lifecycle state but only evaluated
// once the policy is approved. Condition params are validated at save
// time where the variant allows it.
func (s *PolicyAdminService) UpsertRule(ctx context.Context, actor access.Actor, policyID string, in RuleInput) (*access.Rule, error) {
	if !actor.Level.AtLeast(authorLevel) {
		return nil, fmt.Errorf("editing rules requires %s: %w", authorLevel, access.ErrForbidden)
	}
	resource := strings.TrimSpace(in.Resource)
	action := strings.TrimSpace(in.Action)
	if resource == "" || action == "" {
		return nil, fmt.Errorf("rule resource and action are required: %w", access.ErrValidation)
	}
	if !in.Effect.Valid() {
		return nil, fmt.Errorf("unknown effect %q: %w", in.Effect, access.ErrValidation)
	}
	ct := in.ConditionType
	if ct == "" {
		ct = access.ConditionNone
	}
	if !ct.Valid() {
		return nil, fmt.Errorf("unknown condition type %q: %w", ct, access.ErrValidation)
	}
	if err := s.validateCondition(ct, in.ConditionParams); err != nil {
		return nil, fmt.Errorf("%v: %w", err, access.ErrValidation)
	}

	p, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return nil, err
	}

	previous := policyState(p)
	prior := p.Copy()
	now := s.now()
	rule := access.Rule{
		PolicyID:        p.ID,
		Resource:        resource,
		Action:          action,
		Effect:          in.Effect,
		ConditionType:   ct,
		ConditionParams: in.ConditionParams,
		AllowedFields:   in.AllowedFields,
		DeniedFields:    in.DeniedFields,
		IsActive:        true,
	}
	if i := p.FindRule(resource, action); i >= 0 {
		rule.ID = p.Rules[i].ID
		rule.Position = p.Rules[i].Position
		rule.CreatedAt = p.Rules[i].CreatedAt
		p.Rules[i] = rule
	} else {
		rule.ID = uuid.New().String()
		rule.Position = len(p.Rules)
		rule.CreatedAt = now
		p.Rules = append(p.Rules, rule)
	}
	p.UpdatedAt = now
	if err := s.policies.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}

	if err := s.audit(ctx, actor, audit.ActionRuleUpserted, p, previous, policyState(p),
		fmt.Sprintf("Rule %s/%s (%s) set on policy %q; changed: %s",
			resource, action, rule.Effect, p.Name, audit.ChangeSummary(previous, policyState(p)))); err != nil {
		s.undoPolicyUpdate(ctx, prior, "rule upsert")
		return nil, err
	}
	s.logger.Info("rule upserted",
		"policy_id", p.ID, "resource", resource, "action", action, "effect", rule.Effect)
	return &rule, nil
}

// DeleteRule removes a rule from a policy.
func (s *PolicyAdminService) DeleteRule(ctx context.Context, actor access.Actor, policyID, ruleID string) error {
	if !actor.Level.AtLeast(authorLevel) {
		return fmt.Errorf("editing rules requires %s: %w", authorLevel, access.ErrForbidden)
	}
	p, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return err
	}

	idx := -1
	for i := range p.Rules {
		if p.Rules[i].ID == ruleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("rule %s: %w", ruleID, access.ErrNotFound)
	}

	previous := policyState(p)
	prior := p.Copy()
	removed := p.Rules[idx]
	p.Rules = append(p.Rules[:idx], p.Rules[idx+1:]...)
	for i := range p.Rules {
		p.Rules[i].Position = i
	}
	p.UpdatedAt = s.now()
	if err := s.policies.UpdatePolicy(ctx, p); err != nil {
		return err
	}

	if err := s.audit(ctx, actor, audit.ActionRuleDeleted, p, previous, policyState(p),
		fmt.Sprintf("Rule %s/%s removed from policy %q", removed.Resource, removed.Action, p.Name)); err != nil {
		s.undoPolicyUpdate(ctx, prior, "rule delete")
		return err
	}
	s.logger.Info("rule deleted", "policy_id", p.ID, "rule_id", ruleID)
	return nil
}

// Delete removes a policy, cascading to its rules and assignments. The
// audit entry keeps the full prior state.
func (s *PolicyAdminService) Delete(ctx context.Context, actor access.Actor, policyID string) error {
	if !actor.Level.AtLeast(approverLevel) {
		return fmt.Errorf("deleting policies requires %s: %w", approverLevel, access.ErrForbidden)
	}
	p, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return err
	}

	previous := policyState(p)
	grants, err := s.assignments.ListAssignmentsForPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	if err := s.policies.DeletePolicy(ctx, actor.OrganizationID, policyID); err != nil {
		return err
	}
	if cascader, ok := s.assignments.(interface {
		DeleteForPolicy(ctx context.Context, orgID, policyID string) error
	}); ok {
		if err := cascader.DeleteForPolicy(ctx, actor.OrganizationID, policyID); err != nil {
			return fmt.Errorf("cascade assignments: %w", err)
		}
	}

	if err := s.audit(ctx, actor, audit.ActionPolicyDeleted, p, previous, nil,
		fmt.Sprintf("Deleted policy %q with %d rules", p.Name, len(p.Rules))); err != nil {
		if cerr := s.policies.CreatePolicy(ctx, p); cerr != nil {
			s.logger.Error("failed to undo unaudited policy delete", "policy_id", p.ID, "error", cerr)
		} else {
			for i := range grants {
				if cerr := s.assignments.CreateAssignment(ctx, &grants[i]); cerr != nil {
					s.logger.Error("failed to restore grant after unaudited policy delete",
						"policy_id", p.ID, "user_id", grants[i].UserID, "error", cerr)
				}
			}
		}
		return err
	}
	s.logger.Info("policy deleted", "policy_id", p.ID, "name", p.Name, "deleted_by", actor.ID)
	return nil
}

// Versions returns the approval snapshots for a policy, newest first.
func (s *PolicyAdminService) Versions(ctx context.Context, actor access.Actor, policyID string) ([]access.PolicyVersion, error) {
	return s.policies.ListVersions(ctx, actor.OrganizationID, policyID)
}

// validateCondition rejects save-time-checkable malformed params so the
// runtime fail-closed path stays reserved for data that predates the
// check.
func (s *PolicyAdminService) validateCondition(ct access.ConditionType, params map[string]string) error {
	switch ct {
	case access.ConditionExpression:
		if s.expressions == nil {
			return fmt.Errorf("expression conditions are not enabled")
		}
		return s.expressions.Validate(params[access.ParamExpression])
	case access.ConditionCustomParams:
		// Key set is resource-specific; checked at evaluation time.
		if len(params) == 0 {
			return fmt.Errorf("custom params condition requires at least one param")
		}
		return nil
	default:
		_, err := access.ParseCondition(ct, params)
		return err
	}
}

// undoPolicyUpdate writes back the pre-mutation state after a failed
// audit write, keeping the mutation and its trail entry one unit of
// work.
func (s *PolicyAdminService) undoPolicyUpdate(ctx context.Context, prior *access.Policy, op string) {
	if err := s.policies.UpdatePolicy(ctx, prior); err != nil {
		s.logger.Error("failed to undo unaudited policy "+op, "policy_id", prior.ID, "error", err)
	}
}

// audit records a mutation entry, counting failures.
func (s *PolicyAdminService) audit(ctx context.Context, actor access.Actor, action string, p *access.Policy, previous, next map[string]any, summary string) error {
	entry := audit.Entry{
		OccurredAt:     s.now(),
		OrganizationID: actor.OrganizationID,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		ActorLevel:     string(actor.Level),
		Action:         action,
		Resource:       "access_policy",
		ResourceID:     p.ID,
		ResourceName:   p.Name,
		PreviousState:  previous,
		NewState:       next,
		Summary:        summary,
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.metrics.recordAuditFailure()
		return fmt.Errorf("record policy audit: %w", err)
	}
	return nil
}

// policyState flattens a policy for audit persistence.
func policyState(p *access.Policy) map[string]any {
	rules := make([]map[string]any, 0, len(p.Rules))
	for _, r := range p.Rules {
		rules = append(rules, map[string]any{
			"id":            r.ID,
			"resource":      r.Resource,
			"action":        r.Action,
			"effect":        string(r.Effect),
			"conditionType": string(r.ConditionType),
			"isActive":      r.IsActive,
		})
	}
	state := map[string]any{
		"id":       p.ID,
		"name":     p.Name,
		"status":   string(p.Status),
		"priority": p.Priority,
		"isActive": p.IsActive,
		"version":  p.Version,
		"rules":    rules,
	}
	if p.Description != "" {
		state["description"] = p.Description
	}
	if p.DefaultLevel != "" {
		state["defaultLevel"] = string(p.DefaultLevel)
	}
	if p.RejectionReason != "" {
		state["rejectionReason"] = p.RejectionReason
	}
	return state
}
