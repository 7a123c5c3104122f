// Package service contains application services for the access-control
// engine: policy administration, the assignment registry, and the
// decision resolver.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/domain/audit"
)

// DefaultMinReasonLength is the minimum length of an assignment
// justification when the config does not override it.
const DefaultMinReasonLength = 10

// assignerLevel is the minimum rank required to grant or revoke
// assignments.
const assignerLevel = access.LevelLeadership

// AssignmentService is the assignment registry: per-user policy grants
// with mandatory justification, optional expiry, notification fan-out,
// and audit entries on every mutation.
type AssignmentService struct {
	policies    access.PolicyStore
	assignments access.AssignmentStore
	users       access.UserStore
	recorder    audit.Recorder
	notifier    access.Notifier
	metrics     *Metrics
	logger      *slog.Logger

	minReasonLength int
	now             func() time.Time
}

// AssignmentServiceOption configures AssignmentService.
type AssignmentServiceOption func(*AssignmentService)

// WithMinReasonLength overrides the minimum justification length.
func WithMinReasonLength(n int) AssignmentServiceOption {
	return func(s *AssignmentService) {
		if n > 0 {
			s.minReasonLength = n
		}
	}
}

// WithAssignmentMetrics attaches metrics recording.
func WithAssignmentMetrics(m *Metrics) AssignmentServiceOption {
	return func(s *AssignmentService) { s.metrics = m }
}

// WithAssignmentClock overrides the time source (for tests).
func WithAssignmentClock(now func() time.Time) AssignmentServiceOption {
	return func(s *AssignmentService) { s.now = now }
}

// NewAssignmentService creates the assignment registry.
func NewAssignmentService(
	policies access.PolicyStore,
	assignments access.AssignmentStore,
	users access.UserStore,
	recorder audit.Recorder,
	notifier access.Notifier,
	logger *slog.Logger,
	opts ...AssignmentServiceOption,
) *AssignmentService {
	s := &AssignmentService{
		policies:        policies,
		assignments:     assignments,
		users:           users,
		recorder:        recorder,
		notifier:        notifier,
		logger:          logger,
		minReasonLength: DefaultMinReasonLength,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignInput carries the parameters of a grant.
type AssignInput struct {
	PolicyID     string
	UserID       string
	Reason       string
	BusinessCase string
	ExpiresAt    *time.Time
}

// Assign grants the rules of a policy to a user. The reason is the audit
// justification and is mandatory; the policy must be APPROVED; the
// (policy, user) pair must not already be granted.
func (s *AssignmentService) Assign(ctx context.Context, actor access.Actor, in AssignInput) (*access.Assignment, error) {
	if !actor.Level.AtLeast(assignerLevel) {
		return nil, fmt.Errorf("assigning policies requires %s: %w", assignerLevel, access.ErrForbidden)
	}

	reason := strings.TrimSpace(in.Reason)
	if len(reason) < s.minReasonLength {
		return nil, fmt.Errorf("reason must be at least %d characters, got %d: %w",
			s.minReasonLength, len(reason), access.ErrValidation)
	}
	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("expiry %s is not in the future: %w", in.ExpiresAt, access.ErrValidation)
	}

	policy, err := s.policies.GetPolicy(ctx, actor.OrganizationID, in.PolicyID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, actor.OrganizationID, in.UserID)
	if err != nil {
		return nil, err
	}
	if policy.Status != access.StatusApproved {
		return nil, fmt.Errorf("policy %q is %s, assignments require %s: %w",
			policy.Name, policy.Status, access.StatusApproved, access.ErrInvalidState)
	}

	a := &access.Assignment{
		PolicyID:       policy.ID,
		UserID:         user.ID,
		OrganizationID: actor.OrganizationID,
		Reason:         reason,
		BusinessCase:   strings.TrimSpace(in.BusinessCase),
		AssignedBy:     actor.ID,
		AssignedAt:     now,
		ExpiresAt:      in.ExpiresAt,
		NotifiedUsers:  fanOut(user),
	}

	if err := s.assignments.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}

	if err := s.notifier.Notify(ctx, a.OrganizationID, a.NotifiedUsers,
		fmt.Sprintf("Policy %q was assigned to %s", policy.Name, user.Name)); err != nil {
		// Delivery is a collaborator concern; the grant stands.
		s.logger.Warn("assignment notification failed",
			"policy_id", policy.ID, "user_id", user.ID, "error", err)
	}

	entry := audit.Entry{
		OccurredAt:     now,
		OrganizationID: actor.OrganizationID,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		ActorLevel:     string(actor.Level),
		Action:         audit.ActionAssignCreated,
		Resource:       "policy_assignment",
		ResourceID:     policy.ID + ":" + user.ID,
		ResourceName:   policy.Name,
		NewState:       assignmentState(a),
		Summary: fmt.Sprintf("Assigned policy %q to %s. Justification: %s",
			policy.Name, user.Name, reason),
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		// Mutation and audit are one unit of work: undo the grant.
		s.metrics.recordAuditFailure()
		if _, derr := s.assignments.DeleteAssignment(ctx, a.OrganizationID, a.PolicyID, a.UserID); derr != nil {
			s.logger.Error("failed to undo unaudited assignment",
				"policy_id", a.PolicyID, "user_id", a.UserID, "error", derr)
		}
		return nil, fmt.Errorf("record assignment audit: %w", err)
	}

	s.logger.Info("policy assigned",
		"policy_id", policy.ID, "policy_name", policy.Name,
		"user_id", user.ID, "assigned_by", actor.ID)
	return a, nil
}

// Revoke removes the grant for (policy, user) and records the prior
// state in the audit trail. The grant's history stays in the trail.
func (s *AssignmentService) Revoke(ctx context.Context, actor access.Actor, policyID, userID string) error {
	if !actor.Level.AtLeast(assignerLevel) {
		return fmt.Errorf("revoking policies requires %s: %w", assignerLevel, access.ErrForbidden)
	}

	policy, err := s.policies.GetPolicy(ctx, actor.OrganizationID, policyID)
	if err != nil {
		return err
	}
	prior, err := s.assignments.DeleteAssignment(ctx, actor.OrganizationID, policyID, userID)
	if err != nil {
		return err
	}

	entry := audit.Entry{
		OccurredAt:     s.now(),
		OrganizationID: actor.OrganizationID,
		ActorID:        actor.ID,
		ActorName:      actor.Name,
		ActorLevel:     string(actor.Level),
		Action:         audit.ActionAssignRevoked,
		Resource:       "policy_assignment",
		ResourceID:     policyID + ":" + userID,
		ResourceName:   policy.Name,
		PreviousState:  assignmentState(prior),
		Summary:        fmt.Sprintf("Revoked policy %q from user %s", policy.Name, userID),
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.metrics.recordAuditFailure()
		if cerr := s.assignments.CreateAssignment(ctx, prior); cerr != nil {
			s.logger.Error("failed to restore unaudited revocation",
				"policy_id", policyID, "user_id", userID, "error", cerr)
		}
		return fmt.Errorf("record revocation audit: %w", err)
	}

	s.logger.Info("policy revoked",
		"policy_id", policyID, "user_id", userID, "revoked_by", actor.ID)
	return nil
}

// ListEffective returns the policies in force for a user: unexpired
// explicit grants plus approved policies whose DefaultLevel matches the
// user's hierarchy level, ordered by policy priority descending then
// AssignedAt ascending. The earliest grant wins priority ties.
func (s *AssignmentService) ListEffective(ctx context.Context, orgID, userID string, now time.Time) ([]access.EffectiveAssignment, error) {
	all, err := s.assignments.ListAssignmentsForUser(ctx, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	var result []access.EffectiveAssignment
	granted := make(map[string]bool, len(all))
	for i := range all {
		a := all[i]
		if !a.Effective(now) {
			continue
		}
		policy, err := s.policies.GetPolicy(ctx, orgID, a.PolicyID)
		if err != nil {
			if errors.Is(err, access.ErrNotFound) {
				// Policy deleted out from under the grant.
				continue
			}
			return nil, fmt.Errorf("load policy %s: %w", a.PolicyID, err)
		}
		if !policy.Effective() {
			continue
		}
		granted[policy.ID] = true
		result = append(result, access.EffectiveAssignment{Assignment: a, Policy: *policy})
	}

	attached, err := s.levelAttached(ctx, orgID, userID, granted)
	if err != nil {
		return nil, err
	}
	result = append(result, attached...)

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Policy.Priority != result[j].Policy.Priority {
			return result[i].Policy.Priority > result[j].Policy.Priority
		}
		return result[i].Assignment.AssignedAt.Before(result[j].Assignment.AssignedAt)
	})
	return result, nil
}

// levelAttached returns approved, active policies whose DefaultLevel
// matches the user's level and that are not already explicitly granted.
// These apply to everyone at the level without an assignment; the
// synthesized assignment carries the approval time so priority ties
// against explicit grants stay deterministic.
func (s *AssignmentService) levelAttached(ctx context.Context, orgID, userID string, granted map[string]bool) ([]access.EffectiveAssignment, error) {
	user, err := s.users.GetUser(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	policies, err := s.policies.ListPolicies(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}

	var result []access.EffectiveAssignment
	for i := range policies {
		p := policies[i]
		if p.DefaultLevel == "" || p.DefaultLevel != user.Level {
			continue
		}
		if granted[p.ID] || !p.Effective() {
			continue
		}
		attachedAt := p.CreatedAt
		if p.ApprovedAt != nil {
			attachedAt = *p.ApprovedAt
		}
		result = append(result, access.EffectiveAssignment{
			Assignment: access.Assignment{
				PolicyID:       p.ID,
				UserID:         userID,
				OrganizationID: orgID,
				AssignedAt:     attachedAt,
			},
			Policy: p,
		})
	}
	return result, nil
}

// fanOut computes who gets informed of a grant: the assignee and their
// team lead, when they have one.
func fanOut(user *access.User) []string {
	recipients := []string{user.ID}
	if user.TeamLeadID != "" && user.TeamLeadID != user.ID {
		recipients = append(recipients, user.TeamLeadID)
	}
	return recipients
}

// assignmentState flattens an assignment for audit persistence.
func assignmentState(a *access.Assignment) map[string]any {
	state := map[string]any{
		"policyId":      a.PolicyID,
		"userId":        a.UserID,
		"reason":        a.Reason,
		"assignedBy":    a.AssignedBy,
		"assignedAt":    a.AssignedAt,
		"notifiedUsers": a.NotifiedUsers,
	}
	if a.BusinessCase != "" {
		state["businessCase"] = a.BusinessCase
	}
	if a.ExpiresAt != nil {
		state["expiresAt"] = *a.ExpiresAt
	}
	return state
}
