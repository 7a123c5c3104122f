package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// assignmentKey uniquely identifies a grant.
type assignmentKey struct {
	policyID string
	userID   string
}

// AssignmentStore implements access.AssignmentStore with an in-memory map.
// The map key enforces (policy, user) uniqueness under the mutex so a
// concurrent grant race produces one winner and one ErrConflict.
type AssignmentStore struct {
	assignments map[assignmentKey]*access.Assignment
	mu          sync.RWMutex
}

// NewAssignmentStore creates a new in-memory assignment store.
func NewAssignmentStore() *AssignmentStore {
	return &AssignmentStore{
		assignments: make(map[assignmentKey]*access.Assignment),
	}
}

// CreateAssignment persists a grant.
// Returns access.ErrConflict when the (policy, user) pair exists.
func (s *AssignmentStore) CreateAssignment(ctx context.Context, a *access.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{policyID: a.PolicyID, userID: a.UserID}
	if _, ok := s.assignments[key]; ok {
		return fmt.Errorf("assignment (%s, %s): %w", a.PolicyID, a.UserID, access.ErrConflict)
	}
	s.assignments[key] = copyAssignment(a)
	return nil
}

// GetAssignment returns the grant for (policy, user).
func (s *AssignmentStore) GetAssignment(ctx context.Context, orgID, policyID, userID string) (*access.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentKey{policyID: policyID, userID: userID}]
	if !ok || a.OrganizationID != orgID {
		return nil, fmt.Errorf("assignment (%s, %s): %w", policyID, userID, access.ErrNotFound)
	}
	return copyAssignment(a), nil
}

// DeleteAssignment removes the grant, returning its prior state.
func (s *AssignmentStore) DeleteAssignment(ctx context.Context, orgID, policyID, userID string) (*access.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assignmentKey{policyID: policyID, userID: userID}
	a, ok := s.assignments[key]
	if !ok || a.OrganizationID != orgID {
		return nil, fmt.Errorf("assignment (%s, %s): %w", policyID, userID, access.ErrNotFound)
	}
	delete(s.assignments, key)
	return copyAssignment(a), nil
}

// ListAssignmentsForUser returns every grant for the user, expired included.
func (s *AssignmentStore) ListAssignmentsForUser(ctx context.Context, orgID, userID string) ([]access.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []access.Assignment
	for _, a := range s.assignments {
		if a.OrganizationID == orgID && a.UserID == userID {
			result = append(result, *copyAssignment(a))
		}
	}
	return result, nil
}

// ListAssignmentsForPolicy returns every grant against a policy.
func (s *AssignmentStore) ListAssignmentsForPolicy(ctx context.Context, orgID, policyID string) ([]access.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []access.Assignment
	for _, a := range s.assignments {
		if a.OrganizationID == orgID && a.PolicyID == policyID {
			result = append(result, *copyAssignment(a))
		}
	}
	return result, nil
}

// DeleteForPolicy removes every grant against a policy. Used by the admin
// service to cascade a policy deletion.
func (s *AssignmentStore) DeleteForPolicy(ctx context.Context, orgID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.assignments {
		if a.OrganizationID == orgID && a.PolicyID == policyID {
			delete(s.assignments, key)
		}
	}
	return nil
}

func copyAssignment(a *access.Assignment) *access.Assignment {
	cp := *a
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		cp.ExpiresAt = &t
	}
	cp.NotifiedUsers = append([]string(nil), a.NotifiedUsers...)
	return &cp
}
