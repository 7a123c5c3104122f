// Package memory provides in-memory store implementations.
// Thread-safe for concurrent access. For development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// PolicyStore implements access.PolicyStore with in-memory maps.
type PolicyStore struct {
	policies map[string]*access.Policy        // ID -> Policy
	versions map[string][]access.PolicyVersion // policy ID -> snapshots
	mu       sync.RWMutex
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		policies: make(map[string]*access.Policy),
		versions: make(map[string][]access.PolicyVersion),
	}
}

// CreatePolicy persists a new policy.
// Returns access.ErrConflict when the (organization, name) pair exists.
func (s *PolicyStore) CreatePolicy(ctx context.Context, p *access.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.policies {
		if existing.OrganizationID == p.OrganizationID && existing.Name == p.Name {
			return fmt.Errorf("policy name %q: %w", p.Name, access.ErrConflict)
		}
	}
	s.policies[p.ID] = copyPolicy(p)
	return nil
}

// GetPolicy returns a policy with its rules.
// Returns access.ErrNotFound when absent or out-of-organization.
func (s *PolicyStore) GetPolicy(ctx context.Context, orgID, id string) (*access.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok || p.OrganizationID != orgID {
		return nil, fmt.Errorf("policy %s: %w", id, access.ErrNotFound)
	}
	return copyPolicy(p), nil
}

// GetPolicyByName looks a policy up by its unique name.
func (s *PolicyStore) GetPolicyByName(ctx context.Context, orgID, name string) (*access.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.policies {
		if p.OrganizationID == orgID && p.Name == name {
			return copyPolicy(p), nil
		}
	}
	return nil, fmt.Errorf("policy %q: %w", name, access.ErrNotFound)
}

// ListPolicies returns the organization's policies by priority descending.
func (s *PolicyStore) ListPolicies(ctx context.Context, orgID string) ([]access.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []access.Policy
	for _, p := range s.policies {
		if p.OrganizationID == orgID {
			result = append(result, *copyPolicy(p))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdatePolicy overwrites policy fields and rules.
func (s *PolicyStore) UpdatePolicy(ctx context.Context, p *access.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.policies[p.ID]
	if !ok || existing.OrganizationID != p.OrganizationID {
		return fmt.Errorf("policy %s: %w", p.ID, access.ErrNotFound)
	}
	for id, other := range s.policies {
		if id != p.ID && other.OrganizationID == p.OrganizationID && other.Name == p.Name {
			return fmt.Errorf("policy name %q: %w", p.Name, access.ErrConflict)
		}
	}
	s.policies[p.ID] = copyPolicy(p)
	return nil
}

// DeletePolicy removes a policy. Cascading to assignments happens in the
// paired AssignmentStore via DeleteForPolicy; the relational adapter does
// it with foreign keys.
func (s *PolicyStore) DeletePolicy(ctx context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if !ok || p.OrganizationID != orgID {
		return fmt.Errorf("policy %s: %w", id, access.ErrNotFound)
	}
	delete(s.policies, id)
	delete(s.versions, id)
	return nil
}

// SaveVersion stores an approval snapshot, replacing any snapshot with
// the same version number.
func (s *PolicyStore) SaveVersion(ctx context.Context, v *access.PolicyVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *v
	cp.RulesSnapshot = copyRules(v.RulesSnapshot)
	for i, existing := range s.versions[v.PolicyID] {
		if existing.Version == v.Version {
			s.versions[v.PolicyID][i] = cp
			return nil
		}
	}
	s.versions[v.PolicyID] = append(s.versions[v.PolicyID], cp)
	return nil
}

// ListVersions returns snapshots newest first.
func (s *PolicyStore) ListVersions(ctx context.Context, orgID, policyID string) ([]access.PolicyVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []access.PolicyVersion
	for _, v := range s.versions[policyID] {
		if v.OrganizationID == orgID {
			result = append(result, v)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Version > result[j].Version })
	return result, nil
}

// copyPolicy deep-copies a policy to prevent mutation through shared slices.
func copyPolicy(p *access.Policy) *access.Policy {
	cp := *p
	cp.Rules = copyRules(p.Rules)
	return &cp
}

func copyRules(rules []access.Rule) []access.Rule {
	if rules == nil {
		return nil
	}
	out := make([]access.Rule, len(rules))
	for i, r := range rules {
		out[i] = r
		if r.ConditionParams != nil {
			params := make(map[string]string, len(r.ConditionParams))
			for k, v := range r.ConditionParams {
				params[k] = v
			}
			out[i].ConditionParams = params
		}
		out[i].AllowedFields = append([]string(nil), r.AllowedFields...)
		out[i].DeniedFields = append([]string(nil), r.DeniedFields...)
	}
	return out
}
