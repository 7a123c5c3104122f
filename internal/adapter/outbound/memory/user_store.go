package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// UserStore implements access.UserStore with an in-memory map.
type UserStore struct {
	users map[string]*access.User
	mu    sync.RWMutex
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*access.User)}
}

// AddUser adds or replaces a user (for testing/seeding).
func (s *UserStore) AddUser(u *access.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// PutUser inserts or replaces a user. It mirrors the relational store's
// identity sync entry point.
func (s *UserStore) PutUser(ctx context.Context, u *access.User) error {
	s.AddUser(u)
	return nil
}

// GetUser returns the user, or access.ErrNotFound when absent or
// out-of-organization.
func (s *UserStore) GetUser(ctx context.Context, orgID, id string) (*access.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || u.OrganizationID != orgID {
		return nil, fmt.Errorf("user %s: %w", id, access.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}
