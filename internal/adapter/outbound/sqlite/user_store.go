package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spokestack/accessctl/internal/domain/access"
)

// GetUser returns the user, org-scoped.
func (s *Store) GetUser(ctx context.Context, orgID, id string) (*access.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, email, department, level, team_lead_id, is_active
		FROM users WHERE organization_id = ? AND id = ?`, orgID, id)

	var u access.User
	var level string
	if err := row.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.Email,
		&u.Department, &level, &u.TeamLeadID, &u.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, access.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Level = access.PermissionLevel(level)
	return &u, nil
}

// PutUser inserts or replaces a user row. Identities are owned by the
// surrounding system; this is the sync entry point.
func (s *Store) PutUser(ctx context.Context, u *access.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, name, email, department, level, team_lead_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			level = excluded.level,
			team_lead_id = excluded.team_lead_id,
			is_active = excluded.is_active`,
		u.ID, u.OrganizationID, u.Name, u.Email, u.Department,
		string(u.Level), u.TeamLeadID, u.IsActive)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}
