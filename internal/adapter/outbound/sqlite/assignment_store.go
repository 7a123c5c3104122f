package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spokestack/accessctl/internal/domain/access"
)

const assignmentColumns = `policy_id, user_id, organization_id, reason,
	business_case, assigned_by, assigned_at, expires_at, notified_users`

// CreateAssignment persists a grant. The (policy, user) primary key
// makes concurrent duplicate grants resolve to one winner.
func (s *Store) CreateAssignment(ctx context.Context, a *access.Assignment) error {
	notified, err := marshalJSON(a.NotifiedUsers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PolicyID, a.UserID, a.OrganizationID, a.Reason, a.BusinessCase,
		a.AssignedBy, a.AssignedAt, a.ExpiresAt, notified)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("assignment %s/%s: %w", a.PolicyID, a.UserID, access.ErrConflict)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// GetAssignment returns the grant for (policy, user).
func (s *Store) GetAssignment(ctx context.Context, orgID, policyID, userID string) (*access.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE organization_id = ? AND policy_id = ? AND user_id = ?`,
		orgID, policyID, userID)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment %s/%s: %w", policyID, userID, access.ErrNotFound)
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	return a, nil
}

// DeleteAssignment removes the grant and returns its prior state.
func (s *Store) DeleteAssignment(ctx context.Context, orgID, policyID, userID string) (*access.Assignment, error) {
	var prior *access.Assignment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+assignmentColumns+` FROM assignments
			WHERE organization_id = ? AND policy_id = ? AND user_id = ?`,
			orgID, policyID, userID)
		a, err := scanAssignment(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("assignment %s/%s: %w", policyID, userID, access.ErrNotFound)
			}
			return fmt.Errorf("scan assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM assignments
			WHERE organization_id = ? AND policy_id = ? AND user_id = ?`,
			orgID, policyID, userID); err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		prior = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

// ListAssignmentsForUser returns every grant for the user, expired ones
// included.
func (s *Store) ListAssignmentsForUser(ctx context.Context, orgID, userID string) ([]access.Assignment, error) {
	return s.listAssignments(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE organization_id = ? AND user_id = ?
		ORDER BY assigned_at ASC`, orgID, userID)
}

// ListAssignmentsForPolicy returns every grant against a policy.
func (s *Store) ListAssignmentsForPolicy(ctx context.Context, orgID, policyID string) ([]access.Assignment, error) {
	return s.listAssignments(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE organization_id = ? AND policy_id = ?
		ORDER BY assigned_at ASC`, orgID, policyID)
}

func (s *Store) listAssignments(ctx context.Context, query string, args ...any) ([]access.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []access.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return out, nil
}

func scanAssignment(row rowScanner) (*access.Assignment, error) {
	var a access.Assignment
	var expires sql.NullTime
	var notified string
	if err := row.Scan(&a.PolicyID, &a.UserID, &a.OrganizationID, &a.Reason,
		&a.BusinessCase, &a.AssignedBy, &a.AssignedAt, &expires, &notified); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		a.ExpiresAt = &t
	}
	if err := unmarshalJSON(notified, &a.NotifiedUsers); err != nil {
		return nil, err
	}
	return &a, nil
}
