package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/spokestack/accessctl/internal/domain/audit"
)

// Record appends an audit entry. Entries are immutable; there is no
// update or delete path.
func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	var previous, next sql.NullString
	if e.PreviousState != nil {
		data, err := marshalJSON(e.PreviousState)
		if err != nil {
			return err
		}
		previous = sql.NullString{String: data, Valid: true}
	}
	if e.NewState != nil {
		data, err := marshalJSON(e.NewState)
		if err != nil {
			return err
		}
		next = sql.NullString{String: data, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, occurred_at, organization_id, actor_id,
			actor_name, actor_level, action, resource, resource_id, resource_name,
			previous_state, new_state, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OccurredAt, e.OrganizationID, e.ActorID, e.ActorName,
		e.ActorLevel, e.Action, e.Resource, e.ResourceID, e.ResourceName,
		previous, next, e.Summary)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := `
		SELECT id, occurred_at, organization_id, actor_id, actor_name,
			actor_level, action, resource, resource_id, resource_name,
			previous_state, new_state, summary
		FROM audit_entries WHERE 1=1`
	var args []any
	if f.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, f.OrganizationID)
	}
	if f.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Resource != "" {
		query += " AND resource = ?"
		args = append(args, f.Resource)
	}
	if f.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, f.ResourceID)
	}
	if !f.Since.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND occurred_at <= ?"
		args = append(args, f.Until)
	}
	query += " ORDER BY occurred_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var previous, next sql.NullString
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.OrganizationID, &e.ActorID,
			&e.ActorName, &e.ActorLevel, &e.Action, &e.Resource, &e.ResourceID,
			&e.ResourceName, &previous, &next, &e.Summary); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if previous.Valid {
			if err := unmarshalJSON(previous.String, &e.PreviousState); err != nil {
				return nil, err
			}
		}
		if next.Valid {
			if err := unmarshalJSON(next.String, &e.NewState); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	return out, nil
}
