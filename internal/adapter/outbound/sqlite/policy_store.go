package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spokestack/accessctl/internal/domain/access"
)

const policyColumns = `id, organization_id, name, description, default_level, status,
	priority, version, is_active, rejection_reason, created_by, approved_by,
	submitted_at, approved_at, rejected_at, created_at, updated_at`

// CreatePolicy persists a policy and its rules in one transaction.
func (s *Store) CreatePolicy(ctx context.Context, p *access.Policy) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO policies (`+policyColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.OrganizationID, p.Name, p.Description, string(p.DefaultLevel),
			string(p.Status), p.Priority, p.Version, p.IsActive, p.RejectionReason,
			p.CreatedBy, p.ApprovedBy, p.SubmittedAt, p.ApprovedAt, p.RejectedAt,
			p.CreatedAt, p.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("policy %q in organization %s: %w", p.Name, p.OrganizationID, access.ErrConflict)
			}
			return fmt.Errorf("insert policy: %w", err)
		}
		return insertRules(ctx, tx, p.ID, p.Rules)
	})
}

// GetPolicy returns a policy with its rules in stored order.
func (s *Store) GetPolicy(ctx context.Context, orgID, id string) (*access.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE organization_id = ? AND id = ?`, orgID, id)
	return s.scanPolicyWithRules(ctx, row, id)
}

// GetPolicyByName looks a policy up by its organization-unique name.
func (s *Store) GetPolicyByName(ctx context.Context, orgID, name string) (*access.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE organization_id = ? AND name = ?`, orgID, name)
	return s.scanPolicyWithRules(ctx, row, name)
}

// ListPolicies returns the organization's policies by priority
// descending, with rules loaded.
func (s *Store) ListPolicies(ctx context.Context, orgID string) ([]access.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+` FROM policies
		WHERE organization_id = ?
		ORDER BY priority DESC, name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []access.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	for i := range out {
		rules, err := s.loadRules(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Rules = rules
	}
	return out, nil
}

// UpdatePolicy overwrites the policy row and replaces its rule set.
func (s *Store) UpdatePolicy(ctx context.Context, p *access.Policy) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE policies SET
				name = ?, description = ?, default_level = ?, status = ?,
				priority = ?, version = ?, is_active = ?, rejection_reason = ?,
				approved_by = ?, submitted_at = ?, approved_at = ?, rejected_at = ?,
				updated_at = ?
			WHERE organization_id = ? AND id = ?`,
			p.Name, p.Description, string(p.DefaultLevel), string(p.Status),
			p.Priority, p.Version, p.IsActive, p.RejectionReason,
			p.ApprovedBy, p.SubmittedAt, p.ApprovedAt, p.RejectedAt,
			p.UpdatedAt, p.OrganizationID, p.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("policy %q in organization %s: %w", p.Name, p.OrganizationID, access.ErrConflict)
			}
			return fmt.Errorf("update policy: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update policy: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("policy %s: %w", p.ID, access.ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE policy_id = ?`, p.ID); err != nil {
			return fmt.Errorf("clear rules: %w", err)
		}
		return insertRules(ctx, tx, p.ID, p.Rules)
	})
}

// DeletePolicy removes a policy; rules and assignments cascade via
// foreign keys.
func (s *Store) DeletePolicy(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM policies WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("policy %s: %w", id, access.ErrNotFound)
	}
	return nil
}

// SaveVersion stores an approval snapshot, replacing any row with the
// same (policy, version) pair.
func (s *Store) SaveVersion(ctx context.Context, v *access.PolicyVersion) error {
	snapshot, err := marshalJSON(v.RulesSnapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_versions (policy_id, organization_id, version, name,
			description, default_level, priority, rules_snapshot, change_summary,
			changed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			default_level = excluded.default_level,
			priority = excluded.priority,
			rules_snapshot = excluded.rules_snapshot,
			change_summary = excluded.change_summary,
			changed_by = excluded.changed_by,
			created_at = excluded.created_at`,
		v.PolicyID, v.OrganizationID, v.Version, v.Name, v.Description,
		string(v.DefaultLevel), v.Priority, snapshot, v.ChangeSummary,
		v.ChangedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// ListVersions returns approval snapshots, newest first.
func (s *Store) ListVersions(ctx context.Context, orgID, policyID string) ([]access.PolicyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, organization_id, version, name, description,
			default_level, priority, rules_snapshot, change_summary, changed_by, created_at
		FROM policy_versions
		WHERE organization_id = ? AND policy_id = ?
		ORDER BY version DESC`, orgID, policyID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []access.PolicyVersion
	for rows.Next() {
		var v access.PolicyVersion
		var level, snapshot string
		if err := rows.Scan(&v.PolicyID, &v.OrganizationID, &v.Version, &v.Name,
			&v.Description, &level, &v.Priority, &snapshot, &v.ChangeSummary,
			&v.ChangedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.DefaultLevel = access.PermissionLevel(level)
		if err := unmarshalJSON(snapshot, &v.RulesSnapshot); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return out, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanPolicy.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*access.Policy, error) {
	var p access.Policy
	var level, status string
	var submitted, approved, rejected sql.NullTime
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description,
		&level, &status, &p.Priority, &p.Version, &p.IsActive, &p.RejectionReason,
		&p.CreatedBy, &p.ApprovedBy, &submitted, &approved, &rejected,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DefaultLevel = access.PermissionLevel(level)
	p.Status = access.PolicyStatus(status)
	if submitted.Valid {
		t := submitted.Time
		p.SubmittedAt = &t
	}
	if approved.Valid {
		t := approved.Time
		p.ApprovedAt = &t
	}
	if rejected.Valid {
		t := rejected.Time
		p.RejectedAt = &t
	}
	return &p, nil
}

func (s *Store) scanPolicyWithRules(ctx context.Context, row *sql.Row, ref string) (*access.Policy, error) {
	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("policy %s: %w", ref, access.ErrNotFound)
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	rules, err := s.loadRules(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Rules = rules
	return p, nil
}

func (s *Store) loadRules(ctx context.Context, policyID string) ([]access.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, resource, action, effect, condition_type,
			condition_params, allowed_fields, denied_fields, is_active, position, created_at
		FROM rules WHERE policy_id = ? ORDER BY position ASC`, policyID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var out []access.Rule
	for rows.Next() {
		var r access.Rule
		var effect, ct, params, allowed, denied string
		if err := rows.Scan(&r.ID, &r.PolicyID, &r.Resource, &r.Action, &effect,
			&ct, &params, &allowed, &denied, &r.IsActive, &r.Position, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Effect = access.Effect(effect)
		r.ConditionType = access.ConditionType(ct)
		if err := unmarshalJSON(params, &r.ConditionParams); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(allowed, &r.AllowedFields); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(denied, &r.DeniedFields); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return out, nil
}

func insertRules(ctx context.Context, tx *sql.Tx, policyID string, rules []access.Rule) error {
	for _, r := range rules {
		params, err := marshalJSON(r.ConditionParams)
		if err != nil {
			return err
		}
		allowed, err := marshalJSON(r.AllowedFields)
		if err != nil {
			return err
		}
		denied, err := marshalJSON(r.DeniedFields)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rules (id, policy_id, resource, action, effect,
				condition_type, condition_params, allowed_fields, denied_fields,
				is_active, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, policyID, r.Resource, r.Action, string(r.Effect),
			string(r.ConditionType), params, allowed, denied,
			r.IsActive, r.Position, r.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("rule %s/%s on policy %s: %w", r.Resource, r.Action, policyID, access.ErrConflict)
			}
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return nil
}
