package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/model"
)

// CreateMembership inserts a membership row. Returns ErrConflict when the
// (user, org) pair already exists — the self-healing path re-reads then.
func (db *DB) CreateMembership(ctx context.Context, m model.Membership) (model.Membership, error) {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO memberships (user_id, org_id, role, is_active, joined_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.UserID, m.OrgID, m.Role, m.IsActive, m.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Membership{}, fmt.Errorf("storage: create membership: %w", ErrConflict)
		}
		return model.Membership{}, fmt.Errorf("storage: create membership: %w", err)
	}
	return m, nil
}

// GetMembership retrieves the membership for (userID, orgID).
func (db *DB) GetMembership(ctx context.Context, userID uuid.UUID, orgID string) (model.Membership, error) {
	var m model.Membership
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, org_id, role, is_active, joined_at
		 FROM memberships WHERE user_id = $1 AND org_id = $2`,
		userID, orgID,
	).Scan(&m.UserID, &m.OrgID, &m.Role, &m.IsActive, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Membership{}, fmt.Errorf("storage: get membership: %w", ErrNotFound)
		}
		return model.Membership{}, fmt.Errorf("storage: get membership: %w", err)
	}
	return m, nil
}

// SetMembershipRole changes a member's role.
func (db *DB) SetMembershipRole(ctx context.Context, userID uuid.UUID, orgID string, role model.Role) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE memberships SET role = $1 WHERE user_id = $2 AND org_id = $3`,
		role, userID, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: set membership role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: set membership role: %w", ErrNotFound)
	}
	return nil
}

// SetMembershipActive toggles a member's access without losing their role.
func (db *DB) SetMembershipActive(ctx context.Context, userID uuid.UUID, orgID string, active bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE memberships SET is_active = $1 WHERE user_id = $2 AND org_id = $3`,
		active, userID, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: set membership active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: set membership active: %w", ErrNotFound)
	}
	return nil
}

// ListMemberships returns all memberships of an org.
func (db *DB) ListMemberships(ctx context.Context, orgID string) ([]model.Membership, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT user_id, org_id, role, is_active, joined_at
		 FROM memberships WHERE org_id = $1 ORDER BY joined_at`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list memberships: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.UserID, &m.OrgID, &m.Role, &m.IsActive, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("storage: scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list memberships: %w", err)
	}
	return out, nil
}
