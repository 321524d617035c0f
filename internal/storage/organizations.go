package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/model"
)

// CreateOrganization inserts a new organization. Orgs are provisioned from
// the identity provider's webhook/sync path, not from user requests.
func (db *DB) CreateOrganization(ctx context.Context, org model.Organization) (model.Organization, error) {
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	if org.Plan == "" {
		org.Plan = model.PlanFree
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, slug, plan, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		org.ID, org.Name, org.Slug, org.Plan, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Organization{}, fmt.Errorf("storage: create organization: %w", ErrConflict)
		}
		return model.Organization{}, fmt.Errorf("storage: create organization: %w", err)
	}
	return org, nil
}

// GetOrganization retrieves a live (non-deleted) org by id.
func (db *DB) GetOrganization(ctx context.Context, id string) (model.Organization, error) {
	var org model.Organization
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, slug, plan, created_at, updated_at, deleted_at
		 FROM organizations WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&org.ID, &org.Name, &org.Slug, &org.Plan, &org.CreatedAt, &org.UpdatedAt, &org.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Organization{}, fmt.Errorf("storage: get organization: %w", ErrNotFound)
		}
		return model.Organization{}, fmt.Errorf("storage: get organization: %w", err)
	}
	return org, nil
}

// OrganizationExists reports whether a live org row exists for id.
// The tenant resolver uses this to decide whether membership self-healing
// may create a row.
func (db *DB) OrganizationExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1 AND deleted_at IS NULL)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: organization exists: %w", err)
	}
	return exists, nil
}

// SetOrganizationPlan switches an org's subscription tier.
func (db *DB) SetOrganizationPlan(ctx context.Context, id string, plan model.Plan) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE organizations SET plan = $1, updated_at = now() WHERE id = $2 AND deleted_at IS NULL`,
		plan, id,
	)
	if err != nil {
		return fmt.Errorf("storage: set organization plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: set organization plan: %w", ErrNotFound)
	}
	return nil
}

// SoftDeleteOrganization marks an org deleted. Downstream entities stay in
// place but become unreachable because every query filters deleted orgs.
func (db *DB) SoftDeleteOrganization(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE organizations SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: soft delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: soft delete organization: %w", ErrNotFound)
	}
	return nil
}
