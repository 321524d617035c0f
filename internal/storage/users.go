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

// CreateUser inserts a user row. Returns ErrConflict when another request
// already provisioned the same external identity — the caller re-reads.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, external_identity_id, email, display_name, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.ExternalIdentityID, u.Email, u.DisplayName, u.AvatarURL, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("storage: create user: %w", ErrConflict)
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by local id.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	return db.scanUser(ctx,
		`SELECT id, external_identity_id, email, display_name, avatar_url, created_at
		 FROM users WHERE id = $1`, id)
}

// GetUserByExternalID retrieves a user by the identity provider's id.
func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (model.User, error) {
	return db.scanUser(ctx,
		`SELECT id, external_identity_id, email, display_name, avatar_url, created_at
		 FROM users WHERE external_identity_id = $1`, externalID)
}

func (db *DB) scanUser(ctx context.Context, query string, arg any) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.ExternalIdentityID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: get user: %w", ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// UserIsMember reports whether userID has an active membership in orgID.
// Automation ASSIGN_MEMBER and card assignee updates verify targets here.
func (db *DB) UserIsMember(ctx context.Context, orgID string, userID uuid.UUID) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM memberships
		     WHERE user_id = $1 AND org_id = $2 AND is_active
		 )`, userID, orgID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("storage: user is member: %w", err)
	}
	return ok, nil
}
