// Package tenant resolves verified identity claims into a local tenant
// context and enforces role-based access on it.
//
// Resolution is self-healing for users and memberships: the identity
// provider is the source of truth for who exists, so local rows that
// are missing get provisioned on first sight instead of failing the
// request. Organizations are never provisioned from a token; an org the
// platform does not know stays unknown, and downstream ownership checks
// block everything inside it.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tavle/tavle/internal/identity"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
)

var (
	// ErrUnauthenticated means the request carries no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller is known but not allowed.
	ErrForbidden = errors.New("forbidden")
)

// Context is the resolved tenant identity of one request. Every
// downstream operation receives its org scope from here, never from
// request payloads.
type Context struct {
	OrgID  string
	UserID uuid.UUID
	User   model.User
	Role   model.Role
	Plan   model.Plan
}

// Resolver turns identity claims into tenant contexts, provisioning
// missing local users and memberships as it goes.
type Resolver struct {
	db       *storage.DB
	profiles identity.ProfileFetcher
	logger   *slog.Logger

	// Collapses concurrent first-sight provisioning of the same
	// principal into one flight.
	group singleflight.Group
}

func NewResolver(db *storage.DB, profiles identity.ProfileFetcher, logger *slog.Logger) *Resolver {
	if profiles == nil {
		profiles = identity.NoopProfileFetcher{}
	}
	return &Resolver{db: db, profiles: profiles, logger: logger}
}

// Resolve maps claims onto local records. A missing user or membership
// row is created; a deactivated membership resolves to ErrForbidden.
// When the membership already exists its stored role wins over the
// token's role claim.
func (r *Resolver) Resolve(ctx context.Context, claims identity.Claims) (Context, error) {
	if claims.ExternalUserID == "" || claims.ExternalOrgID == "" {
		return Context{}, fmt.Errorf("tenant: incomplete claims: %w", ErrUnauthenticated)
	}

	key := claims.ExternalUserID + "|" + claims.ExternalOrgID
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolve(ctx, claims)
	})
	if err != nil {
		return Context{}, err
	}
	return v.(Context), nil
}

func (r *Resolver) resolve(ctx context.Context, claims identity.Claims) (Context, error) {
	user, err := r.ensureUser(ctx, claims.ExternalUserID)
	if err != nil {
		return Context{}, err
	}

	tc := Context{
		OrgID:  claims.ExternalOrgID,
		UserID: user.ID,
		User:   user,
		Role:   model.RoleMember,
		Plan:   model.PlanFree,
	}

	org, err := r.db.GetOrganization(ctx, claims.ExternalOrgID)
	if err != nil {
		// The org is not one of ours. No membership is healed into a
		// tenant nobody owns; the member-role context proceeds and
		// ownership joins deny every entity inside it.
		if errors.Is(err, storage.ErrNotFound) {
			return tc, nil
		}
		return Context{}, err
	}
	tc.Plan = org.Plan

	m, err := r.ensureMembership(ctx, user.ID, org.ID, model.NormalizeRole(claims.ExternalOrgRole))
	if err != nil {
		return Context{}, err
	}
	if !m.IsActive {
		return Context{}, fmt.Errorf("tenant: membership deactivated: %w", ErrForbidden)
	}
	// The stored role is authoritative; the token's role claim only
	// seeds the healing insert above.
	tc.Role = m.Role
	return tc, nil
}

func (r *Resolver) ensureUser(ctx context.Context, externalID string) (model.User, error) {
	user, err := r.db.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.User{}, err
	}

	u := model.User{
		ID:                 uuid.New(),
		ExternalIdentityID: externalID,
		Email:              externalID + "@provisioned.local",
		DisplayName:        externalID,
	}
	if profile, perr := r.profiles.GetUser(ctx, externalID); perr == nil {
		if profile.Email != "" {
			u.Email = profile.Email
		}
		if name := profile.DisplayName(); name != "" {
			u.DisplayName = name
		}
		if profile.AvatarURL != "" {
			u.AvatarURL = &profile.AvatarURL
		}
	} else {
		r.logger.Warn("profile fetch failed, using placeholder", "external_id", externalID, "error", perr)
	}

	r.logger.Info("provisioning user", "external_id", externalID)
	user, err = r.db.CreateUser(ctx, u)
	if err == nil {
		return user, nil
	}
	// Lost a provisioning race; the winner's row is authoritative.
	if errors.Is(err, storage.ErrConflict) {
		user, err = r.db.GetUserByExternalID(ctx, externalID)
		if errors.Is(err, storage.ErrNotFound) {
			return model.User{}, fmt.Errorf("tenant: user vanished after conflict: %w", ErrUnauthenticated)
		}
		return user, err
	}
	return model.User{}, err
}

func (r *Resolver) ensureMembership(ctx context.Context, userID uuid.UUID, orgID string, role model.Role) (model.Membership, error) {
	m, err := r.db.GetMembership(ctx, userID, orgID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.Membership{}, err
	}

	r.logger.Info("provisioning membership", "user_id", userID, "org_id", orgID, "role", role)
	m, err = r.db.CreateMembership(ctx, model.Membership{
		UserID:   userID,
		OrgID:    orgID,
		Role:     role,
		IsActive: true,
		JoinedAt: time.Now().UTC(),
	})
	if err == nil {
		return m, nil
	}
	if errors.Is(err, storage.ErrConflict) {
		return r.db.GetMembership(ctx, userID, orgID)
	}
	return model.Membership{}, err
}

// RequireRole returns ErrForbidden when the context's role ranks below
// min.
func RequireRole(tc Context, min model.Role) error {
	if !model.RoleAtLeast(tc.Role, min) {
		return fmt.Errorf("tenant: requires at least %s: %w", min, ErrForbidden)
	}
	return nil
}
