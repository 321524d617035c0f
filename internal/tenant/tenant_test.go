package tenant_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/identity"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
	"github.com/tavle/tavle/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		tc.Terminate()
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	db.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func newResolver(profiles identity.ProfileFetcher) *tenant.Resolver {
	return tenant.NewResolver(testDB, profiles, testutil.TestLogger())
}

func seedOrg(t *testing.T) model.Organization {
	t.Helper()
	org, err := testDB.CreateOrganization(context.Background(), model.Organization{
		ID:   "org-" + uuid.NewString()[:8],
		Name: "Acme",
		Slug: "acme-" + uuid.NewString()[:8],
		Plan: model.PlanPro,
	})
	require.NoError(t, err)
	return org
}

// staticProfiles serves one canned profile for every lookup.
type staticProfiles struct {
	profile identity.Profile
}

func (s staticProfiles) GetUser(context.Context, string) (identity.Profile, error) {
	return s.profile, nil
}

func TestResolveProvisionsUserAndMembership(t *testing.T) {
	ctx := context.Background()
	org := seedOrg(t)
	r := newResolver(staticProfiles{identity.Profile{
		Email:     "jo@example.com",
		FirstName: "Jo",
		LastName:  "Doe",
	}})

	extID := "ext-" + uuid.NewString()
	tc, err := r.Resolve(ctx, identity.Claims{
		ExternalUserID:  extID,
		ExternalOrgID:   org.ID,
		ExternalOrgRole: "org:admin",
	})
	require.NoError(t, err)

	assert.Equal(t, org.ID, tc.OrgID)
	assert.Equal(t, model.RoleAdmin, tc.Role)
	assert.Equal(t, model.PlanPro, tc.Plan)
	assert.Equal(t, "jo@example.com", tc.User.Email)
	assert.Equal(t, "Jo Doe", tc.User.DisplayName)

	// The rows exist now.
	u, err := testDB.GetUserByExternalID(ctx, extID)
	require.NoError(t, err)
	m, err := testDB.GetMembership(ctx, u.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, m.Role)
	assert.True(t, m.IsActive)
}

func TestResolveStoredRoleWins(t *testing.T) {
	ctx := context.Background()
	org := seedOrg(t)
	r := newResolver(nil)

	extID := "ext-" + uuid.NewString()
	first, err := r.Resolve(ctx, identity.Claims{
		ExternalUserID:  extID,
		ExternalOrgID:   org.ID,
		ExternalOrgRole: "member",
	})
	require.NoError(t, err)
	require.Equal(t, model.RoleMember, first.Role)

	// Promote locally, then present a token that still claims MEMBER.
	require.NoError(t, testDB.SetMembershipRole(ctx, first.UserID, org.ID, model.RoleOwner))

	second, err := r.Resolve(ctx, identity.Claims{
		ExternalUserID:  extID,
		ExternalOrgID:   org.ID,
		ExternalOrgRole: "member",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, second.Role, "stored role is authoritative")
}

func TestResolveDeactivatedMembership(t *testing.T) {
	ctx := context.Background()
	org := seedOrg(t)
	r := newResolver(nil)

	extID := "ext-" + uuid.NewString()
	tc, err := r.Resolve(ctx, identity.Claims{ExternalUserID: extID, ExternalOrgID: org.ID})
	require.NoError(t, err)

	require.NoError(t, testDB.SetMembershipActive(ctx, tc.UserID, org.ID, false))

	_, err = r.Resolve(ctx, identity.Claims{ExternalUserID: extID, ExternalOrgID: org.ID})
	require.ErrorIs(t, err, tenant.ErrForbidden)
}

func TestResolveUnknownOrg(t *testing.T) {
	ctx := context.Background()
	r := newResolver(nil)

	// An org the platform has never seen resolves, but no membership is
	// healed into it and the context stays at the defaults.
	extID := "ext-" + uuid.NewString()
	tc, err := r.Resolve(ctx, identity.Claims{
		ExternalUserID:  extID,
		ExternalOrgID:   "org-never-seen",
		ExternalOrgRole: "org:owner",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, tc.Role)
	assert.Equal(t, model.PlanFree, tc.Plan)

	_, err = testDB.GetMembership(ctx, tc.UserID, "org-never-seen")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResolveIncompleteClaims(t *testing.T) {
	r := newResolver(nil)

	_, err := r.Resolve(context.Background(), identity.Claims{ExternalUserID: "ext-x"})
	require.ErrorIs(t, err, tenant.ErrUnauthenticated)

	_, err = r.Resolve(context.Background(), identity.Claims{ExternalOrgID: "org-x"})
	require.ErrorIs(t, err, tenant.ErrUnauthenticated)
}

func TestRequireRole(t *testing.T) {
	tc := tenant.Context{Role: model.RoleAdmin}

	assert.NoError(t, tenant.RequireRole(tc, model.RoleGuest))
	assert.NoError(t, tenant.RequireRole(tc, model.RoleAdmin))
	assert.ErrorIs(t, tenant.RequireRole(tc, model.RoleOwner), tenant.ErrForbidden)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := tenant.FromContext(context.Background())
	assert.False(t, ok)

	want := tenant.Context{OrgID: "org-1", UserID: uuid.New(), Role: model.RoleMember}
	ctx := tenant.WithContext(context.Background(), want)

	got, ok := tenant.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, want, got)
}
