package action_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/ratelimit"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
)

type titledInput struct {
	Title string
}

func (in titledInput) Validate() model.FieldErrors {
	fe := model.FieldErrors{}
	if in.Title == "" {
		fe["title"] = "Title is required"
	}
	return fe
}

func memberCtx() tenant.Context {
	return tenant.Context{
		OrgID:  "org-1",
		UserID: uuid.New(),
		Role:   model.RoleMember,
		Plan:   model.PlanFree,
	}
}

func testPipeline(l ratelimit.Limiter) *action.Pipeline {
	return action.NewPipeline(l, "demo-org-id", slog.New(slog.DiscardHandler))
}

func TestRunSuccess(t *testing.T) {
	p := testPipeline(ratelimit.NoopLimiter{})

	res := action.Run(context.Background(), p, memberCtx(), "create-card", model.RoleMember,
		titledInput{Title: "hello"},
		func(ctx context.Context, tc tenant.Context, in titledInput) (string, error) {
			return in.Title + "!", nil
		})

	require.NotNil(t, res.Data)
	assert.Equal(t, "hello!", *res.Data)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.FieldErrors)
}

func TestRunValidationShortCircuits(t *testing.T) {
	p := testPipeline(ratelimit.NoopLimiter{})
	called := false

	res := action.Run(context.Background(), p, memberCtx(), "create-card", model.RoleMember,
		titledInput{},
		func(ctx context.Context, tc tenant.Context, in titledInput) (string, error) {
			called = true
			return "", nil
		})

	assert.False(t, called)
	assert.Nil(t, res.Data)
	assert.Contains(t, res.FieldErrors["title"], "Title is required")
}

func TestRunRoleGate(t *testing.T) {
	p := testPipeline(ratelimit.NoopLimiter{})
	tc := memberCtx()
	tc.Role = model.RoleGuest

	res := action.Run(context.Background(), p, tc, "delete-board", model.RoleAdmin,
		titledInput{Title: "x"},
		func(ctx context.Context, tc tenant.Context, in titledInput) (string, error) {
			t.Fatal("handler must not run")
			return "", nil
		})

	assert.Equal(t, "You do not have permission to perform this action.", res.Error)
}

func TestRunDemoOrgBlocked(t *testing.T) {
	p := testPipeline(ratelimit.NoopLimiter{})
	tc := memberCtx()
	tc.OrgID = "demo-org-id"

	res := action.Run(context.Background(), p, tc, "create-card", model.RoleMember,
		titledInput{Title: "x"},
		func(ctx context.Context, tc tenant.Context, in titledInput) (string, error) {
			t.Fatal("handler must not run for the demo org")
			return "", nil
		})

	assert.Equal(t, "Not available in demo mode.", res.Error)
}

func TestRunRateLimited(t *testing.T) {
	lim := ratelimit.NewMemoryLimiter(map[string]int{"ping": 2})
	defer lim.Close()
	p := testPipeline(lim)
	tc := memberCtx()

	for i := 0; i < 2; i++ {
		res := action.Run(context.Background(), p, tc, "ping", model.RoleGuest,
			titledInput{Title: "x"},
			func(ctx context.Context, tc tenant.Context, in titledInput) (int, error) {
				return i, nil
			})
		require.NotNil(t, res.Data, "request %d should pass", i)
	}

	res := action.Run(context.Background(), p, tc, "ping", model.RoleGuest,
		titledInput{Title: "x"},
		func(ctx context.Context, tc tenant.Context, in titledInput) (int, error) {
			t.Fatal("handler must not run when limited")
			return 0, nil
		})
	assert.Contains(t, res.Error, "Too many requests")
}

func TestRunErrorMapping(t *testing.T) {
	p := testPipeline(ratelimit.NoopLimiter{})
	tc := memberCtx()

	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("storage: get card: %w", storage.ErrNotFound), "Not found."},
		{fmt.Errorf("storage: add reaction: %w", storage.ErrConflict), "Already exists."},
		{fmt.Errorf("storage: create board: %w", storage.ErrLimitExceeded), "Plan limit reached. Upgrade to create more."},
		{fmt.Errorf("storage: reorder: %w", storage.ErrForeignItems), "Not found."},
		{tenant.ErrForbidden, "You do not have permission to perform this action."},
		{tenant.ErrUnauthenticated, "You must be signed in to perform this action."},
		{action.Failf("Already reacted"), "Already reacted"},
		{errors.New("pq: connection reset"), "Something went wrong."},
	}
	for _, tt := range cases {
		res := action.Run(context.Background(), p, tc, "op", model.RoleGuest,
			titledInput{Title: "x"},
			func(ctx context.Context, tc tenant.Context, in titledInput) (string, error) {
				return "", tt.err
			})
		assert.Equal(t, tt.want, res.Error, "for %v", tt.err)
	}
}
