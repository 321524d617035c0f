// Package action is the safe-action pipeline every board mutation runs
// through: validation, role check, rate limiting, execution, and the
// mapping of internal failures onto client-safe results.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/ratelimit"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
)

var tracer = otel.Tracer("tavle/action")

// Result is the outcome of one safe action. Exactly one of Data,
// FieldErrors, or Error is set.
type Result[T any] struct {
	Data        *T                `json:"data,omitempty"`
	FieldErrors model.FieldErrors `json:"fieldErrors,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// OK wraps a successful payload.
func OK[T any](v T) Result[T] { return Result[T]{Data: &v} }

// Fail wraps a top-level error message.
func Fail[T any](msg string) Result[T] { return Result[T]{Error: msg} }

// Invalid wraps per-field validation failures.
func Invalid[T any](fe model.FieldErrors) Result[T] { return Result[T]{FieldErrors: fe} }

// publicError carries a message safe to surface to the client verbatim.
type publicError struct{ msg string }

func (e publicError) Error() string { return e.msg }

// Failf builds an error whose message passes through to the client
// unchanged. Everything else is flattened to a generic message.
func Failf(format string, args ...any) error {
	return publicError{msg: fmt.Sprintf(format, args...)}
}

// Canonical client-facing messages. Nothing else ever reaches a client
// from this package.
const (
	msgUnauthenticated = "You must be signed in to perform this action."
	msgForbidden       = "You do not have permission to perform this action."
	msgNotFound        = "Not found."
	msgDemo            = "Not available in demo mode."
	msgInternal        = "Something went wrong."
)

// Pipeline holds the cross-cutting machinery shared by all actions.
type Pipeline struct {
	limiter   ratelimit.Limiter
	demoOrgID string
	logger    *slog.Logger
}

// NewPipeline builds the pipeline. demoOrgID names the read-only
// showcase org whose mutations are refused; empty disables the check.
func NewPipeline(limiter ratelimit.Limiter, demoOrgID string, logger *slog.Logger) *Pipeline {
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &Pipeline{limiter: limiter, demoOrgID: demoOrgID, logger: logger}
}

// Func is the core of one action, invoked after all guards pass.
type Func[In, Out any] func(ctx context.Context, tc tenant.Context, in In) (Out, error)

// Run executes one safe action: validate the input when it knows how,
// enforce the minimum role, consume a rate-limit token, then call fn and
// translate its error. Internal failures are logged server-side and
// surfaced as an opaque message.
func Run[In, Out any](ctx context.Context, p *Pipeline, tc tenant.Context, name string, minRole model.Role, in In, fn Func[In, Out]) Result[Out] {
	ctx, span := tracer.Start(ctx, "action."+name,
		trace.WithAttributes(
			attribute.String("tavle.action", name),
			attribute.String("tavle.org_id", tc.OrgID),
			attribute.String("tavle.role", string(tc.Role)),
		),
	)
	defer span.End()

	if v, ok := any(in).(model.Validator); ok {
		if fe := v.Validate(); len(fe) > 0 {
			return Invalid[Out](fe)
		}
	}

	if err := tenant.RequireRole(tc, minRole); err != nil {
		p.logger.Warn("action denied", "action", name, "org_id", tc.OrgID,
			"user_id", tc.UserID, "role", tc.Role, "required", minRole)
		return Fail[Out](msgForbidden)
	}

	decision, err := p.limiter.Check(ctx, tc.UserID.String(), name)
	if err != nil {
		p.logger.Error("rate limiter failed", "action", name, "error", err)
		return Fail[Out](msgInternal)
	}
	if !decision.Allowed {
		return Fail[Out](fmt.Sprintf("Too many requests. Try again in %ds.",
			int(decision.ResetIn.Seconds())+1))
	}

	if p.demoOrgID != "" && tc.OrgID == p.demoOrgID {
		return Fail[Out](msgDemo)
	}

	out, err := fn(ctx, tc, in)
	if err != nil {
		span.SetAttributes(attribute.String("tavle.action_error", err.Error()))
		return Fail[Out](mapError(p.logger, name, err))
	}
	return OK(out)
}

// mapError turns an execution error into a client-safe message. Storage
// sentinels and public errors keep their meaning; anything unexpected is
// logged and replaced.
func mapError(logger *slog.Logger, name string, err error) string {
	var pub publicError
	switch {
	case errors.As(err, &pub):
		return pub.msg
	case errors.Is(err, storage.ErrNotFound):
		return msgNotFound
	case errors.Is(err, storage.ErrConflict):
		return "Already exists."
	case errors.Is(err, storage.ErrLimitExceeded):
		return "Plan limit reached. Upgrade to create more."
	case errors.Is(err, storage.ErrForeignItems):
		return msgNotFound
	case errors.Is(err, tenant.ErrForbidden):
		return msgForbidden
	case errors.Is(err, tenant.ErrUnauthenticated):
		return msgUnauthenticated
	default:
		logger.Error("action failed", "action", name, "error", err)
		return msgInternal
	}
}
