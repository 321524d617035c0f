package tenant

import "context"

type contextKey string

const keyTenant contextKey = "tenant"

// WithContext returns a request context carrying the resolved tenant.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, keyTenant, tc)
}

// FromContext extracts the tenant resolved by the auth middleware. The
// second return is false on unauthenticated requests.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(keyTenant).(Context)
	return tc, ok
}
