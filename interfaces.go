package tavle

import (
	"context"
	"net/http"
)

// Middleware wraps the full HTTP handler chain.
type Middleware func(http.Handler) http.Handler

// RouteRegistrar adds handlers to the shared mux before the server starts.
type RouteRegistrar func(mux *http.ServeMux)

// EventHook observes board events as they flow through the bus. Hooks run
// on bus worker goroutines and must not block; slow consumers should hand
// off to their own queue. Errors are the hook's to handle — the bus does
// not retry.
type EventHook interface {
	// Name identifies the hook in logs.
	Name() string
	// OnEvent is called once per published event.
	OnEvent(ctx context.Context, ev Event)
}
