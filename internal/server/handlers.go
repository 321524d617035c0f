package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/events"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
)

// DueDateTracker is notified when a card's deadline state becomes
// stale. *duedate.Scanner satisfies it.
type DueDateTracker interface {
	Forget(cardID uuid.UUID)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	pipe                *action.Pipeline
	bus                 *events.Bus
	broker              *Broker
	dueDates            DueDateTracker
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	webhookRequireTLS   bool
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Broker is optional; nil disables SSE subscriptions. DueDates is
// optional; nil skips deadline-state resets.
type HandlersDeps struct {
	DB                  *storage.DB
	Pipeline            *action.Pipeline
	Bus                 *events.Bus
	Broker              *Broker
	DueDates            DueDateTracker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
	WebhookRequireTLS   bool
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		pipe:                d.Pipeline,
		bus:                 d.Bus,
		broker:              d.Broker,
		dueDates:            d.DueDates,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		webhookRequireTLS:   d.WebhookRequireTLS,
	}
}

// mustTenant extracts the tenant resolved by the auth middleware. Writes
// a 401 and returns false when the request somehow bypassed auth.
func mustTenant(w http.ResponseWriter, r *http.Request) (tenant.Context, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
	}
	return tc, ok
}

// pathID parses a UUID path segment. Writes a 404 and returns false on
// malformed ids so probing with garbage looks like a missing resource.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	return id, true
}

// emit publishes a card lifecycle event on the bus. Depth zero marks a
// user-originated event; automations re-emit one level deeper.
func (h *Handlers) emit(ctx context.Context, ev model.Event) {
	if h.bus == nil {
		return
	}
	if !h.bus.Publish(ctx, ev) {
		h.logger.Warn("event dropped", "type", ev.Type, "org_id", ev.OrgID, "card_id", ev.CardID)
	}
}

// audit records a mutation in the audit log without blocking the request.
// The write is best-effort: a failure is logged, never surfaced.
func (h *Handlers) audit(r *http.Request, tc tenant.Context, entityType, entityID, title string, act model.AuditAction) {
	entry := model.AuditLog{
		OrgID:       tc.OrgID,
		UserID:      tc.UserID,
		EntityType:  entityType,
		EntityID:    entityID,
		EntityTitle: title,
		Action:      act,
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		entry.IPAddress = &host
	}
	if ua := r.UserAgent(); ua != "" {
		entry.UserAgent = &ua
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := h.db.InsertAuditLog(ctx, entry); err != nil {
			h.logger.Error("audit write failed",
				"org_id", entry.OrgID, "entity_type", entityType, "error", err)
		}
	}()
}
