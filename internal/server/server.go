package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/events"
	"github.com/tavle/tavle/internal/identity"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
)

// Server is the Tavle HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Config holds all dependencies and configuration for creating a Server.
// Optional (nil-safe): Broker, Bus, DueDates.
type Config struct {
	DB       *storage.DB
	Verifier identity.Verifier
	Resolver *tenant.Resolver
	Pipeline *action.Pipeline
	Bus      *events.Bus
	Broker   *Broker
	DueDates DueDateTracker
	Logger   *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte

	// WebhookRequireTLS refuses plain-http webhook targets at
	// registration, the production mode.
	WebhookRequireTLS bool

	// ExtraRoutes are called in order to register additional handlers on the
	// shared mux. They run inside the normal middleware chain, auth included.
	ExtraRoutes []func(mux *http.ServeMux)
	// Middlewares wrap the whole chain, first registered outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		Pipeline:            cfg.Pipeline,
		Bus:                 cfg.Bus,
		Broker:              cfg.Broker,
		DueDates:            cfg.DueDates,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
		WebhookRequireTLS:   cfg.WebhookRequireTLS,
	})

	mux := http.NewServeMux()

	// Boards.
	mux.Handle("POST /v1/boards", http.HandlerFunc(h.HandleCreateBoard))
	mux.Handle("GET /v1/boards", http.HandlerFunc(h.HandleListBoards))
	mux.Handle("GET /v1/boards/{board_id}", http.HandlerFunc(h.HandleGetBoard))
	mux.Handle("PATCH /v1/boards/{board_id}", http.HandlerFunc(h.HandleUpdateBoard))
	mux.Handle("DELETE /v1/boards/{board_id}", http.HandlerFunc(h.HandleDeleteBoard))

	// Lists.
	mux.Handle("POST /v1/boards/{board_id}/lists", http.HandlerFunc(h.HandleCreateList))
	mux.Handle("GET /v1/boards/{board_id}/lists", http.HandlerFunc(h.HandleListLists))
	mux.Handle("PATCH /v1/boards/{board_id}/lists/{list_id}", http.HandlerFunc(h.HandleUpdateList))
	mux.Handle("DELETE /v1/boards/{board_id}/lists/{list_id}", http.HandlerFunc(h.HandleDeleteList))
	mux.Handle("POST /v1/boards/{board_id}/lists/reorder", http.HandlerFunc(h.HandleReorderLists))

	// Cards.
	mux.Handle("POST /v1/boards/{board_id}/cards", http.HandlerFunc(h.HandleCreateCard))
	mux.Handle("GET /v1/lists/{list_id}/cards", http.HandlerFunc(h.HandleListCards))
	mux.Handle("GET /v1/cards/{card_id}", http.HandlerFunc(h.HandleGetCard))
	mux.Handle("PATCH /v1/boards/{board_id}/cards/{card_id}", http.HandlerFunc(h.HandleUpdateCard))
	mux.Handle("DELETE /v1/boards/{board_id}/cards/{card_id}", http.HandlerFunc(h.HandleDeleteCard))
	mux.Handle("POST /v1/boards/{board_id}/cards/reorder", http.HandlerFunc(h.HandleReorderCards))

	// Labels.
	mux.Handle("POST /v1/labels", http.HandlerFunc(h.HandleCreateLabel))
	mux.Handle("GET /v1/labels", http.HandlerFunc(h.HandleListLabels))
	mux.Handle("DELETE /v1/labels/{label_id}", http.HandlerFunc(h.HandleDeleteLabel))
	mux.Handle("POST /v1/boards/{board_id}/cards/{card_id}/labels", http.HandlerFunc(h.HandleAssignLabel))
	mux.Handle("DELETE /v1/boards/{board_id}/cards/{card_id}/labels/{label_id}", http.HandlerFunc(h.HandleUnassignLabel))
	mux.Handle("GET /v1/cards/{card_id}/labels", http.HandlerFunc(h.HandleListCardLabels))

	// Comments and reactions.
	mux.Handle("POST /v1/cards/{card_id}/comments", http.HandlerFunc(h.HandleCreateComment))
	mux.Handle("GET /v1/cards/{card_id}/comments", http.HandlerFunc(h.HandleListComments))
	mux.Handle("PATCH /v1/comments/{comment_id}", http.HandlerFunc(h.HandleUpdateComment))
	mux.Handle("DELETE /v1/comments/{comment_id}", http.HandlerFunc(h.HandleDeleteComment))
	mux.Handle("POST /v1/comments/{comment_id}/reactions", http.HandlerFunc(h.HandleAddReaction))
	mux.Handle("DELETE /v1/comments/{comment_id}/reactions", http.HandlerFunc(h.HandleRemoveReaction))
	mux.Handle("GET /v1/comments/{comment_id}/reactions", http.HandlerFunc(h.HandleListReactions))

	// Checklists.
	mux.Handle("POST /v1/boards/{board_id}/cards/{card_id}/checklists", http.HandlerFunc(h.HandleCreateChecklist))
	mux.Handle("GET /v1/cards/{card_id}/checklists", http.HandlerFunc(h.HandleListChecklists))
	mux.Handle("DELETE /v1/boards/{board_id}/checklists/{checklist_id}", http.HandlerFunc(h.HandleDeleteChecklist))
	mux.Handle("POST /v1/boards/{board_id}/checklists/{checklist_id}/items", http.HandlerFunc(h.HandleAddChecklistItem))
	mux.Handle("PATCH /v1/boards/{board_id}/checklist-items/{item_id}", http.HandlerFunc(h.HandleToggleChecklistItem))

	// Automations (admin; role enforced in the action pipeline, reads gated here).
	adminOnly := requireRole(model.RoleAdmin)
	mux.Handle("POST /v1/automations", http.HandlerFunc(h.HandleCreateAutomation))
	mux.Handle("GET /v1/automations", adminOnly(http.HandlerFunc(h.HandleListAutomations)))
	mux.Handle("PATCH /v1/automations/{automation_id}", http.HandlerFunc(h.HandleUpdateAutomation))
	mux.Handle("DELETE /v1/automations/{automation_id}", http.HandlerFunc(h.HandleDeleteAutomation))
	mux.Handle("GET /v1/automations/{automation_id}/logs", adminOnly(http.HandlerFunc(h.HandleListAutomationLogs)))

	// Webhooks (admin).
	mux.Handle("POST /v1/webhooks", http.HandlerFunc(h.HandleCreateWebhook))
	mux.Handle("GET /v1/webhooks", adminOnly(http.HandlerFunc(h.HandleListWebhooks)))
	mux.Handle("PATCH /v1/webhooks/{webhook_id}", http.HandlerFunc(h.HandleUpdateWebhook))
	mux.Handle("DELETE /v1/webhooks/{webhook_id}", http.HandlerFunc(h.HandleDeleteWebhook))
	mux.Handle("GET /v1/webhooks/{webhook_id}/deliveries", adminOnly(http.HandlerFunc(h.HandleListWebhookDeliveries)))

	// Org administration.
	mux.Handle("GET /v1/members", http.HandlerFunc(h.HandleListMembers))
	mux.Handle("PATCH /v1/members/{user_id}", http.HandlerFunc(h.HandleUpdateMember))
	mux.Handle("PATCH /v1/org/plan", http.HandlerFunc(h.HandleUpdatePlan))

	// Audit trail (admin).
	mux.Handle("GET /v1/audit-logs", adminOnly(http.HandlerFunc(h.HandleListAuditLogs)))

	// Subscription endpoint (long-lived connection, no rate limit).
	mux.Handle("GET /v1/subscribe", http.HandlerFunc(h.HandleSubscribe))

	// Health and API docs (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Verifier, cfg.Resolver, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// requireRole gates a read endpoint on a minimum membership role.
// Mutations get the same check inside the action pipeline instead.
func requireRole(min model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenant.FromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if err := tenant.RequireRole(tc, min); err != nil {
				writeError(w, r, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
