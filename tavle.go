// Package tavle is the public API for embedding the Tavle board server.
//
// Hosted and plugin consumers import this package to construct and extend
// the server without forking it:
//
//	app, err := tavle.New(
//	    tavle.WithVersion(version),
//	    tavle.WithLogger(logger),
//	    tavle.WithEventHook(myAnalyticsHook{}),
//	    tavle.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: tavle (root) imports
// internal/*, but internal/* never imports tavle (root). Public types
// (Event, the hook interfaces) are standalone with no internal imports;
// conversion helpers live here because this is the only file that sees
// both sides of the boundary.
package tavle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/tavle/tavle/api"
	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/automation"
	"github.com/tavle/tavle/internal/config"
	"github.com/tavle/tavle/internal/duedate"
	"github.com/tavle/tavle/internal/events"
	"github.com/tavle/tavle/internal/identity"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/ratelimit"
	"github.com/tavle/tavle/internal/server"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/telemetry"
	"github.com/tavle/tavle/internal/tenant"
	"github.com/tavle/tavle/internal/webhook"
	"github.com/tavle/tavle/migrations"
)

// App is the Tavle server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	bus          *events.Bus
	broker       *server.Broker // nil when no notify connection
	limiter      *ratelimit.MemoryLimiter
	scanner      *duedate.Scanner
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Tavle server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tavle starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run embedded migrations, then any extra filesystems in order.
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for _, extra := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extra); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations: %w", err)
		}
	}

	// Identity: token verification plus optional profile hydration.
	// Operator service tokens sit in front of the JWT verifier.
	var verifier identity.Verifier
	verifier, err = identity.NewJWTVerifier(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("identity: %w", err)
	}
	if cfg.ServiceTokenHash != "" {
		verifier = identity.NewServiceTokenVerifier(cfg.ServiceTokenHash, verifier)
	}
	var profiles identity.ProfileFetcher
	if cfg.IdentityBaseURL != "" {
		profiles = identity.NewHTTPProfileClient(cfg.IdentityBaseURL, cfg.IdentityAPIKey)
	}
	resolver := tenant.NewResolver(db, profiles, logger)

	// Action pipeline: validation, authorization, rate limiting.
	limiter := ratelimit.NewMemoryLimiter(o.quotas)
	pipeline := action.NewPipeline(limiter, cfg.DemoOrgID, logger)

	// Event bus and its consumers.
	bus := events.New(cfg.EventBufferSize, cfg.EventWorkers, logger)
	sink := server.NewEventSink(db, logger)
	engine := automation.NewEngine(db, bus, sink, cfg.SystemUser(), cfg.MaxAutomationDepth, logger)
	dispatcher := webhook.NewDispatcher(db, webhook.NewHTTPClient(cfg.WebhookTimeout, cfg.IsProduction()), logger)
	bus.Subscribe(sink)
	bus.Subscribe(engine)
	bus.Subscribe(dispatcher)
	for _, hook := range o.eventHooks {
		bus.Subscribe(&eventHookAdapter{hook: hook})
	}

	// SSE broker needs the dedicated LISTEN/NOTIFY connection.
	var broker *server.Broker
	if cfg.NotifyURL != "" {
		broker = server.NewBroker(db, logger)
	} else {
		logger.Warn("NOTIFY_URL not set, live board updates disabled")
	}

	scanner := duedate.NewScanner(db, bus, cfg.DueScanInterval, logger)

	registrars := make([]func(mux *http.ServeMux), 0, len(o.routeRegistrars))
	for _, fn := range o.routeRegistrars {
		registrars = append(registrars, fn)
	}
	middlewares := make([]func(http.Handler) http.Handler, 0, len(o.middlewares))
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	srv := server.New(server.Config{
		DB:                  db,
		Verifier:            verifier,
		Resolver:            resolver,
		Pipeline:            pipeline,
		Bus:                 bus,
		Broker:              broker,
		DueDates:            scanner,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
		ExtraRoutes:         registrars,
		Middlewares:         middlewares,
		WebhookRequireTLS:   cfg.IsProduction(),
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		bus:          bus,
		broker:       broker,
		limiter:      limiter,
		scanner:      scanner,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts all background goroutines and the HTTP server, then blocks until
// ctx is cancelled or a fatal server error occurs. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	a.bus.Start()
	if a.broker != nil {
		go a.broker.Start(ctx)
	}
	go a.scanner.Run(ctx)

	// Start HTTP server.
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs a graceful shutdown: stop accepting HTTP requests and
// drain in-flight handlers, then drain the event bus so queued automations
// and webhook deliveries finish, then release the limiter, database pool,
// and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tavle shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 15*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	a.bus.Close()

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("tavle stopped")
	return nil
}

// eventHookAdapter bridges a public EventHook onto the internal bus.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) Name() string { return a.hook.Name() }

func (a *eventHookAdapter) HandleEvent(ctx context.Context, ev model.Event) {
	a.hook.OnEvent(ctx, Event{
		Type:    model.WireName(ev.Type),
		OrgID:   ev.OrgID,
		BoardID: ev.BoardID,
		CardID:  ev.CardID,
	})
}
