package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"examguard/internal/api"
	"examguard/internal/config"
	"examguard/internal/database"
	"examguard/internal/hub"
	"examguard/internal/logbook"
	"examguard/internal/proctor"
	"examguard/internal/router"
	"examguard/internal/scoring"
	"examguard/internal/session"
	"examguard/internal/websocket"
)

// rateLimitCleanupInterval is how often idle signal rate limit entries are dropped
const rateLimitCleanupInterval = 5 * time.Minute

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	logger         *zap.Logger
	dbManager      *database.Manager
	registry       *websocket.Registry
	messageHub     *hub.Hub
	messageRouter  *router.Router
	sessionManager *session.Manager
	apiServer      *api.Server
	httpServer     *http.Server

	addr          string
	stopCleanup   context.CancelFunc
	serverStopped chan struct{}
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Registry → Hub → Logbook → Scoring → Session → Router → Handler → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager applies the embedded migrations on open
	dbManager, err := database.NewManager(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Socket registry and the perception/signal plumbing on top of it
	registry := websocket.NewRegistry(logger)
	broker := websocket.NewBroker(registry, cfg.Proctor.PerceptionTimeout, logger)
	signals := websocket.NewSignalBus()

	// STEP 3: Hub fans session notifications out to candidates and proctors
	messageHub := hub.NewHub(hub.RegistryRecipients{Registry: registry}, logger)

	// STEP 4: Logbook persists and publishes violation events
	aggregator := logbook.New(dbManager, messageHub, logger)

	// STEP 5: Scoring service with the assessment catalog synced in
	scorer := scoring.NewService(dbManager, logger)
	catalog, err := scoring.LoadCatalog(cfg.Assessments.CatalogPath)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load assessment catalog: %w", err)
	}
	if err := scorer.Sync(context.Background(), catalog); err != nil {
		_ = dbManager.Close()
		return nil, err
	}

	// STEP 6: Session manager arms camera, detector and guard per session
	detectorOpts := proctor.DefaultOptions()
	detectorOpts.Interval = cfg.Proctor.Interval
	detectorOpts.BackoffInterval = cfg.Proctor.BackoffInterval
	detectorOpts.ObjectSampleRate = cfg.Proctor.ObjectSampleRate
	detectorOpts.DegradedAfter = cfg.Proctor.DegradedAfter
	detectorOpts.StopTimeout = cfg.Proctor.StopTimeout

	monitoring := session.NewMonitoring(session.MonitoringDeps{
		Perception: broker.Adapter,
		Media:      broker.Media,
		Signals:    signals,
		Notifier:   messageHub,
		Detector:   detectorOpts,
		Logger:     logger,
	})
	sessionManager := session.NewManager(dbManager, aggregator, monitoring, messageHub,
		session.Options{ShutdownConcurrency: cfg.Shutdown.Concurrency}, logger)

	// STEP 7: Message router and the WebSocket handler that feeds it
	messageRouter := router.NewRouter(broker, signals, cfg.WebSocket.SignalRateLimit, logger)
	wsHandler := websocket.NewHandler(registry, sessionManager, broker, messageRouter, websocket.HandlerOptions{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		Connection: websocket.ConnectionOptions{
			BufferSize:   cfg.WebSocket.BufferSize,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
		},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger)

	// STEP 8: API server carries the REST routes and mounts the sockets
	apiServer := api.NewServer(api.Dependencies{
		Sessions:    sessionManager,
		Assessments: scorer,
		Health:      dbManager,
		Sockets:     wsHandler,
		Connections: registry,
	}, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		JoinRateLimit:  cfg.HTTP.JoinRateLimit,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		logger:         logger.Named("app"),
		dbManager:      dbManager,
		registry:       registry,
		messageHub:     messageHub,
		messageRouter:  messageRouter,
		sessionManager: sessionManager,
		apiServer:      apiServer,
		httpServer:     httpServer,
		addr:           httpServer.Addr,
	}, nil
}

// Start listens on the configured address and begins serving
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve starts background processing, restores interrupted sessions and
// serves HTTP on ln. It returns once the server is accepting connections.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	app.addr = ln.Addr().String()
	app.logger.Info("Starting examguard", zap.String("addr", app.addr))

	// STEP 1: Start message hub so restored sessions can publish
	if err := app.messageHub.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Re-arm sessions that were live when the server last stopped
	if err := app.sessionManager.LoadActiveSessions(ctx); err != nil {
		_ = ln.Close()
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	app.stopCleanup = cancel
	go app.messageRouter.RunCleanup(cleanupCtx, rateLimitCleanupInterval)

	// STEP 3: Accept connections
	app.serverStopped = make(chan struct{})
	go func() {
		defer close(app.serverStopped)
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	app.logger.Info("examguard started", zap.String("addr", app.addr))
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Sessions → Sockets → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("Shutting down examguard")

	// STEP 1: Stop accepting new requests
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	if app.serverStopped != nil {
		<-app.serverStopped
	}
	if app.stopCleanup != nil {
		app.stopCleanup()
	}

	// STEP 2: Disarm live sessions without sealing them so they resume on boot
	if err := app.sessionManager.Shutdown(ctx); err != nil {
		app.logger.Warn("Session shutdown incomplete", zap.Error(err))
	}

	// STEP 3: Close sockets; hijacked connections are not covered by Shutdown
	app.registry.CloseAll()

	// STEP 4: Stop message processing
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		app.logger.Warn("Message hub shutdown error", zap.Error(err))
	}

	// STEP 5: Close database connections
	if err := app.dbManager.Close(); err != nil {
		app.logger.Warn("Database shutdown error", zap.Error(err))
		return err
	}

	app.logger.Info("examguard shutdown complete")
	return nil
}

// GetAddr returns the address the server listens on
func (app *Application) GetAddr() string {
	return app.addr
}

// Handler exposes the HTTP routes, mainly for tests
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
