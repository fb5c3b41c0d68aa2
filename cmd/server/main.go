package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/fixmatch/internal"
	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/broker"
	"github.com/DukeRupert/fixmatch/internal/classify"
	"github.com/DukeRupert/fixmatch/internal/dispatch"
	"github.com/DukeRupert/fixmatch/internal/handler"
	"github.com/DukeRupert/fixmatch/internal/jobs"
	"github.com/DukeRupert/fixmatch/internal/matching"
	"github.com/DukeRupert/fixmatch/internal/metrics"
	"github.com/DukeRupert/fixmatch/internal/middleware"
	"github.com/DukeRupert/fixmatch/internal/pricing"
	"github.com/DukeRupert/fixmatch/internal/repository"
	"github.com/DukeRupert/fixmatch/internal/service"
	"github.com/DukeRupert/fixmatch/internal/storage"
	"github.com/DukeRupert/fixmatch/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// ==========================================================================
	// Persistence
	// ==========================================================================

	var (
		store dispatch.Store
		queue worker.Queue
		db    *sql.DB
	)
	switch cfg.StoreProvider {
	case "memory":
		store = repository.NewMemoryStore()
		queue = repository.NewMemoryQueue(time.Now)
		logger.Warn("Using in-memory store, data is lost on restart")
	default:
		db, err = sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}

		// Run migrations
		if err := internal.RunMigrations(db, logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		store = repository.NewPostgresStore(db)
		queue = repository.NewPostgresQueue(db)
		logger.Info("Database ready")
	}

	objects, localFiles, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// ==========================================================================
	// Engines and dispatch
	// ==========================================================================

	classifier, pricer, err := newEngines(cfg, logger)
	if err != nil {
		return err
	}
	events := broker.New()

	dispatchCfg := dispatch.Config{
		RadiusKm:         cfg.MatchRadiusKm,
		RelaxedRadiusKm:  cfg.RelaxedRadiusKm,
		NotifyTopN:       cfg.NotifyTopN,
		MaxMatchAttempts: cfg.MaxMatchAttempts,
		AcceptTimeout:    cfg.AcceptTimeout,
		GeofenceMeters:   cfg.GeofenceMeters,
	}
	if err := dispatchCfg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch config: %w", err)
	}

	coordinator := dispatch.NewCoordinator(dispatch.Deps{
		Store:      store,
		Classifier: classifier,
		Pricer:     pricer,
		Ranker:     matching.New(),
		Notifier:   events,
		Scheduler:  jobs.NewScheduler(queue, time.Now),
		Logger:     logger,
	}, dispatchCfg)

	// ==========================================================================
	// Background worker
	// ==========================================================================

	var w *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		w, err = worker.New(queue, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewAcceptTimeoutHandler(coordinator, logger))
	} else {
		logger.Warn("Worker disabled, unaccepted requests will not be re-matched")
	}

	// ==========================================================================
	// Middleware
	// ==========================================================================

	codec := auth.NewTokenCodec(cfg.JWTSecret, time.Now)
	authMw := middleware.NewAuthMiddleware(codec, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, time.Now)
	rateMw := middleware.NewRateLimitMiddleware(limiter, logger)

	requireAuth := middleware.Stack(authMw.WithPrincipal, authMw.RequirePrincipal, rateMw.Limit)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}
	handler.NewHealthHandler(pinger, events.Stats, logger).RegisterRoutes(mux)

	metricsAuth := middleware.NewScrapeAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, codec)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("Metrics endpoint is unprotected")
	}

	if localFiles != nil {
		prefix := localPrefix(cfg.LocalStorageURL)
		mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, localFiles.Handler()))
	}

	photos := service.NewPhotoService(coordinator, objects, service.NewImagingProcessor(), logger)
	handler.NewRequestHandler(coordinator, photos, logger).RegisterRoutes(mux, requireAuth)
	handler.NewProviderHandler(coordinator, logger).RegisterRoutes(mux, requireAuth)
	handler.NewQuoteHandler(classifier, pricer, logger).RegisterRoutes(mux, requireAuth)
	handler.NewRealtimeHandler(events, coordinator, cfg.AllowedOrigins, logger).RegisterRoutes(mux, requireAuth)

	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(!cfg.IsDevelopment())
	root := middleware.Stack(securityMw.Handler, loggingMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	if w != nil {
		w.Start(bgCtx)
	}
	go limiter.Run(bgCtx.Done())

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "store", cfg.StoreProvider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
	}

	// Close event streams first so long-lived SSE and WebSocket handlers
	// return and Shutdown does not wait for them.
	events.Close()

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if w != nil {
		w.Stop()
	}
	stopBackground()

	logger.Info("Graceful shutdown complete")
	return nil
}

// newEngines builds the classifier and pricer from the configured rule
// table, rate card and demand mode.
func newEngines(cfg *internal.Config, logger *slog.Logger) (*classify.Classifier, *pricing.Engine, error) {
	card := pricing.DefaultRateCard()
	if cfg.RateCardPath != "" {
		var err error
		if card, err = pricing.LoadRateCard(cfg.RateCardPath); err != nil {
			return nil, nil, err
		}
		logger.Info("Rate card loaded", "path", cfg.RateCardPath)
	}
	if err := card.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid rate card: %w", err)
	}

	rules := classify.DefaultRules()
	if cfg.RulesPath != "" {
		var err error
		if rules, err = classify.LoadRules(cfg.RulesPath); err != nil {
			return nil, nil, err
		}
		logger.Info("Classification rules loaded", "path", cfg.RulesPath)
	}

	demand, err := pricing.NewDemandEstimator(cfg.DemandMode, rand.NewSource(time.Now().UnixNano()))
	if err != nil {
		return nil, nil, err
	}

	return classify.New(rules), pricing.New(card, pricing.WithDemandEstimator(demand)), nil
}

// newStorage selects the photo backend. The local backend is also returned
// on its own so its files can be served.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, *storage.LocalStorage, error) {
	if cfg.StorageProvider == storage.ProviderR2 {
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
		return r2, nil, err
	}

	local, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: cfg.LocalStoragePath,
		BaseURL:  cfg.LocalStorageURL,
	}, logger)
	return local, local, err
}

// localPrefix is the path part of the local storage URL, e.g. "/files".
func localPrefix(raw string) string {
	prefix := "/files"
	if u, err := url.Parse(raw); err == nil && u.Path != "" && u.Path != "/" {
		prefix = u.Path
	}
	return strings.TrimSuffix(prefix, "/")
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
