// Package main provides the webhook server executable with HTTP API and retry worker.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/adapters/relica"
	"github.com/coregx/webhooks/cmd/webhook-server/internal/api"
	"github.com/coregx/webhooks/cmd/webhook-server/internal/config"
	"github.com/coregx/webhooks/cmd/webhook-server/internal/logging"
	"github.com/coregx/webhooks/cmd/webhook-server/internal/observability"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	log.Println("Starting Webhook Server v0.1.0...")

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	logger, err := logging.New(cfg.Webhooks.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Infof("Configuration loaded: server=%s, database=%s (%s:%d), worker interval=%s",
		cfg.Server.GetServerAddr(), cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port,
		cfg.Webhooks.WorkerInterval)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Errorf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established")

	// Apply embedded migrations. The bundled DDL targets MySQL; other
	// drivers manage the schema externally.
	if cfg.Database.Driver == "mysql" {
		if err := applyMigrations(db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		logger.Info("Database migrations applied")
	} else {
		logger.Warnf("Skipping embedded migrations for driver %s, apply schema manually", cfg.Database.Driver)
	}

	// Create metrics and Prometheus handler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	// Create repositories using Relica adapters
	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}
	logger.Info("Repositories initialized (Relica adapters)")

	// Create delivery executor, instrumented with attempt metrics
	executor, err := webhooks.NewHTTPExecutor(
		webhooks.WithAttemptTimeout(cfg.Webhooks.AttemptTimeout),
		webhooks.WithExecutorLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}

	health, err := webhooks.NewHealthTracker(repos.Subscription, logger)
	if err != nil {
		log.Fatalf("Failed to create health tracker: %v", err)
	}

	// Create Dispatcher service
	dispatcher, err := webhooks.NewDispatcher(
		webhooks.WithDispatcherRepositories(repos.Event, repos.Subscription, repos.Delivery),
		webhooks.WithExecutor(observability.InstrumentExecutor(executor, metrics)),
		webhooks.WithHealthTracker(health),
		webhooks.WithDispatcherLogger(logger),
		webhooks.WithMaxConcurrentAttempts(cfg.Webhooks.MaxConcurrent),
	)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}
	logger.Info("Dispatcher service created")

	// Create SubscriptionService
	subscriptions, err := webhooks.NewSubscriptionService(
		webhooks.WithSubscriptionRepository(repos.Subscription),
		webhooks.WithSubscriptionLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create subscription service: %v", err)
	}
	logger.Info("Subscription service created")

	// Create RetryWorker
	worker, err := webhooks.NewRetryWorker(
		webhooks.WithWorkerDispatcher(dispatcher),
		webhooks.WithWorkerDeliveryRepository(repos.Delivery),
		webhooks.WithWorkerLogger(logger),
		webhooks.WithWorkerBatchSize(cfg.Webhooks.WorkerBatchSize),
		webhooks.WithWorkerConcurrency(cfg.Webhooks.MaxConcurrent),
		webhooks.WithStaleAfter(cfg.Webhooks.StaleAfter),
	)
	if err != nil {
		log.Fatalf("Failed to create retry worker: %v", err)
	}
	logger.Info("Retry worker created")

	// Start worker in background
	go func() {
		logger.Infof("Starting retry worker (interval: %s)...", cfg.Webhooks.WorkerInterval)
		worker.Run(ctx, cfg.Webhooks.WorkerInterval)
	}()

	// Create API handler
	handler := api.NewHandler(dispatcher, subscriptions, repos.Delivery, logger)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events", handler.HandleDispatchEvent)
	mux.HandleFunc("/api/v1/subscriptions", handler.HandleSubscriptions)
	mux.HandleFunc("/api/v1/subscriptions/", handler.HandleSubscriptionByID) // Note trailing slash for :id
	mux.HandleFunc("/api/v1/deliveries/", handler.HandleRetryDelivery)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)
	mux.Handle("/metrics", metricsHandler)

	// Create HTTP server
	addr := cfg.Server.GetServerAddr()
	server := &http.Server{
		Addr:         addr,
		Handler:      metricsMiddleware(loggingMiddleware(mux, logger), metrics),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		logger.Info("API Endpoints:")
		logger.Info("   POST /api/v1/events")
		logger.Info("   POST /api/v1/subscriptions")
		logger.Info("   GET  /api/v1/subscriptions")
		logger.Info("   GET  /api/v1/subscriptions/:id")
		logger.Info("   POST /api/v1/subscriptions/:id/disable")
		logger.Info("   POST /api/v1/subscriptions/:id/enable")
		logger.Info("   POST /api/v1/subscriptions/:id/rotate-secret")
		logger.Info("   GET  /api/v1/subscriptions/:id/deliveries")
		logger.Info("   POST /api/v1/deliveries/:id/retry")
		logger.Info("   GET  /api/v1/health")
		logger.Info("   GET  /metrics")
		logger.Info("Webhook Server is ready")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	cancel() // Stop worker

	// Drain in-flight manual retry attempts
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Errorf("Dispatcher shutdown incomplete: %v", err)
	}

	logger.Info("Server stopped gracefully")
}

// applyMigrations runs the embedded SQL migrations against a MySQL database.
func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(webhooks.MigrationFiles, "migrations")
	if err != nil {
		return err
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger webhooks.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// metricsMiddleware records request latency and status metrics.
func metricsMiddleware(next http.Handler, metrics *observability.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
