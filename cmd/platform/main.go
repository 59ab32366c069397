package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/medilab/platform/internal/audit"
	"github.com/medilab/platform/internal/comment"
	"github.com/medilab/platform/internal/flagging"
	"github.com/medilab/platform/internal/notification"
	"github.com/medilab/platform/internal/order"
	"github.com/medilab/platform/internal/patient"
	"github.com/medilab/platform/internal/registry"
	"github.com/medilab/platform/internal/registry/civreg"
	"github.com/medilab/platform/internal/result"
	"github.com/medilab/platform/internal/review"
	"github.com/medilab/platform/internal/shared/auth"
	"github.com/medilab/platform/internal/shared/config"
	"github.com/medilab/platform/internal/shared/database"
	"github.com/medilab/platform/internal/shared/events"
	"github.com/medilab/platform/internal/shared/logging"
	"github.com/medilab/platform/internal/shared/metrics"
	secmiddleware "github.com/medilab/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *database.DB
	Bus      *events.Bus
	Registry registry.Adapter
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	app := &App{Config: cfg, Logger: logger}

	// Initialize database (optional - the API runs degraded without it)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn().Err(err).Msg("database not available, running in limited mode")
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			logger.Warn().Err(err).Msg("migration failed")
		}
	}

	// Initialize event bus with KurrentDB (optional)
	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		logger.Warn().Err(err).Msg("kurrentdb not available, running without event streaming")
	} else {
		app.Bus = bus
		defer bus.Close()
		logger.Info().Msg("kurrentdb event bus initialized")
	}

	// The Publisher interface must stay nil when the bus is absent so
	// services can skip publishing instead of calling a nil client.
	var publisher events.Publisher
	if app.Bus != nil {
		publisher = app.Bus
	}

	// National identity registry adapter
	app.Registry = buildRegistryAdapter(ctx, cfg.Registry, logger)

	crypto, err := patient.NewCrypto(identityEncryptionKey(cfg, logger), cfg.Crypto.HMACKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("identity crypto initialization failed")
	}

	// Notification worker pool, used for registry account welcome emails
	notifier := notification.NewService(&notification.LogProvider{Logger: logger}, 2, 64, logger)
	if err := notifier.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("notification service failed to start")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.MaxBodySize(1 << 20))
	r.Use(secmiddleware.NewIPRateLimiter(50, 100).Middleware)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	var feed *result.Feed

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		if app.DB == nil {
			return
		}

		// Audit trail, append-only with hash chaining
		auditRepo := audit.NewRepository(app.DB.Pool)
		if err := auditRepo.Initialize(ctx); err != nil {
			logger.Warn().Err(err).Msg("audit chain initialization failed")
		}
		r.Mount("/audit", audit.NewHandler(auditRepo).Routes())

		// Patient module with registry synchronization
		patientRepo := patient.NewRepository(app.DB.Pool, crypto, logger)
		synchronizer := patient.NewSynchronizer(patientRepo, app.Registry, auditRepo, notifier, logger)
		r.Mount("/patients", patient.NewHandler(patientRepo, synchronizer).Routes())

		// Flagging configs and reference range engine
		flaggingRepo := flagging.NewRepository(app.DB.Pool)
		if err := flaggingRepo.EnsureSeed(ctx); err != nil {
			logger.Warn().Err(err).Msg("flagging config seeding failed")
		}
		engine := flagging.NewEngine(flaggingRepo, logger)
		r.Mount("/flagging-configs", flagging.NewHandler(flaggingRepo).Routes())

		// Review service, trained from confirmed result history at startup
		reviewer := review.NewService(logger)
		resultRepo := result.NewRepository(app.DB.Pool)
		if history, err := resultRepo.ListReviewed(ctx, 0); err != nil {
			logger.Warn().Err(err).Msg("loading review training history failed")
		} else {
			reviewer.Train(ctx, history)
		}

		// Order module
		orderRepo := order.NewRepository(app.DB.Pool)
		orderService := order.NewService(orderRepo, synchronizer, auditRepo, publisher, logger)
		commentHandler := comment.NewHandler(comment.NewRepository(app.DB.Pool))
		orderHandler := order.NewHandler(orderService, resultRepo, commentHandler.Routes())
		r.Mount("/orders", orderHandler.Routes())

		// Instrument result ingestion
		guard := result.NewGuard(app.DB.Pool)
		ingestor := result.NewIngestor(guard, resultRepo, orderRepo, engine, reviewer, auditRepo, publisher, logger)

		if cfg.Feed.Enabled {
			feed = result.NewFeed(cfg.Feed, ingestor, logger)
			go feed.Run(ctx)
			logger.Info().Strs("brokers", cfg.Feed.Brokers).Str("topic", cfg.Feed.Topic).Msg("instrument result feed started")
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}

		cancel()
		if feed != nil {
			if err := feed.Close(); err != nil {
				logger.Warn().Err(err).Msg("feed close error")
			}
		}
		notifier.Stop()
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("MediLab Laboratory Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Registry:       %s\n", app.Registry.SourceSystem())
	fmt.Printf("Result Feed:    %v\n", cfg.Feed.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}

	<-done
	logger.Info().Msg("server stopped")
}

// buildRegistryAdapter selects the identity registry backend. The civil
// registry runs on SQL Server; everything else gets the in-memory adapter.
func buildRegistryAdapter(ctx context.Context, cfg config.RegistryConfig, logger zerolog.Logger) registry.Adapter {
	if cfg.Driver == "sqlserver" {
		adapter, err := civreg.New(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("civil registry not available, falling back to in-memory adapter")
		} else {
			logger.Info().Str("host", cfg.Host).Msg("civil registry adapter connected")
			return adapter
		}
	}
	return registry.NewMemoryAdapter()
}

// identityEncryptionKey returns the configured AES key, generating an
// ephemeral one for development when unset. Encrypted identity keys
// written under an ephemeral key are unreadable after restart.
func identityEncryptionKey(cfg *config.Config, logger zerolog.Logger) string {
	if cfg.Crypto.EncryptionKeyHex != "" {
		return cfg.Crypto.EncryptionKeyHex
	}
	if cfg.Server.Env == "production" {
		logger.Fatal().Msg("IDENTITY_ENCRYPTION_KEY is required in production")
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		logger.Fatal().Err(err).Msg("generating ephemeral encryption key failed")
	}
	logger.Warn().Msg("IDENTITY_ENCRYPTION_KEY not set, using ephemeral key")
	return hex.EncodeToString(key)
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "MediLab Laboratory Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		if app.Registry != nil {
			if err := app.Registry.Health(r.Context()); err != nil {
				checks["registry"] = "not ready: " + err.Error()
			} else {
				checks["registry"] = "ready"
			}
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
