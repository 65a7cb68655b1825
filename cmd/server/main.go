package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iterate-orchestrator/internal/config"
	"iterate-orchestrator/internal/database"
	"iterate-orchestrator/internal/handlers"
	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/internal/sandbox"
	"iterate-orchestrator/internal/service"
	"iterate-orchestrator/internal/sse"
	"iterate-orchestrator/pkg/auth"
	"iterate-orchestrator/pkg/logger"
	"iterate-orchestrator/pkg/metrics"
)

// loadEnvFile loads environment variables from a .env file. Missing file is
// not an error - system environment variables are used as-is.
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", filename).Msg(".env file not found, using system environment variables")
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

func main() {
	if err := loadEnvFile(".env"); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Setup(cfg.Server.Env)

	log.Info().Str("env", cfg.Server.Env).Str("port", cfg.Server.Port).Str("config", cfg.String()).Msg("Starting Iterate Orchestrator API Server")

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	// NOTE: db.Close() is NOT deferred here - the database must be closed
	// only after every goroutine that touches it has stopped. See the
	// graceful shutdown sequence inside initializeApp.

	if err := initializeApp(cfg, db); err != nil {
		log.Error().Err(err).Msg("Application initialization failed, cleaning up resources")
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Error closing database during error cleanup")
		}
		log.Fatal().Err(err).Msg("Fatal initialization error")
	}
}

// initializeApp wires every repository, service, and handler, starts the
// background maintenance goroutines, runs the HTTP server, and blocks until
// a shutdown signal arrives. It returns an error (rather than calling
// log.Fatal directly) so main can close the database before exiting.
func initializeApp(cfg *config.Config, db *database.DB) error {
	log.Info().Msg("Database connected successfully")

	healthCheckCtx, cancelHealthCheck := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		failureCount := 0
		const (
			healthCheckTimeout = 5 * time.Second
			slowHealthCheckMs  = 1000
		)

		for {
			select {
			case <-healthCheckCtx.Done():
				log.Debug().Msg("Health check goroutine shutting down")
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(healthCheckCtx, healthCheckTimeout)
				startTime := time.Now()
				err := db.Pool.Ping(ctx)
				duration := time.Since(startTime)
				cancel()

				if healthCheckCtx.Err() != nil {
					log.Debug().Msg("Health check interrupted by shutdown signal")
					return
				}

				if duration.Milliseconds() > int64(slowHealthCheckMs) {
					log.Warn().Int64("duration_ms", duration.Milliseconds()).Msg("Slow database health check")
				}

				if err != nil {
					failureCount++
					log.Warn().Err(err).Int("failure_count", failureCount).Int("max_failures", 3).Msg("Database health check failed")
					metrics.DBErrorsTotal.Inc()

					if failureCount >= 3 {
						log.Fatal().Msg("Database connection lost after 3 consecutive failures, shutting down")
					}
				} else {
					if failureCount > 0 {
						log.Info().Int("previous_failures", failureCount).Msg("Database health check recovered")
					}
					failureCount = 0
				}

				stats := db.Pool.Stat()
				metrics.DBConnectionsActive.Set(float64(stats.AcquiredConns()))
				metrics.DBConnectionsIdle.Set(float64(stats.IdleConns()))
			}
		}
	}()

	sessionCleanupCtx, cancelSessionCleanup := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-sessionCleanupCtx.Done():
				log.Debug().Msg("Session cleanup goroutine shutting down")
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(sessionCleanupCtx, 30*time.Second)
				rowsDeleted, err := db.CleanupExpiredSessions(ctx)
				cancel()

				if sessionCleanupCtx.Err() != nil {
					return
				}

				if err != nil {
					log.Warn().Err(err).Msg("Failed to cleanup expired sessions")
				} else if rowsDeleted > 0 {
					log.Info().Int64("deleted", rowsDeleted).Msg("Cleaned up expired sessions")
				}
			}
		}
	}()

	// Repositories
	principalRepo := repository.NewPrincipalRepository(db.Sqlx)
	sessionRepo := repository.NewSessionRepository(db.Sqlx)
	creditRepo := repository.NewCreditRepository(db.Sqlx)
	projectStore := repository.NewProjectStore(db.Sqlx)
	versionRepo := repository.NewVersionRepository(db.Sqlx)
	buildRepo := repository.NewBuildRepository(db.Sqlx)
	chatRepo := repository.NewChatRepository(db.Sqlx)

	// Session manager and auth
	sessionMgr := auth.NewSessionManager(cfg.Session.Secret)
	authService := service.NewAuthService(principalRepo, sessionRepo, sessionMgr, cfg.Session.MaxAge)

	// Domain services
	connManager := sse.NewConnectionManager()
	chatService := service.NewChatService(chatRepo, connManager)
	creditLedger := service.NewCreditLedger(db, creditRepo)
	diffEngine := service.NewDiffEngine()
	npmLinter := service.NewNpmLinter()
	repairAnalyzer := service.NewRepairAnalyzer()
	runnerClient := sandbox.NewRunnerClient(cfg.Runner.URL, cfg.Runner.Secret, cfg.Runner.BuildTimeout)
	windowLimiter := middleware.NewWindowLimiter(cfg.RateLimit, db.Pool)

	orchestrator := service.NewOrchestrator(
		db,
		projectStore,
		versionRepo,
		buildRepo,
		chatService,
		creditLedger,
		windowLimiter,
		diffEngine,
		npmLinter,
		runnerClient,
		repairAnalyzer,
		cfg.Storage.ProjectsDir,
		cfg.Storage.TemplatesDir,
	)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)
	corsConfig := middleware.DefaultCORSConfig()
	if cfg.Server.WebOrigin != "" {
		corsConfig.AllowedOrigins = append(corsConfig.AllowedOrigins, cfg.Server.WebOrigin)
	}
	if cfg.Server.ProductionDomain != "" {
		corsConfig.AllowedOrigins = append(corsConfig.AllowedOrigins, "https://"+cfg.Server.ProductionDomain)
		log.Info().Str("domain", cfg.Server.ProductionDomain).Msg("Added production domain to CORS allowed origins")
	}

	bodyLimitConfig := middleware.DefaultBodyLimitConfig()
	loginRateLimiter := middleware.LoginRateLimiterWithProxies(cfg.Server.TrustedProxies)
	iterateRateLimiter := middleware.IterateRateLimiter()

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	creditHandler := handlers.NewCreditHandler(creditLedger)
	projectHandler := handlers.NewProjectHandler(orchestrator, projectStore, creditLedger)
	versionHandler := handlers.NewVersionHandler(projectStore, versionRepo)
	buildHandler := handlers.NewBuildHandler(projectStore, buildRepo)
	filesHandler := handlers.NewFilesHandler(projectStore, diffEngine, cfg.Storage.ProjectsDir)
	sseHandler := handlers.NewSSEHandler(connManager, projectStore)
	healthHandler := handlers.NewHealthHandler(db.Pool)

	// Router
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.BodyLimitMiddleware(bodyLimitConfig))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(corsConfig))

	r.Get("/health", healthHandler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.With(middleware.RateLimitMiddleware(loginRateLimiter)).Post("/auth/register", authHandler.Register)
			r.With(middleware.RateLimitMiddleware(loginRateLimiter)).Post("/auth/login", authHandler.Login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/auth", func(r chi.Router) {
				r.Get("/me", authHandler.GetMe)
				r.Post("/logout", authHandler.Logout)
			})

			r.Route("/credits", func(r chi.Router) {
				r.Get("/wallet", creditHandler.GetWallet)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Post("/", projectHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projectHandler.Get)
					r.Get("/events", sseHandler.HandleProjectEvents)
					r.Get("/versions", versionHandler.List)
					r.Get("/builds", buildHandler.List)
					r.Get("/files/tree", filesHandler.Tree)
					r.Get("/files/content", filesHandler.Content)

					// The orchestrator itself enforces the fixed-window
					// prompt quota (10/60s) before charging; this token
					// bucket is an outer, cheaper-to-check HTTP guard
					// against raw request volume, not a second quota.
					r.With(middleware.PrincipalRateLimitMiddleware(iterateRateLimiter)).Post("/prompt", projectHandler.Prompt)
					r.Post("/rebuild", projectHandler.Rebuild)
					r.Post("/rollback", projectHandler.Rollback)
				})
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		cancelHealthCheck()
		cancelSessionCleanup()
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server is shutting down")

	// GRACEFUL SHUTDOWN SEQUENCE (order matters - every goroutine touching
	// the database must stop before db.Close() runs).
	log.Debug().Msg("Phase 1: Shutting down HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Debug().Msg("Phase 1: HTTP server shutdown complete")

	log.Debug().Msg("Phase 2: Stopping background goroutines")
	cancelHealthCheck()
	log.Debug().Msg("  - Health check goroutine cancelled")
	cancelSessionCleanup()
	log.Debug().Msg("  - Session cleanup goroutine cancelled")
	loginRateLimiter.Stop()
	iterateRateLimiter.Stop()
	log.Debug().Msg("  - Rate limiter cleanup stopped")

	shutdownGracePeriod := 200 * time.Millisecond
	log.Debug().Dur("grace_period", shutdownGracePeriod).Msg("Waiting for background goroutines to exit")
	time.Sleep(shutdownGracePeriod)

	log.Debug().Msg("Phase 3: Closing database connection")
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}
	log.Debug().Msg("Phase 3: Database connection closed")

	log.Info().Msg("Server shutdown complete")
	return nil
}
