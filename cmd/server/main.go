package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Daytron/revworks-sub001/internal/config"
	"github.com/Daytron/revworks-sub001/internal/database"
	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/handlers"
	"github.com/Daytron/revworks-sub001/internal/logging"
	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/pool"
	"github.com/Daytron/revworks-sub001/internal/repository"
	"github.com/Daytron/revworks-sub001/internal/router"
	"github.com/Daytron/revworks-sub001/internal/services"
	"github.com/Daytron/revworks-sub001/internal/session"
	"github.com/Daytron/revworks-sub001/internal/websocket"
	"github.com/Daytron/revworks-sub001/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting portal backend", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Run Database Migrations ────
	if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	// ──── Step 3: PostgreSQL Pool and Gateway ────
	pgPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.PoolSize)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	gateway, err := pool.NewGateway(pool.NewPgxSource(pgPool), cfg.PoolSize, cfg.PoolAcquireTimeout, logger)
	if err != nil {
		logger.Error("connection gateway init failed", "error", err)
		os.Exit(1)
	}
	logger.Info("postgres connected", "pool_size", cfg.PoolSize)

	// ──── Step 4: Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer redisClients.Close()
	logger.Info("redis connected")

	// ──── Step 5: Event Bus, Tasks and Sessions ────
	bus := events.NewBus(logger)
	events.NewRedisRelay(redisClients.Publisher, logger).Attach(bus)

	supervisor := worker.NewSupervisor(worker.Options{
		StopTimeout: cfg.TaskStopTimeout,
		Logger:      logger,
		Events:      bus,
	})
	registry := session.NewRegistry(supervisor, session.Options{
		SingleSession: cfg.SingleSession,
		IdleTimeout:   cfg.SessionIdleTimeout,
		Logger:        logger,
		Events:        bus,
	})
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, registry)

	// ──── Step 6: Repositories and Services ────
	accountRepo := repository.NewAccountRepo(gateway)
	announcementRepo := repository.NewAnnouncementRepo(gateway)
	submissionRepo := repository.NewSubmissionRepo(gateway)

	authService := services.NewAuthService(accountRepo, registry, jwtAuth, logger)
	announcementService := services.NewAnnouncementService(announcementRepo, bus, logger)
	viewService := services.NewViewService(supervisor, submissionRepo, bus, cfg.PollInterval, logger)
	submissionService := services.NewSubmissionService(submissionRepo, supervisor, services.NewExtractor(), bus, cfg.StoragePath, logger)

	// ──── Step 7: WebSocket Hub ────
	wsHub := websocket.NewHub(websocket.NewRedisSource(redisClients.PubSub), jwtAuth, logger)
	wsHub.Attach(bus)
	go wsHub.Run(ctx)

	// ──── Step 8: Background Loops ────
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	go authLimiter.RunCleanup(ctx)
	if cfg.SessionIdleTimeout > 0 {
		go registry.RunSweeper(ctx, cfg.SessionSweepInterval)
	}

	// ──── Step 9: HTTP Server ────
	r := router.New(jwtAuth, authLimiter, router.Handlers{
		Auth:          handlers.NewAuthHandler(authService),
		Views:         handlers.NewViewHandler(viewService),
		Submissions:   handlers.NewSubmissionHandler(submissionService),
		Announcements: handlers.NewAnnouncementHandler(announcementService),
		Health:        handlers.NewHealthHandler(gateway, registry, supervisor),
		Hub:           wsHub,
	}, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("portal backend ready", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	// Graceful shutdown: sessions first so their tasks release reservations
	// before the gateway closes.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	registry.Close(shutdownCtx)
	supervisor.Shutdown(shutdownCtx)
	gateway.Close()
	logger.Info("shutdown complete")
}
