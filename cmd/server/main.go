package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quivio/attempt-engine/internal/auth"
	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/database"
	"github.com/quivio/attempt-engine/internal/engine"
	"github.com/quivio/attempt-engine/internal/handler"
	"github.com/quivio/attempt-engine/internal/logger"
	"github.com/quivio/attempt-engine/internal/platform"
	"github.com/quivio/attempt-engine/internal/reconcile"
	"github.com/quivio/attempt-engine/internal/repository"
	"github.com/quivio/attempt-engine/internal/router"
	"github.com/quivio/attempt-engine/internal/store"
	"github.com/quivio/attempt-engine/internal/validator"
	"github.com/quivio/attempt-engine/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Attempt Engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Wire the Attempt Engine ───────────────────────────────────────
	clk := clock.NewReal()
	attemptStore := store.NewRedisStore(rdb, clk)
	outcomeRepo := repository.NewOutcomeRepository(pool)
	platformClient := platform.NewClient(cfg, rdb, log)
	reconciler := reconcile.New(platformClient, attemptStore, rdb, outcomeRepo, clk, log)
	manager := engine.NewManager(platformClient, attemptStore, clk, reconciler, log)

	tokenValidator := auth.NewValidator(cfg)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(manager, outcomeRepo),
		WS:      handler.NewWSHandler(manager, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	outcomeWorker := worker.NewOutcomeWorker(outcomeRepo, rdb, log)
	go outcomeWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenValidator, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Live attempts keep
	//    their durable snapshots in Redis and resume on the next boot.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
