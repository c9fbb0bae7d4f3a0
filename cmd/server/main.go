package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mbergstrom/chatrelay/internal/auth"
	"github.com/mbergstrom/chatrelay/internal/blobstore"
	"github.com/mbergstrom/chatrelay/internal/config"
	"github.com/mbergstrom/chatrelay/internal/engine"
	"github.com/mbergstrom/chatrelay/internal/logging"
	"github.com/mbergstrom/chatrelay/internal/postgres"
	"github.com/mbergstrom/chatrelay/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := blobstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, coordinator *engine.Coordinator) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Stop accepting handshakes first, then close the live sessions.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		coordinator.Shutdown()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	store := postgres.NewStore(pool)
	blobs := blobstore.NewRedisStore(redisClient, cfg.PublicBaseURL)
	resolver := auth.NewResolver(cfg.TokenSecret)

	registry := engine.NewConnectionRegistry()
	subscriptions := engine.NewSubscriptionIndex()
	transfers := engine.NewTransferBuffer()
	broadcaster := engine.NewBroadcaster()
	dispatcher := engine.NewDispatcher(store, blobs, subscriptions, broadcaster)

	// The supervisor reports failed probes back into the coordinator's close
	// path; the variable is assigned before any connection can exist.
	var coordinator *engine.Coordinator
	keepalive := engine.NewKeepAliveSupervisor(clock, cfg.KeepAliveInterval, func(sessionID string) {
		coordinator.Close(sessionID)
	})
	coordinator = engine.NewCoordinator(registry, subscriptions, transfers, dispatcher, keepalive, store, nil)

	srv := server.NewServer(cfg, resolver, coordinator, store, blobs, pool, redisClient)

	done := runGracefulShutdown(srv, coordinator)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
