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

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pollstream/pollstream/internal/auth"
	"github.com/pollstream/pollstream/internal/hub"
	"github.com/pollstream/pollstream/internal/platform/config"
	"github.com/pollstream/pollstream/internal/platform/logging"
	"github.com/pollstream/pollstream/internal/platform/retry"
	"github.com/pollstream/pollstream/internal/platform/version"
	"github.com/pollstream/pollstream/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := auth.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create redis client", "error", err)
		os.Exit(1)
	}

	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	err = retry.DoVoid(ctx, policy, retry.Transient, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}

	return client
}

// setupVerifier picks the token verifier: Redis-backed behind a circuit
// breaker when REDIS_URL is set, otherwise the static AUTH_TOKENS map.
func setupVerifier(cfg *config.Config, redisClient *goredis.Client) auth.TokenVerifier {
	if redisClient != nil {
		return auth.NewBreakerVerifier(auth.NewRedisVerifier(redisClient, clockwork.NewRealClock()))
	}

	tokens, err := config.ParseStaticTokens(cfg.AuthTokens)
	if err != nil {
		slog.Error("Failed to parse AUTH_TOKENS", "error", err)
		os.Exit(1)
	}
	slog.Info("Using static token verifier", "tokens", len(tokens))
	return auth.NewStaticVerifier(tokens)
}

func runGracefulShutdown(srv *server.Server, h *hub.Hub, redisClient *goredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		h.Stop()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Redis close error", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	slog.Info("Starting pollstream", "version", info.Version, "commit", info.Commit, "env", cfg.AppEnv)

	ctx := context.Background()

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient = setupRedis(ctx, cfg)
	}

	verifier := setupVerifier(cfg, redisClient)

	h := hub.New(verifier, clockwork.NewRealClock(), hub.Options{
		MaxConnections:    cfg.MaxConnections,
		SweepInterval:     cfg.SweepInterval,
		InactivityTimeout: cfg.InactivityTimeout,
	})

	srv := server.NewServer(cfg, h, redisClient)
	done := runGracefulShutdown(srv, h, redisClient)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
