package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queuegate/internal/app"
	"queuegate/internal/platform/config"
	"queuegate/internal/platform/server"
	"queuegate/internal/platform/telemetry"
)

func main() {
	cfg := config.Load()

	// Logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Setup(context.Background(), "queuegate")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	// Access policy
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		slog.Error("policy load failed", "error", err, "path", cfg.PolicyFile)
		os.Exit(1)
	}

	gateway, err := app.New(cfg, policy, metrics, logger)
	if err != nil {
		slog.Error("gateway initialization failed", "error", err)
		os.Exit(1)
	}

	// Periodic maintenance: drop idle rate limit buckets, expire API keys.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gateway.RateLimiter.Cleanup()
				if n := gateway.Keys.PurgeExpired(); n > 0 {
					slog.Debug("purged expired API keys", "count", n)
				}
			}
		}
	}()

	srv := server.New(cfg.Addr, gateway.Handler)

	slog.Info("queuegate starting",
		"addr", cfg.Addr,
		"manager_url", cfg.ManagerURL,
		"policy_file", cfg.PolicyFile,
		"providers", len(policy.Authentication.Providers),
		"anonymous_access", policy.Authentication.AllowAnonymousAccess,
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}
