package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sheetmerge/sheetmerge/internal/config"
	"github.com/sheetmerge/sheetmerge/internal/core"
	"github.com/sheetmerge/sheetmerge/internal/logging"
	"github.com/sheetmerge/sheetmerge/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars).
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"merge_workers", cfg.Merge.Workers,
		"merge_max_concurrent", cfg.Merge.MaxConcurrent,
		"cache_ttl", cfg.Cache.TTL,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	service := core.NewService(cfg)
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight merges finish before closing the listener.
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for merges to complete", "active", status.Active)
			if err := service.WaitForMerges(shutdownCtx); err != nil {
				slog.Warn("merges did not complete in time", "error", err)
			} else {
				slog.Info("all merges completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
