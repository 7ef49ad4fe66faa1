// extractord is the extraction daemon: it serves the HTTP API, drives
// asynchronous extraction jobs, and reaps expired jobs on a schedule.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/coordinator"
	"github.com/contractlens/extractor/internal/jobs"
	"github.com/contractlens/extractor/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := jobs.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("job store open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	coord, err := coordinator.New(cfg, logger)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg.Server, cfg.Extraction, store, coord, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runRetention(ctx, store, cfg.Database.RetentionDays, logger)

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	srv.Wait()
	logger.Info("shutdown complete")
}

// runRetention reaps expired jobs once at startup and then daily.
func runRetention(ctx context.Context, store *jobs.Store, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		deleted, err := store.Cleanup(ctx, retentionDays)
		if err != nil {
			logger.Error("retention cleanup failed", "error", err)
		} else if deleted > 0 {
			logger.Info("retention cleanup", "deleted_jobs", deleted)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
