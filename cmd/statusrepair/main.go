package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"eventcrawler/packages/config"
	"eventcrawler/packages/db"
	"eventcrawler/packages/domain"
	"eventcrawler/packages/metrics"
)

func setupLogger(cfg config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logDir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error(
			"Failed to create log directory", "path", logDir, "error", err,
		)
	}

	logRotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}

	multiWriter := io.MultiWriter(os.Stdout, logRotator)

	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}).WithAttrs([]slog.Attr{slog.String("service", "status-repair")})

	slog.SetDefault(slog.New(handler))
}

// repairStatuses recomputes the lifecycle status of every non-completed
// imported event and writes back the ones that moved.
func repairStatuses(ctx context.Context, storage *db.Storage) {
	rows, err := storage.ListUnfinished(ctx)
	if err != nil {
		slog.Error("Failed to list unfinished events", "error", err)
		return
	}

	now := time.Now()
	repaired := 0
	for _, row := range rows {
		status := domain.DetermineStatus(row.StartAt, row.EndAt, now)
		if status == row.Status {
			continue
		}
		if err := storage.UpdateStatus(ctx, row.ID, status); err != nil {
			slog.Error("Failed to update event status",
				"event_id", row.ID, "status", status, "error", err)
			continue
		}
		repaired++
		slog.Debug("Event status repaired",
			"event_id", row.ID, "from", row.Status, "to", status)
	}

	if repaired > 0 {
		slog.Info("Status repair pass complete", "checked", len(rows), "repaired", repaired)
	}
	metrics.StatusRepairs.Add(float64(repaired))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting Event Status Repair ---")

	storage, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	go metrics.ExposeMetrics(cfg.MetricsAddr)

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	repairStatuses(ctx, storage)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received. Exiting...")
			return
		case <-ticker.C:
			repairStatuses(ctx, storage)
		}
	}
}
