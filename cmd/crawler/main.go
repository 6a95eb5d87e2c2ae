package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"eventcrawler/packages/config"
	"eventcrawler/packages/db"
	"eventcrawler/packages/domain"
	"eventcrawler/packages/enrich"
	"eventcrawler/packages/fetch"
	"eventcrawler/packages/metrics"
	"eventcrawler/packages/modelrt"
	"eventcrawler/packages/orchestrator"
	"eventcrawler/packages/safety"
	"eventcrawler/packages/scraper"
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
	}).WithAttrs([]slog.Attr{slog.String("service", "event-crawler")})

	slog.SetDefault(slog.New(handler))
}

func buildExtractors(cfg config.Config, fetcher *fetch.Fetcher, auditor *scraper.Auditor) []scraper.Extractor {
	plan := fetch.ScrollPlan{
		Rounds:     cfg.ScrollRounds,
		StepPixels: cfg.ScrollStep,
		Delay:      cfg.ScrollDelay,
		IdleWait:   cfg.NetworkIdleWait,
	}

	var extractors []scraper.Extractor
	for _, source := range cfg.EnabledSources {
		switch strings.TrimSpace(source) {
		case "meetup":
			extractors = append(extractors, scraper.NewMeetup(domain.ScraperConfig{
				Name:      "meetup",
				BaseURL:   cfg.MeetupBaseURL,
				SearchURL: cfg.MeetupSearch,
				MaxPages:  cfg.MaxPages,
				UserAgent: cfg.UserAgent,
			}, fetcher, plan, auditor))
		case "luma":
			extractors = append(extractors, scraper.NewLuma(domain.ScraperConfig{
				Name:      "luma",
				BaseURL:   cfg.LumaBaseURL,
				SearchURL: cfg.LumaSearch,
				MaxPages:  cfg.MaxPages,
				UserAgent: cfg.UserAgent,
			}, fetcher, plan, auditor))
		default:
			slog.Warn("Unknown source in ENABLED_SOURCES, ignoring", "source", source)
		}
	}
	return extractors
}

func main() {
	if err := godotenv.Load(); err != nil {
		// Not an error in deployed environments.
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

	slog.Info("--- Starting Event Crawler ---")

	storage, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	seenCache := db.NewSeenCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SeenSetKey, cfg.SeenSetTTL)
	defer seenCache.Close()

	fetcher := fetch.New(cfg.FetchTimeout, cfg.BrowserTimeout, cfg.UserAgent)
	auditor := scraper.NewAuditor(cfg.AuditDir)
	extractors := buildExtractors(cfg, fetcher, auditor)
	if len(extractors) == 0 {
		slog.Error("No extractors enabled, nothing to do")
		os.Exit(1)
	}

	enricher := enrich.New(fetcher, cfg.EnrichDelay, cfg.EnrichLimit)

	var runtime *modelrt.Manager
	var guard safety.RuntimeGuard
	if cfg.FilterEnabled {
		runtime = modelrt.New(modelrt.Config{
			BaseURL:    cfg.ModelRuntimeURL,
			Container:  cfg.RuntimeContainer,
			StartWait:  cfg.RuntimeStartWait,
			MaxRetries: cfg.RuntimeMaxRetries,
		})
		guard = runtime
	}
	filter := safety.New(safety.Config{
		Enabled:     cfg.FilterEnabled,
		RuntimeURL:  cfg.ModelRuntimeURL,
		Model:       cfg.ModelName,
		Temperature: cfg.ModelTemperature,
		MaxTokens:   cfg.ModelMaxTokens,
	}, &http.Client{Timeout: cfg.ModelTimeout}, guard)

	var runtimeMgr orchestrator.RuntimeManager
	if runtime != nil {
		runtimeMgr = runtime
	}
	orch := orchestrator.New(extractors, enricher, filter, storage, seenCache, runtimeMgr, auditor)

	go metrics.ExposeMetrics(cfg.MetricsAddr)
	go serveTrigger(ctx, cfg.HTTPAddr, orch)

	ticker := time.NewTicker(cfg.CrawlInterval)
	defer ticker.Stop()

	runCrawl(ctx, orch, orchestrator.Options{})

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received. Exiting...")
			return
		case <-ticker.C:
			runCrawl(ctx, orch, orchestrator.Options{})
		}
	}
}

var runMu sync.Mutex

func runCrawl(ctx context.Context, orch *orchestrator.Orchestrator, opts orchestrator.Options) *domain.RunSummary {
	if !runMu.TryLock() {
		slog.Warn("Crawl run already in progress, skipping trigger")
		return nil
	}
	defer runMu.Unlock()

	summary, err := orch.RunCrawl(ctx, opts)
	if err != nil {
		slog.Error("Crawl run failed", "error", err)
		return nil
	}
	return summary
}

// serveTrigger exposes the manual trigger endpoint: POST /crawl with optional
// ?test=1 (no persistence) and ?limit=N query parameters.
func serveTrigger(ctx context.Context, addr string, orch *orchestrator.Orchestrator) {
	mux := http.NewServeMux()
	mux.HandleFunc("/crawl", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		opts := orchestrator.Options{}
		if r.URL.Query().Get("test") == "1" {
			opts.TestMode = true
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			if n, err := strconv.Atoi(limit); err == nil && n > 0 {
				opts.Limit = n
			}
		}

		summary := runCrawl(r.Context(), orch, opts)
		if summary == nil {
			http.Error(w, "a crawl run is already in progress", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("Manual trigger endpoint listening", "address", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Trigger endpoint failed", "error", err)
	}
}
