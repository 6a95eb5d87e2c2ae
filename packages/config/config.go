// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string

	// Scraper sources
	EnabledSources []string
	MeetupBaseURL  string
	MeetupSearch   string
	LumaBaseURL    string
	LumaSearch     string
	MaxPages       int
	UserAgent      string

	// Fetching
	FetchTimeout    time.Duration
	BrowserTimeout  time.Duration
	ScrollRounds    int
	ScrollStep      int
	ScrollDelay     time.Duration
	NetworkIdleWait time.Duration
	EnrichDelay     time.Duration
	EnrichLimit     int

	// Model runtime (local inference server)
	FilterEnabled     bool
	ModelRuntimeURL   string
	ModelName         string
	ModelTimeout      time.Duration
	ModelTemperature  float64
	ModelMaxTokens    int
	RuntimeContainer  string
	RuntimeStartWait  time.Duration
	RuntimeMaxRetries int

	// Orchestration
	CrawlInterval time.Duration
	AuditDir      string

	// Logging
	LogFile  string
	LogLevel string

	// Metrics / trigger endpoint
	MetricsAddr string
	HTTPAddr    string

	// Redis seen-URL cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SeenSetKey    string
	SeenSetTTL    time.Duration
}

func Load() (Config, error) {
	cfg := Config{}
	var missingVars []string

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		missingVars = append(missingVars, "DATABASE_URL")
	}
	if len(missingVars) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	cfg.EnabledSources = strings.Split(getEnv("ENABLED_SOURCES", "meetup,luma"), ",")
	cfg.MeetupBaseURL = getEnv("MEETUP_BASE_URL", "https://www.meetup.com")
	cfg.MeetupSearch = getEnv("MEETUP_SEARCH_URL", "https://www.meetup.com/find/?location=kr--seoul&source=EVENTS")
	cfg.LumaBaseURL = getEnv("LUMA_BASE_URL", "https://lu.ma")
	cfg.LumaSearch = getEnv("LUMA_SEARCH_URL", "https://lu.ma/seoul")

	var err error
	cfg.MaxPages, err = strconv.Atoi(getEnv("MAX_PAGES", "3"))
	if err != nil {
		slog.Warn("Invalid MAX_PAGES", "value", getEnv("MAX_PAGES", "3"), "error", err)
		cfg.MaxPages = 3
	}
	cfg.UserAgent = getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	cfg.FetchTimeout, _ = time.ParseDuration(getEnv("FETCH_TIMEOUT", "15s"))
	cfg.BrowserTimeout, _ = time.ParseDuration(getEnv("BROWSER_TIMEOUT", "90s"))
	cfg.ScrollRounds, _ = strconv.Atoi(getEnv("SCROLL_ROUNDS", "5"))
	cfg.ScrollStep, _ = strconv.Atoi(getEnv("SCROLL_STEP", "1200"))
	cfg.ScrollDelay, _ = time.ParseDuration(getEnv("SCROLL_DELAY", "1500ms"))
	cfg.NetworkIdleWait, _ = time.ParseDuration(getEnv("NETWORK_IDLE_WAIT", "3s"))
	cfg.EnrichDelay, _ = time.ParseDuration(getEnv("ENRICH_DELAY", "500ms"))
	cfg.EnrichLimit, _ = strconv.Atoi(getEnv("ENRICH_LIMIT", "30"))

	cfg.FilterEnabled, _ = strconv.ParseBool(getEnv("FILTER_ENABLED", "true"))
	cfg.ModelRuntimeURL = getEnv("MODEL_RUNTIME_URL", "http://localhost:11434")
	cfg.ModelName = getEnv("MODEL_NAME", "llama3.2:1b")
	cfg.ModelTimeout, _ = time.ParseDuration(getEnv("MODEL_TIMEOUT", "30s"))
	cfg.ModelTemperature, _ = strconv.ParseFloat(getEnv("MODEL_TEMPERATURE", "0.1"), 64)
	cfg.ModelMaxTokens, _ = strconv.Atoi(getEnv("MODEL_MAX_TOKENS", "200"))
	cfg.RuntimeContainer = getEnv("RUNTIME_CONTAINER", "ollama")
	cfg.RuntimeStartWait, _ = time.ParseDuration(getEnv("RUNTIME_START_WAIT", "5s"))
	cfg.RuntimeMaxRetries, _ = strconv.Atoi(getEnv("RUNTIME_MAX_RETRIES", "6"))

	cfg.CrawlInterval, _ = time.ParseDuration(getEnv("CRAWL_INTERVAL", "6h"))
	cfg.AuditDir = getEnv("AUDIT_DIR", "audit")

	cfg.LogFile = getEnv("LOG_FILE", "logs/crawler.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "0.0.0.0:9094")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", "0.0.0.0:8085")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, _ = strconv.Atoi(getEnv("REDIS_DB", "0"))
	cfg.SeenSetKey = getEnv("SEEN_SET_KEY", "eventcrawler:seen_urls")
	cfg.SeenSetTTL, _ = time.ParseDuration(getEnv("SEEN_SET_TTL", "720h"))

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
