// Package safety
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/metrics"
)

// descBudget bounds how much event description goes into a prompt, to bound
// token use on the small local models this runs against.
const descBudget = 500

// RuntimeGuard ensures the inference runtime is running and holds off its
// shutdown while a call is in flight. The returned release must always be
// called.
type RuntimeGuard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Verdict is the safety filter's decision for one event.
type Verdict struct {
	Accepted bool
	Reason   string
}

type Config struct {
	Enabled     bool
	RuntimeURL  string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Filter sends event text to the local model runtime for safety screening and
// categorization. Every failure path is fail-open: runtime down, call timeout,
// or unparseable output all resolve to accept / OTHER. The filter exists to
// reject explicit sexual and drug content, nothing more; infrastructure
// problems must never block legitimate events.
type Filter struct {
	cfg    Config
	client *http.Client
	guard  RuntimeGuard
}

func New(cfg Config, client *http.Client, guard RuntimeGuard) *Filter {
	if client == nil {
		client = &http.Client{}
	}
	return &Filter{cfg: cfg, client: client, guard: guard}
}

// CheckSafety screens one event. Events with empty or placeholder-only names
// are rejected locally before any model involvement; with filtering disabled
// everything else is accepted without a network call.
func (f *Filter) CheckSafety(ctx context.Context, event *domain.CrawledEvent) Verdict {
	if strings.TrimSpace(event.Name) == "" {
		return Verdict{Accepted: false, Reason: "empty event name"}
	}
	if !f.cfg.Enabled {
		return Verdict{Accepted: true}
	}

	prompt := safetyPrompt(event)
	raw, err := f.generate(ctx, prompt)
	if err != nil {
		slog.Warn("Safety check failed, accepting event (fail-open)",
			"event", event.Identity(), "error", err)
		metrics.ModelCalls.WithLabelValues("safety", "error").Inc()
		return Verdict{Accepted: true, Reason: "filter unavailable"}
	}

	verdict := parseSafetyResponse(raw)
	metrics.ModelCalls.WithLabelValues("safety", string(verdict.Tier)).Inc()
	if !verdict.Safe {
		reason := verdict.Reason
		if reason == "" {
			reason = "flagged by safety filter"
		}
		return Verdict{Accepted: false, Reason: reason}
	}
	return Verdict{Accepted: true}
}

// Categorize assigns categories to an accepted event. Never empty: any
// failure or ambiguity yields the OTHER default.
func (f *Filter) Categorize(ctx context.Context, event *domain.CrawledEvent) []domain.Category {
	if !f.cfg.Enabled {
		return []domain.Category{domain.CategoryOther}
	}

	prompt := categoryPrompt(event)
	raw, err := f.generate(ctx, prompt)
	if err != nil {
		slog.Warn("Categorization failed, defaulting to OTHER",
			"event", event.Identity(), "error", err)
		metrics.ModelCalls.WithLabelValues("categorize", "error").Inc()
		return []domain.Category{domain.CategoryOther}
	}

	categories, tier := parseCategoryResponse(raw)
	metrics.ModelCalls.WithLabelValues("categorize", string(tier)).Inc()
	return categories
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (f *Filter) generate(ctx context.Context, prompt string) (string, error) {
	if f.guard != nil {
		release, err := f.guard.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("model runtime unavailable: %w", err)
		}
		defer release()
	}

	reqBody := generateRequest{
		Model:  f.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: f.cfg.Temperature,
			NumPredict:  f.cfg.MaxTokens,
		},
	}
	jsonBody, _ := json.Marshal(reqBody)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", f.cfg.RuntimeURL+"/api/generate", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("model runtime returned non-200 status: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	return genResp.Response, nil
}

func safetyPrompt(event *domain.CrawledEvent) string {
	return fmt.Sprintf(`You are a content safety checker for a public event listing.
Reject ONLY events with explicit sexual content or illegal drug promotion.
Everything else is safe.

Event name: %s
Event description: %s
Tags: %s

Respond with JSON only: {"safe": true|false, "reason": "<short reason>"}`,
		event.Name, truncate(event.Description, descBudget), strings.Join(event.Tags, ", "))
}

func categoryPrompt(event *domain.CrawledEvent) string {
	names := make([]string, 0, len(domain.AllCategories))
	for _, c := range domain.AllCategories {
		names = append(names, string(c))
	}
	return fmt.Sprintf(`Classify this event into one or more of these categories: %s.

Event name: %s
Event description: %s
Tags: %s

Respond with a JSON array of category names only, e.g. ["TECHNOLOGY"].`,
		strings.Join(names, ", "),
		event.Name, truncate(event.Description, descBudget), strings.Join(event.Tags, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
