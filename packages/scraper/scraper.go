// Package scraper
package scraper

import (
	"context"
	"log/slog"
	"time"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/fetch"
)

// Extractor produces canonical events from one source's pages. Implementations
// are idempotent within a run and have no side effects beyond an optional
// audit-file write.
type Extractor interface {
	Name() string
	ScrapeEvents(ctx context.Context) ([]domain.CrawledEvent, error)
}

// fetchWithFallback tries a dynamic browser fetch first and falls back to a
// plain static GET. A failed dynamic fetch costs completeness, not
// correctness, so it is logged and swallowed.
func fetchWithFallback(ctx context.Context, f *fetch.Fetcher, url string, plan fetch.ScrollPlan) (*fetch.Page, error) {
	page, err := f.Dynamic(ctx, url, plan)
	if err == nil {
		slog.Info("Fetched page via headless browser", "url", url, "captured", len(page.Captured))
		return page, nil
	}
	slog.Warn("Dynamic fetch failed, falling back to static", "url", url, "error", err)

	page, err = f.Static(ctx, url)
	if err != nil {
		return nil, err
	}
	slog.Info("Fetched page via static GET", "url", url)
	return page, nil
}

// finalize normalizes extracted events and stamps their origin.
func finalize(events []domain.CrawledEvent, origin string, now time.Time) []domain.CrawledEvent {
	out := events[:0]
	for i := range events {
		e := events[i]
		e.Origin = origin
		e.Normalize(now)
		if e.Name == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}
