// Package enrich
package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	readability "github.com/go-shiori/go-readability"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/fetch"
	"eventcrawler/packages/scraper"
)

// Enricher visits event detail pages and fills in fields the listing page did
// not carry. Strictly additive: a field that already holds a non-default value
// is never replaced, and any per-event failure leaves the event untouched.
type Enricher struct {
	fetcher *fetch.Fetcher
	delay   time.Duration
	limit   int
}

func New(fetcher *fetch.Fetcher, delay time.Duration, limit int) *Enricher {
	return &Enricher{fetcher: fetcher, delay: delay, limit: limit}
}

// EnrichAll enriches up to the configured limit of events in place, sleeping
// between detail fetches to avoid hammering the source. Returns the number of
// events that failed to enrich.
func (e *Enricher) EnrichAll(ctx context.Context, events []domain.CrawledEvent) int {
	failed := 0
	enriched := 0
	for i := range events {
		if e.limit > 0 && enriched >= e.limit {
			break
		}
		if events[i].ExternalURL == "" {
			continue
		}
		enriched++
		if err := e.Enrich(ctx, &events[i]); err != nil {
			failed++
			slog.Warn("Detail enrichment failed, event left unchanged",
				"url", events[i].ExternalURL, "error", err)
		}
		select {
		case <-ctx.Done():
			return failed
		case <-time.After(e.delay):
		}
	}
	if failed > 0 {
		slog.Info("Enrichment pass finished with failures", "failed", failed)
	}
	return failed
}

// Enrich fetches one event's detail page and merges missing fields. Sources
// in priority order: embedded JSON / JSON-LD, the meta description tag, common
// CSS selectors, then a readability text extraction as the last resort.
func (e *Enricher) Enrich(ctx context.Context, event *domain.CrawledEvent) error {
	page, err := e.fetcher.Static(ctx, event.ExternalURL)
	if err != nil {
		return err
	}

	roots := scraper.CollectJSONRoots(page)
	detail := scraper.SearchEvents(roots, []scraper.Decoder{scraper.DecodeJSONLD})
	if len(detail) > 0 {
		mergeDetail(event, &detail[0])
	}

	if needsDescription(event) {
		if desc, ok := page.Doc.Find(`meta[name="description"]`).Attr("content"); ok {
			setDescription(event, desc)
		}
	}
	if needsDescription(event) {
		for _, sel := range []string{".event-description", "[data-event-label='description']", "article p", "main p"} {
			text := strings.TrimSpace(page.Doc.Find(sel).First().Text())
			if text != "" {
				setDescription(event, text)
				break
			}
		}
	}
	if needsDescription(event) {
		if article, err := readability.FromReader(strings.NewReader(page.HTML), nil); err == nil {
			setDescription(event, article.Excerpt)
		}
	}

	if event.RawData == nil {
		event.RawData = map[string]any{}
	}
	event.RawData["enriched_at"] = time.Now().Format(time.RFC3339)
	if lang := detectLanguage(event); lang != "" {
		event.RawData["language"] = lang
	}

	return nil
}

// mergeDetail fills only genuinely empty fields of dst from the detail-page
// record. Lower-confidence detail data never clobbers what the listing gave.
func mergeDetail(dst *domain.CrawledEvent, src *domain.CrawledEvent) {
	if needsDescription(dst) {
		setDescription(dst, src.Description)
	}
	if len(dst.Images) == 0 {
		dst.Images = src.Images
	}
	if dst.Price == 0 && src.Price > 0 {
		dst.Price = src.Price
	}
	if dst.Currency == "" {
		dst.Currency = src.Currency
	}
	if dst.City == "" {
		dst.City = src.City
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.Latitude == nil && src.Latitude != nil {
		dst.Latitude, dst.Longitude = src.Latitude, src.Longitude
	}
	if dst.AttendeeCount == 0 {
		dst.AttendeeCount = src.AttendeeCount
	}
	if dst.Capacity == 0 {
		dst.Capacity = src.Capacity
	}
	if len(dst.Tags) == 0 {
		dst.Tags = src.Tags
	}
}

func needsDescription(e *domain.CrawledEvent) bool {
	return e.Description == "" || e.Description == domain.PlaceholderDescription
}

func setDescription(e *domain.CrawledEvent, desc string) {
	desc = strings.TrimSpace(desc)
	if desc != "" {
		e.Description = desc
	}
}

func detectLanguage(e *domain.CrawledEvent) string {
	text := strings.TrimSpace(e.Name + " " + e.Description)
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6393()
}
