package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/fetch"
)

// Luma scrapes lu.ma discover pages. Events arrive through the calendar API
// calls the page makes while scrolling; the embedded __NEXT_DATA__ blob
// carries the initial batch, and JSON-LD covers detail pages.
type Luma struct {
	cfg     domain.ScraperConfig
	fetcher *fetch.Fetcher
	plan    fetch.ScrollPlan
	audit   *Auditor
	now     func() time.Time
}

func NewLuma(cfg domain.ScraperConfig, fetcher *fetch.Fetcher, plan fetch.ScrollPlan, audit *Auditor) *Luma {
	plan.APIPatterns = []string{"/api", "api.lu.ma"}
	return &Luma{cfg: cfg, fetcher: fetcher, plan: plan, audit: audit, now: time.Now}
}

func (l *Luma) Name() string { return l.cfg.Name }

func (l *Luma) ScrapeEvents(ctx context.Context) ([]domain.CrawledEvent, error) {
	page, err := fetchWithFallback(ctx, l.fetcher, l.cfg.SearchURL, l.plan)
	if err != nil {
		return nil, fmt.Errorf("luma scrape: %w", err)
	}

	roots := CollectJSONRoots(page)
	events := SearchEvents(roots, []Decoder{decodeLumaEvent, DecodeJSONLD})
	slog.Info("Luma JSON extraction finished", "roots", len(roots), "events", len(events))

	if len(events) == 0 {
		events = l.domFallback(page)
		slog.Warn("Luma fell back to DOM extraction", "events", len(events))
	}

	events = finalize(events, l.cfg.Name, l.now())
	if l.audit != nil {
		l.audit.WriteSource(l.cfg.Name, events)
	}
	return events, nil
}

// decodeLumaEvent decodes lu.ma's event entry shape. Entries appear both as
// wrappers ({"event": {...}, "calendar": {...}}) and as bare event objects;
// the bare object is the schema this decoder requires: api_id, name, start_at,
// url.
func decodeLumaEvent(obj map[string]any) (*domain.CrawledEvent, bool) {
	if inner := getObject(obj, "event"); inner != nil {
		ev, ok := decodeLumaEvent(inner)
		if ok {
			// The wrapper sometimes carries attendee counts the bare
			// object lacks.
			if guests, found := getNumber(obj, "guest_count", "guests_count"); found && ev.AttendeeCount == 0 {
				ev.AttendeeCount = int(guests)
			}
			return ev, true
		}
	}

	apiID := getString(obj, "api_id")
	name := getString(obj, "name")
	startAt, hasStart := parseEventTime(obj["start_at"])
	slug := getString(obj, "url")
	if apiID == "" || name == "" || !hasStart || slug == "" {
		return nil, false
	}
	if !strings.HasPrefix(apiID, "evt-") {
		return nil, false
	}

	eventURL := slug
	if !strings.HasPrefix(eventURL, "http") {
		eventURL = "https://lu.ma/" + strings.TrimPrefix(eventURL, "/")
	}

	ev := &domain.CrawledEvent{
		Name:        name,
		Description: getString(obj, "description"),
		StartAt:     startAt,
		ExternalID:  apiID,
		ExternalURL: eventURL,
		RawData:     map[string]any{"source_payload": obj, "schema": "luma-api"},
	}
	if endAt, ok := parseEventTime(obj["end_at"]); ok {
		ev.EndAt = endAt
	}

	if cover := getString(obj, "cover_url"); cover != "" {
		ev.Images = []string{cover}
	}

	switch getString(obj, "location_type") {
	case "online", "zoom", "google-meet":
		ev.LocationType = domain.LocationOnline
	case "offline", "in-person":
		ev.LocationType = domain.LocationOffline
	}

	if geo := getObject(obj, "geo_address_json"); geo != nil {
		ev.City = getString(geo, "city")
		ev.Address = getString(geo, "address", "full_address")
	}
	if lat, ok := getNumber(obj, "geo_latitude"); ok {
		if lng, ok := getNumber(obj, "geo_longitude"); ok {
			ev.Latitude, ev.Longitude = &lat, &lng
		}
	}

	if price, ok := getNumber(obj, "price_cents"); ok {
		ev.Price = price / 100
		ev.Currency = getString(obj, "price_currency", "currency")
	}
	if capacity, ok := getNumber(obj, "capacity"); ok {
		ev.Capacity = int(capacity)
	}

	if obj["recurrence_id"] != nil {
		ev.EventType = domain.EventRecurring
	}

	return ev, true
}

func (l *Luma) domFallback(page *fetch.Page) []domain.CrawledEvent {
	// Event links on lu.ma are short slugs; scan every anchor under the
	// discover list and keep the ones that look like event pages.
	candidates := scanAnchors(page.Doc, `a.event-link, a[href^="/"]`, l.cfg.BaseURL)
	now := l.now()

	var events []domain.CrawledEvent
	for _, c := range candidates {
		if !isLumaEventLink(c.URL) {
			continue
		}
		name := firstLine(c.Text, domain.MaxNameLength)
		if name == "" {
			continue
		}
		ev := domain.CrawledEvent{
			Name:        name,
			ExternalURL: c.URL,
			RawData:     map[string]any{"source_payload": c.Text, "schema": "luma-dom"},
		}
		if c.Image != "" {
			ev.Images = []string{c.Image}
		}
		if startAt, ok := findDate(c.Text, now); ok {
			ev.StartAt = startAt
		} else {
			ev.StartAt = now
		}
		events = append(events, ev)
	}
	return events
}

// isLumaEventLink filters discover-page anchors down to event slugs, which
// are single short opaque path segments (no category or user prefixes).
func isLumaEventLink(link string) bool {
	trimmed := strings.TrimPrefix(link, "https://lu.ma/")
	if trimmed == link {
		return false
	}
	if trimmed == "" || strings.Contains(trimmed, "/") || strings.Contains(trimmed, "?") {
		return false
	}
	switch trimmed {
	case "discover", "signin", "create", "pricing", "explore":
		return false
	}
	return len(trimmed) <= 24
}
