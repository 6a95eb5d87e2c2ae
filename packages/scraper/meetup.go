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

// Meetup scrapes meetup.com search pages. The interesting data lives in the
// GraphQL responses the page fires while scrolling plus the __NEXT_DATA__
// blob; card markup is only a fallback.
type Meetup struct {
	cfg     domain.ScraperConfig
	fetcher *fetch.Fetcher
	plan    fetch.ScrollPlan
	audit   *Auditor
	now     func() time.Time
}

func NewMeetup(cfg domain.ScraperConfig, fetcher *fetch.Fetcher, plan fetch.ScrollPlan, audit *Auditor) *Meetup {
	plan.APIPatterns = []string{"/gql", "graphql", "/api"}
	return &Meetup{cfg: cfg, fetcher: fetcher, plan: plan, audit: audit, now: time.Now}
}

func (m *Meetup) Name() string { return m.cfg.Name }

func (m *Meetup) ScrapeEvents(ctx context.Context) ([]domain.CrawledEvent, error) {
	page, err := fetchWithFallback(ctx, m.fetcher, m.cfg.SearchURL, m.plan)
	if err != nil {
		return nil, fmt.Errorf("meetup scrape: %w", err)
	}

	roots := CollectJSONRoots(page)
	events := SearchEvents(roots, []Decoder{decodeMeetupEvent, DecodeJSONLD})
	slog.Info("Meetup JSON extraction finished", "roots", len(roots), "events", len(events))

	if len(events) == 0 {
		events = m.domFallback(page)
		slog.Warn("Meetup fell back to DOM extraction", "events", len(events))
	}

	events = finalize(events, m.cfg.Name, m.now())
	if m.audit != nil {
		m.audit.WriteSource(m.cfg.Name, events)
	}
	return events, nil
}

// decodeMeetupEvent decodes the event node shape of meetup's GraphQL payloads.
// Requires title, eventUrl and dateTime; everything else is optional.
func decodeMeetupEvent(obj map[string]any) (*domain.CrawledEvent, bool) {
	title := getString(obj, "title")
	eventURL := getString(obj, "eventUrl")
	startAt, hasStart := parseEventTime(obj["dateTime"])
	if title == "" || eventURL == "" || !hasStart {
		return nil, false
	}

	ev := &domain.CrawledEvent{
		Name:        title,
		Description: getString(obj, "description"),
		StartAt:     startAt,
		ExternalID:  getString(obj, "id"),
		ExternalURL: eventURL,
		RawData:     map[string]any{"source_payload": obj, "schema": "meetup-gql"},
	}
	if endAt, ok := parseEventTime(obj["endTime"]); ok {
		ev.EndAt = endAt
	}

	switch strings.ToUpper(getString(obj, "eventType")) {
	case "ONLINE":
		ev.LocationType = domain.LocationOnline
	case "PHYSICAL", "HYBRID":
		ev.LocationType = domain.LocationOffline
	}
	if online, ok := obj["isOnline"].(bool); ok && online {
		ev.LocationType = domain.LocationOnline
	}

	if venue := getObject(obj, "venue"); venue != nil {
		ev.City = getString(venue, "city")
		ev.Address = getString(venue, "address", "name")
		if lat, ok := getNumber(venue, "lat", "latitude"); ok {
			if lng, ok := getNumber(venue, "lng", "lon", "longitude"); ok {
				ev.Latitude, ev.Longitude = &lat, &lng
			}
		}
	}

	if going, ok := getNumber(obj, "going", "rsvpCount"); ok {
		ev.AttendeeCount = int(going)
	} else if goingObj := getObject(obj, "going"); goingObj != nil {
		if total, ok := getNumber(goingObj, "totalCount"); ok {
			ev.AttendeeCount = int(total)
		}
	}
	if capacity, ok := getNumber(obj, "maxTickets"); ok {
		ev.Capacity = int(capacity)
	}

	if photo := getObject(obj, "featuredEventPhoto"); photo != nil {
		if src := getString(photo, "highResUrl", "baseUrl", "source"); src != "" {
			ev.Images = append(ev.Images, src)
		}
	} else if src := getString(obj, "imageUrl"); src != "" {
		ev.Images = append(ev.Images, src)
	}

	if fee := getObject(obj, "feeSettings"); fee != nil {
		if amount, ok := getNumber(fee, "amount"); ok {
			ev.Price = amount
		}
		ev.Currency = getString(fee, "currency")
	}

	if topics, ok := obj["topics"].([]any); ok {
		for _, t := range topics {
			switch topic := t.(type) {
			case string:
				ev.Tags = append(ev.Tags, topic)
			case map[string]any:
				if name := getString(topic, "name", "urlkey"); name != "" {
					ev.Tags = append(ev.Tags, name)
				}
			}
		}
	}

	if _, ok := obj["series"]; ok && obj["series"] != nil {
		ev.EventType = domain.EventRecurring
	}

	return ev, true
}

func (m *Meetup) domFallback(page *fetch.Page) []domain.CrawledEvent {
	candidates := scanAnchors(page.Doc, `a[href*="/events/"]`, m.cfg.BaseURL)
	now := m.now()

	var events []domain.CrawledEvent
	for _, c := range candidates {
		name := firstLine(c.Text, domain.MaxNameLength)
		if name == "" {
			continue
		}
		ev := domain.CrawledEvent{
			Name:        name,
			ExternalURL: c.URL,
			RawData:     map[string]any{"source_payload": c.Text, "schema": "meetup-dom"},
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
