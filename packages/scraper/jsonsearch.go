package scraper

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/fetch"
)

// Decoder attempts to turn one JSON object into a canonical event. Decoders
// are strict about their own schema and return ok=false on any mismatch, so a
// chain of them replaces duck-typing: try schema A, try schema B, give up.
type Decoder func(obj map[string]any) (*domain.CrawledEvent, bool)

// CollectJSONRoots gathers every JSON blob reachable from a fetched page:
// captured network responses plus inline script payloads (application/json,
// application/ld+json, and Next.js __NEXT_DATA__). Malformed fragments are
// skipped, never fatal.
func CollectJSONRoots(page *fetch.Page) []any {
	var roots []any

	for _, body := range page.Captured {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			roots = append(roots, v)
		}
	}

	if page.Doc != nil {
		page.Doc.Find(`script[type="application/json"], script[type="application/ld+json"], script#__NEXT_DATA__`).
			Each(func(_ int, s *goquery.Selection) {
				text := strings.TrimSpace(s.Text())
				if text == "" {
					return
				}
				var v any
				if err := json.Unmarshal([]byte(text), &v); err == nil {
					roots = append(roots, v)
				}
			})
	}

	return roots
}

// SearchEvents walks every root recursively, offers each object to the decoder
// chain, and deduplicates hits through a per-run identity set. The walk
// tolerates arbitrary nesting; it never assumes a payload shape.
func SearchEvents(roots []any, chain []Decoder) []domain.CrawledEvent {
	seen := make(map[string]struct{})
	var events []domain.CrawledEvent

	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			for _, dec := range chain {
				ev, ok := dec(node)
				if !ok {
					continue
				}
				id := ev.Identity()
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					events = append(events, *ev)
				}
				break
			}
			for _, child := range node {
				walk(child)
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}

	for _, root := range roots {
		walk(root)
	}
	return events
}

func getString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func getNumber(obj map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func getObject(obj map[string]any, key string) map[string]any {
	if m, ok := obj[key].(map[string]any); ok {
		return m
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseEventTime accepts the timestamp shapes the two sources actually emit:
// RFC3339 variants, unix epochs in seconds or milliseconds, and as a last
// resort whatever dateparse can make of a human-formatted string.
func parseEventTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(epoch), true
		}
		if parsed, err := dateparse.ParseAny(s); err == nil {
			return parsed, true
		}
	case float64:
		return epochToTime(int64(t)), true
	}
	return time.Time{}, false
}

func epochToTime(epoch int64) time.Time {
	// Millisecond epochs are 13 digits until the year 33658.
	if epoch > 1e12 {
		return time.Unix(epoch/1000, (epoch%1000)*int64(time.Millisecond)).UTC()
	}
	return time.Unix(epoch, 0).UTC()
}
