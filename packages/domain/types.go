// Package domain
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type EventType string

const (
	EventOnce      EventType = "ONCE"
	EventRecurring EventType = "RECURRING"
)

type EventStatus string

const (
	StatusUpcoming  EventStatus = "UPCOMING"
	StatusOngoing   EventStatus = "ONGOING"
	StatusCompleted EventStatus = "COMPLETED"
)

type LocationType string

const (
	LocationOnline  LocationType = "ONLINE"
	LocationOffline LocationType = "OFFLINE"
)

type Category string

const (
	CategoryTech       Category = "TECHNOLOGY"
	CategoryBusiness   Category = "BUSINESS"
	CategoryArt        Category = "ART"
	CategoryMusic      Category = "MUSIC"
	CategorySports     Category = "SPORTS"
	CategoryFood       Category = "FOOD"
	CategoryEducation  Category = "EDUCATION"
	CategoryHealth     Category = "HEALTH"
	CategoryNetworking Category = "NETWORKING"
	CategoryOther      Category = "OTHER"
)

var AllCategories = []Category{
	CategoryTech, CategoryBusiness, CategoryArt, CategoryMusic, CategorySports,
	CategoryFood, CategoryEducation, CategoryHealth, CategoryNetworking, CategoryOther,
}

// ParseCategory matches a raw model/token string against the known category
// set, case-insensitively. Unknown values return (CategoryOther, false).
func ParseCategory(raw string) (Category, bool) {
	cleaned := Category(strings.ToUpper(strings.TrimSpace(raw)))
	for _, c := range AllCategories {
		if c == cleaned {
			return c, true
		}
	}
	return CategoryOther, false
}

const (
	MaxNameLength   = 100
	DefaultDuration = 2 * time.Hour

	// PlaceholderDescription fills Description when a source gives us nothing.
	PlaceholderDescription = "No description available."
)

// CrawledEvent is the canonical intermediate record every extractor produces
// and every downstream stage consumes. Fields are filled best-effort; Normalize
// enforces the required-field defaults before the event leaves the extractor.
type CrawledEvent struct {
	EventType    EventType
	Name         string
	Description  string
	Images       []string
	Price        float64
	Currency     string
	StartAt      time.Time
	EndAt        time.Time
	Status       EventStatus
	LocationType LocationType
	City         string
	Address      string
	Latitude     *float64
	Longitude    *float64
	Categories   []Category
	Tags         []string
	Origin       string
	ExternalID   string
	ExternalURL  string

	AttendeeCount int
	Capacity      int

	// RawData carries the original source payload plus enrichment metadata.
	// Opaque to the pipeline, preserved for the model prompts and debugging.
	RawData map[string]any
}

// Identity derives the deduplication key for an event: stable external id
// first, then the external URL, then a name+start composite. The composite is
// an accepted heuristic; two genuinely distinct events sharing both name and
// start time collapse into one.
func (e *CrawledEvent) Identity() string {
	if e.ExternalID != "" {
		return e.ExternalID
	}
	if e.ExternalURL != "" {
		return e.ExternalURL
	}
	return fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(e.Name)), e.StartAt.Unix())
}

// Normalize enforces the canonical-record invariants in place: name truncated
// to MaxNameLength, description defaulted, end time defaulted to start plus
// DefaultDuration when missing or before start, and status derived from now.
func (e *CrawledEvent) Normalize(now time.Time) {
	e.Name = strings.TrimSpace(e.Name)
	if utf8.RuneCountInString(e.Name) > MaxNameLength {
		// Truncate on rune boundaries; a byte slice would split multi-byte
		// names into invalid UTF-8 that storage rejects.
		e.Name = string([]rune(e.Name)[:MaxNameLength])
	}
	if strings.TrimSpace(e.Description) == "" {
		e.Description = PlaceholderDescription
	}
	if e.EndAt.IsZero() || e.EndAt.Before(e.StartAt) {
		e.EndAt = e.StartAt.Add(DefaultDuration)
	}
	if e.EventType == "" {
		e.EventType = EventOnce
	}
	if e.LocationType == "" {
		e.LocationType = LocationOffline
	}
	e.Status = DetermineStatus(e.StartAt, e.EndAt, now)
}

// ScraperConfig is the static per-source descriptor, built once at startup.
type ScraperConfig struct {
	Name      string
	BaseURL   string
	SearchURL string
	MaxPages  int
	UserAgent string
}

// SourceFailure records one extractor's total failure within a run.
type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// RunSummary is the ephemeral aggregate produced per orchestration pass.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Scraped  int `json:"scraped"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`

	// Rejections maps event identity to the filter's reason.
	Rejections     map[string]string `json:"rejections,omitempty"`
	SourceFailures []SourceFailure   `json:"source_failures,omitempty"`

	// Events is populated only in test mode, where nothing is persisted.
	Events []CrawledEvent `json:"events,omitempty"`
}
