package domain

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDetermineStatus(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		startAt time.Time
		endAt   time.Time
		want    EventStatus
	}{
		{
			name:    "ended in the past",
			startAt: now.Add(-4 * time.Hour),
			endAt:   now.Add(-2 * time.Hour),
			want:    StatusCompleted,
		},
		{
			name:    "currently running",
			startAt: now.Add(-1 * time.Hour),
			endAt:   now.Add(1 * time.Hour),
			want:    StatusOngoing,
		},
		{
			name:    "starts exactly now",
			startAt: now,
			endAt:   now.Add(2 * time.Hour),
			want:    StatusOngoing,
		},
		{
			name:    "ends exactly now",
			startAt: now.Add(-2 * time.Hour),
			endAt:   now,
			want:    StatusOngoing,
		},
		{
			name:    "starts in the future",
			startAt: now.Add(24 * time.Hour),
			endAt:   now.Add(26 * time.Hour),
			want:    StatusUpcoming,
		},
		{
			name:    "zero times classify as completed",
			startAt: time.Time{},
			endAt:   time.Time{},
			want:    StatusCompleted,
		},
		{
			name:    "inverted range still yields an answer",
			startAt: now.Add(2 * time.Hour),
			endAt:   now.Add(-2 * time.Hour),
			want:    StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineStatus(tt.startAt, tt.endAt, now))
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start := now.Add(24 * time.Hour)

	e := CrawledEvent{Name: "  Seoul Tech Meetup  ", StartAt: start}
	e.Normalize(now)

	assert.Equal(t, "Seoul Tech Meetup", e.Name)
	assert.Equal(t, PlaceholderDescription, e.Description)
	assert.Equal(t, start.Add(DefaultDuration), e.EndAt, "missing end time defaults to start plus two hours")
	assert.Equal(t, EventOnce, e.EventType)
	assert.Equal(t, LocationOffline, e.LocationType)
	assert.Equal(t, StatusUpcoming, e.Status)
}

func TestNormalizeEndBeforeStart(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start := now.Add(24 * time.Hour)

	e := CrawledEvent{Name: "x", StartAt: start, EndAt: start.Add(-time.Hour)}
	e.Normalize(now)

	assert.Equal(t, start.Add(DefaultDuration), e.EndAt)
}

func TestNormalizeTruncatesName(t *testing.T) {
	e := CrawledEvent{Name: strings.Repeat("a", 300), StartAt: time.Now().Add(time.Hour)}
	e.Normalize(time.Now())

	assert.Len(t, e.Name, MaxNameLength)
}

func TestNormalizeTruncatesMultiByteNamesOnRuneBoundaries(t *testing.T) {
	e := CrawledEvent{Name: strings.Repeat("서울모임", 40), StartAt: time.Now().Add(time.Hour)}
	e.Normalize(time.Now())

	assert.True(t, utf8.ValidString(e.Name), "truncation must not split a rune")
	assert.Equal(t, MaxNameLength, utf8.RuneCountInString(e.Name))
}

func TestNormalizeKeepsExistingFields(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(3 * time.Hour)

	e := CrawledEvent{
		Name:         "Jazz Night",
		Description:  "Live jazz downtown.",
		StartAt:      start,
		EndAt:        end,
		EventType:    EventRecurring,
		LocationType: LocationOnline,
	}
	e.Normalize(now)

	assert.Equal(t, "Live jazz downtown.", e.Description)
	assert.Equal(t, end, e.EndAt)
	assert.Equal(t, EventRecurring, e.EventType)
	assert.Equal(t, LocationOnline, e.LocationType)
	assert.Equal(t, StatusOngoing, e.Status)
}

func TestIdentityChain(t *testing.T) {
	start := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)

	withID := CrawledEvent{ExternalID: "evt-abc", ExternalURL: "https://lu.ma/x", Name: "A", StartAt: start}
	assert.Equal(t, "evt-abc", withID.Identity())

	withURL := CrawledEvent{ExternalURL: "https://lu.ma/x", Name: "A", StartAt: start}
	assert.Equal(t, "https://lu.ma/x", withURL.Identity())

	bare := CrawledEvent{Name: "  Rooftop Party  ", StartAt: start}
	assert.Equal(t, "rooftop party|1777662000", bare.Identity())
}

func TestParseCategory(t *testing.T) {
	got, ok := ParseCategory("  technology ")
	assert.True(t, ok)
	assert.Equal(t, CategoryTech, got)

	got, ok = ParseCategory("gardening")
	assert.False(t, ok)
	assert.Equal(t, CategoryOther, got)
}

func TestToImportedRecordForcesIsRealEventFalse(t *testing.T) {
	now := time.Now()
	e := CrawledEvent{
		Name:       "Claimed Real Event",
		ExternalID: "123",
		RawData:    map[string]any{"isRealEvent": true},
		StartAt:    now,
		EndAt:      now.Add(time.Hour),
		Categories: []Category{CategoryMusic},
	}

	rec := ToImportedRecord(&e, now)

	assert.False(t, rec.IsRealEvent)
	assert.Equal(t, now, rec.ImportedAt)
	assert.Equal(t, e.Name, rec.Name)
	assert.Equal(t, e.Categories, rec.Categories)
}
