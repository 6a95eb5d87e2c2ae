package scraper

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/fetch"
)

func mustJSON(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestSearchEventsWalksNestingAndDeduplicates(t *testing.T) {
	root := mustJSON(t, `{
		"data": {
			"results": [
				{"title": "Go Meetup", "eventUrl": "https://www.meetup.com/go/events/1/", "id": "1", "dateTime": "2026-09-10T19:00:00Z"},
				{"wrapper": {"title": "Go Meetup", "eventUrl": "https://www.meetup.com/go/events/1/", "id": "1", "dateTime": "2026-09-10T19:00:00Z"}},
				{"title": "Rust Meetup", "eventUrl": "https://www.meetup.com/rust/events/2/", "id": "2", "dateTime": "2026-09-11T19:00:00Z"}
			]
		}
	}`)

	events := SearchEvents([]any{root}, []Decoder{decodeMeetupEvent})

	require.Len(t, events, 2)
	assert.Equal(t, "Go Meetup", events[0].Name)
	assert.Equal(t, "Rust Meetup", events[1].Name)
}

func TestSearchEventsDecoderChainOrder(t *testing.T) {
	// An object matching both schemas must be taken by the first decoder only.
	root := mustJSON(t, `{
		"title": "Dual", "eventUrl": "https://example.com/e/1", "id": "77", "dateTime": "2026-09-10T19:00:00Z",
		"@type": "Event", "name": "Dual", "url": "https://example.com/e/1", "startDate": "2026-09-10T19:00:00Z"
	}`)

	events := SearchEvents([]any{root}, []Decoder{decodeMeetupEvent, DecodeJSONLD})

	require.Len(t, events, 1)
	assert.Equal(t, "meetup-gql", events[0].RawData["schema"])
}

func TestCollectJSONRoots(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">{"@type": "Event", "name": "LD"}</script>
		<script id="__NEXT_DATA__" type="application/json">{"props": {}}</script>
		<script type="application/json">not json at all</script>
	</head><body></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	page := &fetch.Page{
		Doc:      doc,
		Captured: [][]byte{[]byte(`{"captured": true}`), []byte(`garbage`)},
	}

	roots := CollectJSONRoots(page)
	assert.Len(t, roots, 3, "one captured body and two inline scripts parse; malformed ones are skipped")
}

func TestDecodeMeetupEvent(t *testing.T) {
	obj := mustJSON(t, `{
		"id": "305771234",
		"title": "Seoul Gophers September",
		"description": "Talks and pizza.",
		"eventUrl": "https://www.meetup.com/seoul-gophers/events/305771234/",
		"dateTime": "2026-09-10T19:00:00+09:00",
		"endTime": "2026-09-10T21:00:00+09:00",
		"eventType": "PHYSICAL",
		"venue": {"city": "Seoul", "address": "123 Teheran-ro", "lat": 37.5, "lng": 127.03},
		"going": {"totalCount": 42},
		"maxTickets": 80,
		"featuredEventPhoto": {"highResUrl": "https://img.example.com/1.jpg"},
		"feeSettings": {"amount": 10000, "currency": "KRW"},
		"topics": [{"name": "golang"}, "backend"],
		"series": {"id": "s1"}
	}`).(map[string]any)

	ev, ok := decodeMeetupEvent(obj)
	require.True(t, ok)

	assert.Equal(t, "Seoul Gophers September", ev.Name)
	assert.Equal(t, "305771234", ev.ExternalID)
	assert.Equal(t, "https://www.meetup.com/seoul-gophers/events/305771234/", ev.ExternalURL)
	assert.Equal(t, domain.LocationOffline, ev.LocationType)
	assert.Equal(t, "Seoul", ev.City)
	assert.Equal(t, 42, ev.AttendeeCount)
	assert.Equal(t, 80, ev.Capacity)
	assert.Equal(t, []string{"https://img.example.com/1.jpg"}, ev.Images)
	assert.Equal(t, 10000.0, ev.Price)
	assert.Equal(t, "KRW", ev.Currency)
	assert.Equal(t, []string{"golang", "backend"}, ev.Tags)
	assert.Equal(t, domain.EventRecurring, ev.EventType)
	require.NotNil(t, ev.Latitude)
	assert.InDelta(t, 37.5, *ev.Latitude, 0.001)
}

func TestDecodeMeetupEventRejectsIncomplete(t *testing.T) {
	for name, raw := range map[string]string{
		"missing title": `{"eventUrl": "https://x", "dateTime": "2026-09-10T19:00:00Z"}`,
		"missing url":   `{"title": "X", "dateTime": "2026-09-10T19:00:00Z"}`,
		"missing date":  `{"title": "X", "eventUrl": "https://x"}`,
		"not an event":  `{"foo": "bar"}`,
	} {
		obj := mustJSON(t, raw).(map[string]any)
		_, ok := decodeMeetupEvent(obj)
		assert.False(t, ok, name)
	}
}

func TestDecodeLumaEvent(t *testing.T) {
	obj := mustJSON(t, `{
		"api_id": "evt-AbCdEf123",
		"name": "Founders Dinner",
		"start_at": "2026-10-01T18:30:00Z",
		"end_at": "2026-10-01T21:00:00Z",
		"url": "founders-dinner",
		"cover_url": "https://images.lumacdn.com/x.png",
		"location_type": "offline",
		"geo_address_json": {"city": "Seoul", "full_address": "Gangnam somewhere"},
		"geo_latitude": 37.49, "geo_longitude": 127.02,
		"price_cents": 2500, "price_currency": "usd",
		"capacity": 30,
		"recurrence_id": "rec-1"
	}`).(map[string]any)

	ev, ok := decodeLumaEvent(obj)
	require.True(t, ok)

	assert.Equal(t, "evt-AbCdEf123", ev.ExternalID)
	assert.Equal(t, "https://lu.ma/founders-dinner", ev.ExternalURL, "relative slugs resolve against lu.ma")
	assert.Equal(t, domain.LocationOffline, ev.LocationType)
	assert.Equal(t, "Seoul", ev.City)
	assert.Equal(t, 25.0, ev.Price)
	assert.Equal(t, "usd", ev.Currency)
	assert.Equal(t, 30, ev.Capacity)
	assert.Equal(t, domain.EventRecurring, ev.EventType)
}

func TestDecodeLumaEventWrapper(t *testing.T) {
	obj := mustJSON(t, `{
		"guest_count": 12,
		"event": {
			"api_id": "evt-xyz",
			"name": "Demo Night",
			"start_at": 1767225600,
			"url": "https://lu.ma/demo-night"
		}
	}`).(map[string]any)

	ev, ok := decodeLumaEvent(obj)
	require.True(t, ok)

	assert.Equal(t, "evt-xyz", ev.ExternalID)
	assert.Equal(t, 12, ev.AttendeeCount)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ev.StartAt)
}

func TestDecodeLumaEventRejectsForeignIDs(t *testing.T) {
	obj := mustJSON(t, `{
		"api_id": "cal-123",
		"name": "A Calendar",
		"start_at": "2026-10-01T18:30:00Z",
		"url": "some-cal"
	}`).(map[string]any)

	_, ok := decodeLumaEvent(obj)
	assert.False(t, ok, "only evt- ids are events")
}

func TestDecodeJSONLD(t *testing.T) {
	obj := mustJSON(t, `{
		"@context": "https://schema.org",
		"@type": ["Event", "SocialEvent"],
		"name": "Wine Tasting",
		"url": "https://lu.ma/wine",
		"startDate": "2026-11-05T19:00:00+09:00",
		"endDate": "2026-11-05T22:00:00+09:00",
		"image": ["https://img/1.jpg", "https://img/2.jpg"],
		"eventAttendanceMode": "https://schema.org/OfflineEventAttendanceMode",
		"location": {
			"@type": "Place",
			"name": "The Cellar",
			"address": {"addressLocality": "Seoul", "streetAddress": "5 Itaewon-ro"},
			"geo": {"latitude": 37.53, "longitude": 126.99}
		},
		"offers": [{"price": "15.00", "priceCurrency": "USD"}]
	}`).(map[string]any)

	ev, ok := DecodeJSONLD(obj)
	require.True(t, ok)

	assert.Equal(t, "Wine Tasting", ev.Name)
	assert.Equal(t, domain.LocationOffline, ev.LocationType)
	assert.Equal(t, "Seoul", ev.City)
	assert.Equal(t, "5 Itaewon-ro", ev.Address)
	assert.Len(t, ev.Images, 2)
	assert.Equal(t, 15.0, ev.Price)
	assert.Equal(t, "USD", ev.Currency)
	require.NotNil(t, ev.Longitude)
	assert.InDelta(t, 126.99, *ev.Longitude, 0.001)
}

func TestDecodeJSONLDVirtualLocation(t *testing.T) {
	obj := mustJSON(t, `{
		"@type": "Event",
		"name": "Remote Workshop",
		"url": "https://example.com/w",
		"startDate": "2026-11-05T19:00:00Z",
		"location": {"@type": "VirtualLocation", "url": "https://zoom.us/j/1"}
	}`).(map[string]any)

	ev, ok := DecodeJSONLD(obj)
	require.True(t, ok)
	assert.Equal(t, domain.LocationOnline, ev.LocationType)
}

func TestParseEventTime(t *testing.T) {
	got, ok := parseEventTime("2026-09-10T19:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 10, 19, 0, 0, 0, time.UTC), got)

	got, ok = parseEventTime(float64(1767225600))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got, ok = parseEventTime(float64(1767225600000))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got, "millisecond epochs are detected")

	_, ok = parseEventTime("")
	assert.False(t, ok)

	_, ok = parseEventTime(nil)
	assert.False(t, ok)
}

func TestFindDate(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	got, ok := findDate("Tech Night September 10, 2026 7:00 PM Seoul", now)
	require.True(t, ok)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.September, got.Month())

	got, ok = findDate("Tech Night September 10 Seoul", now)
	require.True(t, ok)
	assert.Equal(t, 2026, got.Year(), "yearless fragments use the current year")

	_, ok = findDate("no date in here", now)
	assert.False(t, ok)
}

func TestScanAnchors(t *testing.T) {
	html := `<html><body>
		<div class="card">
			<a href="/go/events/1/">Go</a>
			<span>Go Meetup September 10, 2026 at the hub downtown</span>
			<img src="https://img/1.jpg">
		</div>
		<div class="card">
			<a href="https://www.meetup.com/go/events/1/#comments">Go duplicate</a>
		</div>
		<a href="javascript:void(0)">ignored</a>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	candidates := scanAnchors(doc, `a[href*="/events/"]`, "https://www.meetup.com")

	require.Len(t, candidates, 1, "fragment-only variants deduplicate, non-http schemes drop")
	assert.Equal(t, "https://www.meetup.com/go/events/1/", candidates[0].URL)
	assert.Contains(t, candidates[0].Text, "Go Meetup September 10")
	assert.Equal(t, "https://img/1.jpg", candidates[0].Image)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "short", firstLine("short", 100))
	assert.Equal(t, "cut at the last", firstLine("cut at the last space boundary", 20))

	hangul := strings.Repeat("판교개발자모임", 30)
	got := firstLine(hangul, domain.MaxNameLength)
	assert.True(t, utf8.ValidString(got), "multi-byte card text must not be split mid-rune")
	assert.Equal(t, domain.MaxNameLength, utf8.RuneCountInString(got))
}

func TestIsLumaEventLink(t *testing.T) {
	assert.True(t, isLumaEventLink("https://lu.ma/founders-dinner"))
	assert.False(t, isLumaEventLink("https://lu.ma/discover"))
	assert.False(t, isLumaEventLink("https://lu.ma/user/someone"))
	assert.False(t, isLumaEventLink("https://lu.ma/x?utm=1"))
	assert.False(t, isLumaEventLink("https://example.com/abc"))
	assert.False(t, isLumaEventLink("https://lu.ma/"))
}

func TestFinalizeDropsEmptyNamesAndStampsOrigin(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	events := []domain.CrawledEvent{
		{Name: "Keep Me", StartAt: now.Add(time.Hour)},
		{Name: "   ", StartAt: now.Add(time.Hour)},
	}

	out := finalize(events, "meetup", now)

	require.Len(t, out, 1)
	assert.Equal(t, "meetup", out[0].Origin)
	assert.Equal(t, domain.StatusUpcoming, out[0].Status)
}
