package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcrawler/packages/domain"
	"eventcrawler/packages/fetch"
)

const detailPage = `<html><head>
<meta name="description" content="An evening of lightning talks.">
<script type="application/ld+json">{
	"@type": "Event",
	"name": "Lightning Talks",
	"url": "https://lu.ma/lightning",
	"startDate": "2026-09-20T19:00:00Z",
	"description": "Five-minute talks from local builders.",
	"image": "https://img/cover.jpg",
	"location": {"@type": "Place", "address": {"addressLocality": "Seoul", "streetAddress": "10 Mapo-daero"}}
}</script>
</head><body><main><p>Ignored body text.</p></main></body></html>`

func newTestEnricher(t *testing.T, handler http.Handler) (*Enricher, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(fetch.New(5*time.Second, time.Minute, "test-agent"), 0, 0), server
}

func TestEnrichFillsEmptyFieldsOnly(t *testing.T) {
	enricher, server := newTestEnricher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailPage))
	}))

	event := &domain.CrawledEvent{
		Name:        "Lightning Talks",
		Description: domain.PlaceholderDescription,
		ExternalURL: server.URL + "/lightning",
		City:        "Busan", // listing value must survive
	}

	require.NoError(t, enricher.Enrich(context.Background(), event))

	assert.Equal(t, "Five-minute talks from local builders.", event.Description)
	assert.Equal(t, []string{"https://img/cover.jpg"}, event.Images)
	assert.Equal(t, "Busan", event.City)
	assert.Equal(t, "10 Mapo-daero", event.Address)
	assert.NotEmpty(t, event.RawData["enriched_at"])
	assert.Equal(t, "eng", event.RawData["language"])
}

func TestEnrichFallsBackToMetaDescription(t *testing.T) {
	page := `<html><head><meta name="description" content="Meta fallback text."></head><body></body></html>`
	enricher, server := newTestEnricher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))

	event := &domain.CrawledEvent{Name: "X", ExternalURL: server.URL}
	require.NoError(t, enricher.Enrich(context.Background(), event))

	assert.Equal(t, "Meta fallback text.", event.Description)
}

func TestEnrichFallsBackToSelectors(t *testing.T) {
	page := `<html><body><div class="event-description">Selector text wins here.</div></body></html>`
	enricher, server := newTestEnricher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))

	event := &domain.CrawledEvent{Name: "X", ExternalURL: server.URL}
	require.NoError(t, enricher.Enrich(context.Background(), event))

	assert.Equal(t, "Selector text wins here.", event.Description)
}

func TestEnrichAllCountsFailuresAndRespectsLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	enricher := New(fetch.New(5*time.Second, time.Minute, "test-agent"), 0, 2)

	events := []domain.CrawledEvent{
		{Name: "A", ExternalURL: server.URL + "/a"},
		{Name: "no url, skipped"},
		{Name: "B", ExternalURL: server.URL + "/b"},
		{Name: "C, over the limit", ExternalURL: server.URL + "/c"},
	}

	failed := enricher.EnrichAll(context.Background(), events)

	assert.Equal(t, 2, failed)
	assert.Equal(t, 2, calls, "the limit caps detail fetches; url-less events do not consume it")
}

func TestMergeDetailDoesNotClobber(t *testing.T) {
	lat, lng := 37.5, 127.0
	dst := &domain.CrawledEvent{
		Description: "Original description.",
		Images:      []string{"https://img/original.jpg"},
		Price:       10,
	}
	src := &domain.CrawledEvent{
		Description: "Detail description.",
		Images:      []string{"https://img/detail.jpg"},
		Price:       99,
		Currency:    "USD",
		Latitude:    &lat,
		Longitude:   &lng,
	}

	mergeDetail(dst, src)

	assert.Equal(t, "Original description.", dst.Description)
	assert.Equal(t, []string{"https://img/original.jpg"}, dst.Images)
	assert.Equal(t, 10.0, dst.Price)
	assert.Equal(t, "USD", dst.Currency, "empty fields are filled")
	require.NotNil(t, dst.Latitude)
	assert.Equal(t, lat, *dst.Latitude)
}
