// Package fetch
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrBadStatus is returned when a static fetch got a non-2xx response.
var ErrBadStatus = errors.New("bad status code")

// Page is the result of a fetch: the parsed document plus, for dynamic
// fetches, every JSON payload captured off the page's network traffic.
type Page struct {
	FinalURL string
	HTML     string
	Doc      *goquery.Document
	Captured [][]byte
	Dynamic  bool
}

// ScrollPlan drives the lazy-loading simulation of a dynamic fetch.
// APIPatterns are substring matches against response URLs; matching JSON
// responses are buffered into Page.Captured.
type ScrollPlan struct {
	Rounds      int
	StepPixels  int
	Delay       time.Duration
	IdleWait    time.Duration
	APIPatterns []string
}

type Fetcher struct {
	client         *http.Client
	userAgent      string
	browserTimeout time.Duration
}

func New(fetchTimeout, browserTimeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:         &http.Client{Timeout: fetchTimeout},
		userAgent:      userAgent,
		browserTimeout: browserTimeout,
	}
}

// Static performs a single HTTP GET and parses the body as HTML.
func (f *Fetcher) Static(ctx context.Context, rawURL string) (*Page, error) {
	slog.Debug("Static fetch starting", "url", rawURL)
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("Static fetch returned bad status code", "url", rawURL, "status_code", resp.StatusCode)
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	htmlContent := string(bodyBytes)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	return &Page{
		FinalURL: resp.Request.URL.String(),
		HTML:     htmlContent,
		Doc:      doc,
	}, nil
}
