package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Dynamic loads a URL in an isolated headless-browser session, capturing JSON
// responses whose URL matches the plan's API patterns, then scrolls in rounds
// to trigger lazy loading and waits for late network activity to settle.
// The browser process is torn down on every exit path; leaked browsers are an
// operational risk, not a cosmetic one.
func (f *Fetcher) Dynamic(ctx context.Context, rawURL string, plan ScrollPlan) (*Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(f.userAgent),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1280, 1024),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, f.browserTimeout)
	defer cancelTimeout()

	buf := &responseBuffer{patterns: plan.APIPatterns}
	listenForResponses(browserCtx, buf)

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
	}
	for i := 0; i < plan.Rounds; i++ {
		tasks = append(tasks,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", plan.StepPixels), nil),
			chromedp.Sleep(plan.Delay),
		)
	}
	tasks = append(tasks,
		chromedp.Sleep(plan.IdleWait),
		chromedp.OuterHTML("html", &html),
	)

	if err := chromedp.Run(browserCtx, tasks); err != nil {
		return nil, fmt.Errorf("browser session for %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	captured := buf.drain()
	slog.Debug("Dynamic fetch finished", "url", rawURL, "captured_responses", len(captured))

	return &Page{
		FinalURL: rawURL,
		HTML:     html,
		Doc:      doc,
		Captured: captured,
		Dynamic:  true,
	}, nil
}

type responseBuffer struct {
	mu       sync.Mutex
	patterns []string
	bodies   [][]byte
}

func (b *responseBuffer) matches(url string) bool {
	for _, p := range b.patterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

func (b *responseBuffer) add(body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies = append(b.bodies, body)
}

func (b *responseBuffer) drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.bodies
	b.bodies = nil
	return out
}

// listenForResponses registers a CDP listener that pulls the body of every
// finished JSON response matching the buffer's patterns. Bodies can only be
// read after EventLoadingFinished, so matching request IDs are remembered
// from the earlier EventResponseReceived.
func listenForResponses(ctx context.Context, buf *responseBuffer) {
	var mu sync.Mutex
	pending := make(map[network.RequestID]string)

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if !buf.matches(e.Response.URL) {
				return
			}
			mime := strings.ToLower(e.Response.MimeType)
			if !strings.Contains(mime, "json") {
				return
			}
			mu.Lock()
			pending[e.RequestID] = e.Response.URL
			mu.Unlock()
		case *network.EventLoadingFinished:
			mu.Lock()
			url, ok := pending[e.RequestID]
			if ok {
				delete(pending, e.RequestID)
			}
			mu.Unlock()
			if !ok {
				return
			}
			requestID := e.RequestID
			go func() {
				c := chromedp.FromContext(ctx)
				body, err := network.GetResponseBody(requestID).Do(cdp.WithExecutor(ctx, c.Target))
				if err != nil {
					slog.Debug("Could not read captured response body", "url", url, "error", err)
					return
				}
				buf.add(body)
			}()
		}
	})
}
