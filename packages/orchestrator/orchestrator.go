// Package orchestrator
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eventcrawler/packages/db"
	"eventcrawler/packages/domain"
	"eventcrawler/packages/metrics"
	"eventcrawler/packages/safety"
	"eventcrawler/packages/scraper"
)

// Sink is the persistence collaborator: an idempotent upsert keyed by
// external identity. Insert is retriable from this side because every insert
// is preceded by the existence check.
type Sink interface {
	FindExisting(ctx context.Context, externalID, externalURL string) (*db.EventRow, error)
	Insert(ctx context.Context, rec *domain.ImportedEventRecord) error
}

// SeenMarker is the optional cross-run identity cache in front of the sink.
type SeenMarker interface {
	Seen(ctx context.Context, identity string) bool
	Mark(ctx context.Context, identity string)
}

// Filter screens and categorizes events; see the safety package for the
// fail-open contract.
type Filter interface {
	CheckSafety(ctx context.Context, event *domain.CrawledEvent) safety.Verdict
	Categorize(ctx context.Context, event *domain.CrawledEvent) []domain.Category
}

// Enricher augments events with detail-page data, best-effort.
type Enricher interface {
	EnrichAll(ctx context.Context, events []domain.CrawledEvent) int
}

// RuntimeManager brackets the run with model runtime lifecycle.
type RuntimeManager interface {
	EnsureRunning(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options tune a single run. Test mode skips persistence and returns the
// event list in the summary; Limit caps how many scraped events continue past
// aggregation.
type Options struct {
	TestMode bool
	Limit    int
}

type Orchestrator struct {
	extractors []scraper.Extractor
	enricher   Enricher
	filter     Filter
	sink       Sink
	seen       SeenMarker
	runtime    RuntimeManager
	auditor    *scraper.Auditor
	now        func() time.Time
}

func New(extractors []scraper.Extractor, enricher Enricher, filter Filter, sink Sink, seen SeenMarker, runtime RuntimeManager, auditor *scraper.Auditor) *Orchestrator {
	return &Orchestrator{
		extractors: extractors,
		enricher:   enricher,
		filter:     filter,
		sink:       sink,
		seen:       seen,
		runtime:    runtime,
		auditor:    auditor,
		now:        time.Now,
	}
}

// RunCrawl executes one full orchestration pass. Per-source failures are
// captured and surfaced in the summary, never propagated; the returned error
// covers only catastrophic setup problems.
func (o *Orchestrator) RunCrawl(ctx context.Context, opts Options) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:      uuid.NewString(),
		StartedAt:  o.now(),
		Rejections: make(map[string]string),
	}
	slog.Info("Crawl run starting", "run_id", summary.RunID, "sources", len(o.extractors), "test_mode", opts.TestMode)

	events := o.scrapeAll(ctx, summary)
	summary.Scraped = len(events)
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
	}

	if o.runtime != nil {
		if err := o.runtime.EnsureRunning(ctx); err != nil {
			// Fail-open: the filter degrades to accept-everything when
			// the runtime never comes up.
			slog.Warn("Model runtime unavailable for this run", "error", err)
		} else {
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := o.runtime.Stop(stopCtx); err != nil {
					slog.Warn("Failed to stop model runtime", "error", err)
				}
			}()
		}
	}

	if o.enricher != nil {
		o.enricher.EnrichAll(ctx, events)
	}

	accepted, rejected := o.filterEvents(ctx, events, summary)
	summary.Accepted = len(accepted)
	summary.Rejected = len(rejected)

	for i := range accepted {
		accepted[i].Categories = o.filter.Categorize(ctx, &accepted[i])
	}

	if o.auditor != nil {
		o.auditor.WriteRun(*summary, accepted, rejected)
	}

	if opts.TestMode {
		summary.Events = accepted
		summary.FinishedAt = o.now()
		slog.Info("Crawl run finished (test mode, nothing persisted)",
			"run_id", summary.RunID, "scraped", summary.Scraped, "accepted", summary.Accepted)
		return summary, nil
	}

	o.persist(ctx, accepted, summary)
	summary.FinishedAt = o.now()
	slog.Info("Crawl run finished",
		"run_id", summary.RunID,
		"scraped", summary.Scraped,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// scrapeAll fans out over every registered extractor concurrently and joins
// on all of them. A failing source is recorded and excluded; siblings are
// never cancelled on its behalf.
func (o *Orchestrator) scrapeAll(ctx context.Context, summary *domain.RunSummary) []domain.CrawledEvent {
	var mu sync.Mutex
	var all []domain.CrawledEvent

	g, gCtx := errgroup.WithContext(ctx)
	for _, ext := range o.extractors {
		extractor := ext
		g.Go(func() error {
			start := time.Now()
			events, err := extractor.ScrapeEvents(gCtx)
			metrics.ScrapeDuration.WithLabelValues(extractor.Name()).Observe(time.Since(start).Seconds())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Error("Source scrape failed", "source", extractor.Name(), "error", err)
				metrics.SourceFailures.WithLabelValues(extractor.Name()).Inc()
				summary.SourceFailures = append(summary.SourceFailures, domain.SourceFailure{
					Source: extractor.Name(),
					Error:  err.Error(),
				})
				return nil
			}
			slog.Info("Source scrape finished", "source", extractor.Name(), "events", len(events))
			metrics.EventsScraped.WithLabelValues(extractor.Name()).Add(float64(len(events)))
			all = append(all, events...)
			return nil
		})
	}
	_ = g.Wait()
	return all
}

func (o *Orchestrator) filterEvents(ctx context.Context, events []domain.CrawledEvent, summary *domain.RunSummary) (accepted, rejected []domain.CrawledEvent) {
	for i := range events {
		verdict := o.filter.CheckSafety(ctx, &events[i])
		if verdict.Accepted {
			accepted = append(accepted, events[i])
			metrics.EventsAccepted.Inc()
			continue
		}
		rejected = append(rejected, events[i])
		summary.Rejections[events[i].Identity()] = verdict.Reason
		metrics.EventsRejected.Inc()
		slog.Info("Event rejected by safety filter",
			"event", events[i].Name, "reason", verdict.Reason)
	}
	return accepted, rejected
}

// persist runs the dedup check and insert per event. One failing insert never
// aborts the remainder of the batch.
func (o *Orchestrator) persist(ctx context.Context, accepted []domain.CrawledEvent, summary *domain.RunSummary) {
	now := o.now()
	for i := range accepted {
		event := &accepted[i]
		identity := event.Identity()

		if o.seen != nil && o.seen.Seen(ctx, identity) {
			summary.Skipped++
			metrics.EventsSkipped.Inc()
			continue
		}

		existing, err := o.sink.FindExisting(ctx, event.ExternalID, event.ExternalURL)
		if err != nil {
			slog.Error("Existence check failed, skipping event", "event", event.Name, "error", err)
			summary.Skipped++
			metrics.EventsSkipped.Inc()
			continue
		}
		if existing != nil {
			summary.Skipped++
			metrics.EventsSkipped.Inc()
			if o.seen != nil {
				o.seen.Mark(ctx, identity)
			}
			continue
		}

		if err := o.sink.Insert(ctx, domain.ToImportedRecord(event, now)); err != nil {
			slog.Error("Insert failed, skipping event", "event", event.Name, "error", err)
			summary.Skipped++
			metrics.EventsSkipped.Inc()
			continue
		}
		summary.Imported++
		metrics.EventsImported.Inc()
		if o.seen != nil {
			o.seen.Mark(ctx, identity)
		}
	}
}
