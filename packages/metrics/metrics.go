// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_events_scraped_total",
			Help: "Total number of events produced by extractors, labeled by source.",
		},
		[]string{"source"},
	)
	EventsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_events_accepted_total",
			Help: "Total number of events accepted by the safety filter.",
		},
	)
	EventsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_events_rejected_total",
			Help: "Total number of events rejected by the safety filter.",
		},
	)
	EventsImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_events_imported_total",
			Help: "Total number of events inserted into storage.",
		},
	)
	EventsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_events_skipped_total",
			Help: "Total number of events skipped as duplicates of stored records.",
		},
	)
	ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_scrape_duration_seconds",
			Help:    "Duration of a single source scrape in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"source"},
	)
	SourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_source_failures_total",
			Help: "Total number of extractor runs that failed entirely, labeled by source.",
		},
		[]string{"source"},
	)
	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_model_calls_total",
			Help: "Total number of model runtime calls, labeled by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	StatusRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_status_repairs_total",
			Help: "Total number of stored events whose lifecycle status was corrected.",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsScraped)
	prometheus.MustRegister(EventsAccepted)
	prometheus.MustRegister(EventsRejected)
	prometheus.MustRegister(EventsImported)
	prometheus.MustRegister(EventsSkipped)
	prometheus.MustRegister(ScrapeDuration)
	prometheus.MustRegister(SourceFailures)
	prometheus.MustRegister(ModelCalls)
	prometheus.MustRegister(StatusRepairs)
}

func ExposeMetrics(addr string) {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
