// Package metrics exposes Prometheus collectors for the feedwise service.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshRunsTotal        *prometheus.CounterVec
	articlesDiscoveredTotal *prometheus.CounterVec
	scoringBatchesTotal     *prometheus.CounterVec
	articlesEnrichedTotal   *prometheus.CounterVec
	progressEventsTotal     *prometheus.CounterVec
	stageDurationSeconds    *prometheus.HistogramVec
	httpRequestsTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		refreshRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwise_refresh_runs_total",
				Help: "Total refresh pipeline runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		articlesDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwise_articles_discovered_total",
				Help: "Total candidate articles discovered, labeled by source.",
			},
			[]string{"source"},
		)

		scoringBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwise_scoring_batches_total",
				Help: "Total scoring batches sent to the judgment service, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		articlesEnrichedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwise_articles_enriched_total",
				Help: "Total articles that completed enrichment, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		progressEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwise_progress_events_total",
				Help: "Total progress events emitted to refresh streams, labeled by type.",
			},
			[]string{"type"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedwise_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwise_http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// ObserveRefreshRun increments the run counter for a terminal status.
func ObserveRefreshRun(status string) {
	if refreshRunsTotal == nil {
		return
	}
	refreshRunsTotal.WithLabelValues(status).Inc()
}

// ObserveDiscovered adds discovered candidates for a source.
func ObserveDiscovered(source string, count int) {
	if articlesDiscoveredTotal == nil {
		return
	}
	articlesDiscoveredTotal.WithLabelValues(source).Add(float64(count))
}

// ObserveScoringBatch increments the batch counter with an outcome of
// "ok" or "fallback".
func ObserveScoringBatch(outcome string) {
	if scoringBatchesTotal == nil {
		return
	}
	scoringBatchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveEnriched increments the enrichment counter with an outcome of
// "ok" or "error".
func ObserveEnriched(outcome string) {
	if articlesEnrichedTotal == nil {
		return
	}
	articlesEnrichedTotal.WithLabelValues(outcome).Inc()
}

// ObserveProgressEvent counts one emitted progress event by type.
func ObserveProgressEvent(eventType string) {
	if progressEventsTotal == nil {
		return
	}
	progressEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveStage records the latency of one pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	if stageDurationSeconds == nil {
		return
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveHTTPRequest counts a served HTTP request.
func ObserveHTTPRequest(method string, code int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
