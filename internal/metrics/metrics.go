package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamarr"

var (
	// MetaCacheLookups counts metadata selections by kind and freshness status
	MetaCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metacache",
		Name:      "lookups_total",
		Help:      "Metadata cache lookups by kind and freshness status.",
	}, []string{"kind", "status"})

	// MetaCacheInserts counts persisted metadata rows by kind
	MetaCacheInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "metacache",
		Name:      "inserts_total",
		Help:      "Metadata rows written by kind.",
	}, []string{"kind"})

	// ScrapeDuration observes whole scrape sessions
	ScrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scrape",
		Name:      "duration_seconds",
		Help:      "Scrape session duration by final state.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"state"})

	// PhaseDuration observes individual scrape phases
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scrape",
		Name:      "phase_duration_seconds",
		Help:      "Scrape phase duration by phase.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"phase"})

	// ScrapeStreams counts usable streams by category
	ScrapeStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scrape",
		Name:      "streams_total",
		Help:      "Streams that passed every enabled exclusion, by category.",
	}, []string{"category"})

	// ProviderFailures counts provider failures by provider and error kind
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "failures_total",
		Help:      "Provider scrape failures by provider and error kind.",
	}, []string{"provider", "kind"})

	// DebridLookups counts debrid cache lookups by service and answer
	DebridLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "debrid",
		Name:      "lookups_total",
		Help:      "Debrid cache answers by service and result.",
	}, []string{"service", "result"})

	// ActiveScrapes is the number of running scrape sessions
	ActiveScrapes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scrape",
		Name:      "active",
		Help:      "Scrape sessions currently running.",
	})
)
