// Package metrics provides Prometheus metrics for the mood-tunes service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "moodtunes"

// Recommendation stages, used as label values.
const (
	StagePrimary   = "primary"
	StageSecondary = "secondary"
	StageRandom    = "random"
)

// Enrichment outcomes, used as label values.
const (
	EnrichOK      = "ok"
	EnrichNoMatch = "no_match"
	EnrichFailed  = "failed"
	EnrichSkipped = "skipped"
)

// Manager owns the service's collectors and the registry they live in.
// A nil *Manager is valid and records nothing.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	classifications     *prometheus.CounterVec
	disagreements       prometheus.Counter
	recommendedSongs    *prometheus.CounterVec
	recommendDuration   prometheus.Histogram
	enrichOutcomes      *prometheus.CounterVec
	catalogImported     prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.classifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "classifications_total",
		Help:      "Mood classifications by dominant category",
	}, []string{"category"})

	m.disagreements = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "strategy_disagreements_total",
		Help:      "Requests where adjusted memberships and classify picked different top categories",
	})

	m.recommendedSongs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "recommended_songs_total",
		Help:      "Songs returned by recommendation stage",
	}, []string{"stage"})

	m.recommendDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "recommend_duration_seconds",
		Help:      "Time spent building a recommendation list",
		Buckets:   m.buckets,
	})

	m.enrichOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "enrich_songs_total",
		Help:      "Catalogue enrichment results by outcome",
	}, []string{"outcome"})

	m.catalogImported = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "catalog_imported_songs_total",
		Help:      "Songs written by catalogue imports",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and method",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// Registry returns the registry backing this Manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordClassification counts a classification with the given dominant category.
func (m *Manager) RecordClassification(category string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(category).Inc()
}

// RecordDisagreement counts a request where the two scoring strategies disagreed.
func (m *Manager) RecordDisagreement() {
	if m == nil {
		return
	}
	m.disagreements.Inc()
}

// RecordRecommended adds n songs returned from stage.
func (m *Manager) RecordRecommended(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recommendedSongs.WithLabelValues(stage).Add(float64(n))
}

// ObserveRecommend records how long a recommendation took.
func (m *Manager) ObserveRecommend(d time.Duration) {
	if m == nil {
		return
	}
	m.recommendDuration.Observe(d.Seconds())
}

// RecordEnrich counts one enrichment outcome.
func (m *Manager) RecordEnrich(outcome string) {
	if m == nil {
		return
	}
	m.enrichOutcomes.WithLabelValues(outcome).Inc()
}

// RecordImported adds n imported songs.
func (m *Manager) RecordImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.catalogImported.Add(float64(n))
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Manager) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
