package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knowledge-engine/storyrank/internal/cache"
)

const namespace = "storyrank"

// Metrics owns a private registry so tests and multiple engines in one
// process do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	rankRequests      *prometheus.CounterVec
	rankDuration      prometheus.Histogram
	collectionLookups *prometheus.CounterVec
	upstreamFetches   *prometheus.CounterVec
	upstreamStories   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rankRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_requests_total",
			Help:      "Ranking requests by outcome.",
		}, []string{"outcome"}),
		rankDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rank_duration_seconds",
			Help:      "Time spent serving a ranking request, upstream fetch included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		collectionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_lookups_total",
			Help:      "Story collection cache lookups by result.",
		}, []string{"result"}),
		upstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Upstream story batch fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		upstreamStories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_batch_stories",
			Help:      "Stories in the last successfully fetched batch.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rankRequests,
		m.rankDuration,
		m.collectionLookups,
		m.upstreamFetches,
		m.upstreamStories,
	)
	return m
}

// ObserveRank records one ranking request. outcome is "ok", "invalid" or
// "upstream_error".
func (m *Metrics) ObserveRank(outcome string, took time.Duration) {
	m.rankRequests.WithLabelValues(outcome).Inc()
	m.rankDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveCollectionLookup(result cache.Result) {
	m.collectionLookups.WithLabelValues(result.String()).Inc()
}

func (m *Metrics) ObserveUpstreamFetch(source string, stories int, err error) {
	if err != nil {
		m.upstreamFetches.WithLabelValues(source, "error").Inc()
		return
	}
	m.upstreamFetches.WithLabelValues(source, "ok").Inc()
	m.upstreamStories.Set(float64(stories))
}

// RegisterTokenCache exports the token cache counters, read on scrape.
func (m *Metrics) RegisterTokenCache(stats func() cache.TokenCacheStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cache_hits_total",
			Help:      "Tokenizer cache hits.",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cache_misses_total",
			Help:      "Tokenizer cache misses.",
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cache_evictions_total",
			Help:      "Keys evicted from the tokenizer cache.",
		}, func() float64 { return float64(stats().Evictions) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_cache_entries",
			Help:      "Keys currently held by the tokenizer cache.",
		}, func() float64 { return float64(stats().Entries) }),
	)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
