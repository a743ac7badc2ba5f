package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider failure counters back the priority-fallback observability:
// every backend that rolls over to the next provider leaves a trace here.
var (
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sycora",
		Name:      "provider_failures_total",
		Help:      "Failed calls to an external provider, by provider name and kind (llm, embedding).",
	}, []string{"provider", "kind"})

	ProviderFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sycora",
		Name:      "provider_fallbacks_total",
		Help:      "Requests where every provider in a priority list failed, by kind.",
	}, []string{"kind"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sycora",
		Name:      "cache_hits_total",
		Help:      "Cache hits by tier (memory, redis, disk).",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sycora",
		Name:      "cache_misses_total",
		Help:      "Full-cascade cache misses by namespace.",
	}, []string{"namespace"})

	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sycora",
		Name:      "queries_total",
		Help:      "Answered queries by intent.",
	}, []string{"intent"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sycora",
		Name:      "query_duration_seconds",
		Help:      "End-to-end query latency by phase.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
)
