package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the evidence service.
// Metrics are organized by subsystem: aggregations, searches, articles,
// enrichment, cache, and LLM operations. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// AggregationsStarted counts aggregation pipeline runs initiated.
	AggregationsStarted prometheus.Counter

	// AggregationsCompleted counts pipeline runs that finished successfully.
	AggregationsCompleted prometheus.Counter

	// AggregationsFailed counts pipeline runs that ended in failure.
	AggregationsFailed prometheus.Counter

	// AggregationDuration observes end-to-end pipeline duration in seconds.
	AggregationDuration prometheus.Histogram

	// QueriesRouted counts routing decisions, labeled by query type and confidence.
	QueriesRouted *prometheus.CounterVec

	// SearchesStarted counts searches initiated, labeled by source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by source.
	SearchDuration *prometheus.HistogramVec

	// ArticlesPerSearch observes articles returned per search, labeled by source.
	ArticlesPerSearch *prometheus.HistogramVec

	// ArticlesAggregated counts articles surviving deduplication.
	ArticlesAggregated prometheus.Counter

	// ArticlesDuplicate counts duplicate articles dropped during deduplication.
	ArticlesDuplicate prometheus.Counter

	// ArticlesBySource counts articles retrieved, labeled by source.
	ArticlesBySource *prometheus.CounterVec

	// EnrichmentsTotal counts enrichment lookups, labeled by provider.
	EnrichmentsTotal *prometheus.CounterVec

	// EnrichmentsFailed counts failed enrichment lookups, labeled by provider and error type.
	EnrichmentsFailed *prometheus.CounterVec

	// CacheHits counts cache hits, labeled by kind.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache misses, labeled by kind.
	CacheMisses *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Aggregations
		AggregationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_started_total",
			Help:      "Total number of aggregation pipeline runs started",
		}),
		AggregationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_completed_total",
			Help:      "Total number of aggregation pipeline runs completed successfully",
		}),
		AggregationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_failed_total",
			Help:      "Total number of aggregation pipeline runs that failed",
		}),
		AggregationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of aggregation pipeline runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		QueriesRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_routed_total",
			Help:      "Total number of routing decisions by query type and confidence",
		}, []string{"query_type", "confidence"}),

		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of source searches started by source",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of source searches completed by source",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of source searches that failed by source",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of source searches in seconds by source",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		ArticlesPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "articles_per_search",
			Help:      "Number of articles returned per search by source",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"source"}),

		// Articles
		ArticlesAggregated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_aggregated_total",
			Help:      "Total number of articles surviving deduplication",
		}),
		ArticlesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_duplicate_total",
			Help:      "Total number of duplicate articles dropped",
		}),
		ArticlesBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_by_source_total",
			Help:      "Total number of articles retrieved by source",
		}, []string{"source"}),

		// Enrichment
		EnrichmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Total number of enrichment lookups by provider",
		}, []string{"provider"}),
		EnrichmentsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_failed_total",
			Help:      "Total number of failed enrichment lookups by provider",
		}, []string{"provider", "error_type"}),

		// Cache
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits by kind",
		}, []string{"kind"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses by kind",
		}, []string{"kind"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
	}
}

// RecordAggregationStarted records that a pipeline run has started.
func (m *Metrics) RecordAggregationStarted() {
	m.AggregationsStarted.Inc()
}

// RecordAggregationCompleted records that a pipeline run has completed.
func (m *Metrics) RecordAggregationCompleted(durationSeconds float64) {
	m.AggregationsCompleted.Inc()
	m.AggregationDuration.Observe(durationSeconds)
}

// RecordAggregationFailed records that a pipeline run has failed.
func (m *Metrics) RecordAggregationFailed(durationSeconds float64) {
	m.AggregationsFailed.Inc()
	m.AggregationDuration.Observe(durationSeconds)
}

// RecordQueryRouted records a routing decision.
func (m *Metrics) RecordQueryRouted(queryType, confidence string) {
	m.QueriesRouted.WithLabelValues(queryType, confidence).Inc()
}

// RecordSearchStarted records that a source search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a source search has completed.
func (m *Metrics) RecordSearchCompleted(source string, articleCount int, durationSeconds float64) {
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.ArticlesPerSearch.WithLabelValues(source).Observe(float64(articleCount))
	m.ArticlesBySource.WithLabelValues(source).Add(float64(articleCount))
}

// RecordSearchFailed records that a source search has failed.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordArticlesAggregated records deduplication results.
func (m *Metrics) RecordArticlesAggregated(kept, duplicates int) {
	m.ArticlesAggregated.Add(float64(kept))
	m.ArticlesDuplicate.Add(float64(duplicates))
}

// RecordEnrichment records an enrichment lookup.
func (m *Metrics) RecordEnrichment(provider string) {
	m.EnrichmentsTotal.WithLabelValues(provider).Inc()
}

// RecordEnrichmentFailed records a failed enrichment lookup.
func (m *Metrics) RecordEnrichmentFailed(provider, errorType string) {
	m.EnrichmentsFailed.WithLabelValues(provider, errorType).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMisses.WithLabelValues(kind).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}
