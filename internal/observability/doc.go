// Package observability provides logging, metrics, and context helpers for
// the evidence service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for aggregations, searches, enrichment, cache, and LLM calls
//   - Context helpers for propagating request data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("request_id", reqID).Msg("aggregation started")
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("evidence")
//
// Record metrics:
//
//	metrics.RecordSearchStarted("pubmed")
//	metrics.RecordQueryRouted("trial", "high")
//	metrics.RecordCacheHit("search")
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	reqID := observability.RequestIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - query: User's medical question
//   - query_type: Routed topical category
//   - source: Article source (pubmed, europepmc, openalex, clinicaltrials)
//   - source_id: Provider-specific article identifier
//   - doi: Digital Object Identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
