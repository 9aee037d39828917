// Package sources provides interfaces and shared plumbing for external
// article source clients.
//
// Each external database (PubMed, Europe PMC, OpenAlex, ClinicalTrials.gov)
// implements the Source interface, allowing the aggregation engine to search
// multiple providers concurrently with a unified API. The package also holds
// the rate-limited, retrying HTTP client that every provider client is built
// on.
//
// Example usage:
//
//	source := pubmed.New(cfg)
//	params := sources.SearchParams{
//		Query:      "aspirin stroke prevention",
//		MaxResults: 20,
//	}
//	result, err := source.Search(ctx, params)
package sources

import (
	"context"
	"time"

	"github.com/helixir/evidence-service/internal/domain"
)

// SearchParams defines the parameters for searching one article source.
type SearchParams struct {
	// Query is the free-text search query (required). Each client
	// translates it into its provider's native syntax.
	Query string

	// Filters carries the user-selected date range and study type
	// restrictions. Clients translate them into provider-native clauses.
	Filters domain.SearchFilters

	// MaxResults limits the number of articles returned. A value of 0
	// uses the client's configured default.
	MaxResults int
}

// SearchResult contains the outcome of one source search.
type SearchResult struct {
	// Articles contains the normalized articles returned by the search.
	// May be empty when nothing matched.
	Articles []*domain.Article

	// TotalResults is the provider-reported total match count, which may
	// be an estimate and may exceed len(Articles).
	TotalResults int

	// Source identifies which provider produced these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search, including
	// network latency and response parsing.
	SearchDuration time.Duration
}

// Source defines the interface that all article source clients implement.
type Source interface {
	// Search queries the source for articles matching the given
	// parameters. Implementations must respect context cancellation,
	// apply their provider's rate limit, and map provider records to
	// domain.Article via field-by-field validation with explicit
	// fallbacks. Errors are classified (domain.ExternalAPIError) so the
	// engine can log and degrade without aborting the aggregation.
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the provider tag for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable name used in logs and metrics.
	Name() string

	// IsEnabled reports whether the source is available for searches.
	// A source may be disabled by configuration or a missing API key.
	IsEnabled() bool
}
