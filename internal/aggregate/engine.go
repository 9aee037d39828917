// Package aggregate implements the multi-source aggregation pipeline: route
// the query, fan out to the selected sources, merge and deduplicate the
// results in source-priority order, optionally enrich, and bound the final
// set for downstream synthesis.
package aggregate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/enrich"
	"github.com/helixir/evidence-service/internal/observability"
	"github.com/helixir/evidence-service/internal/routing"
	"github.com/helixir/evidence-service/internal/sources"
)

// DefaultMaxArticles bounds the final article list handed to synthesis.
// Truncation keeps relevance order; it does not re-sort.
const DefaultMaxArticles = 20

// dualSourceLimit is the per-source cap on the dual-source convenience path.
const dualSourceLimit = 10

// Options tunes a single pipeline run.
type Options struct {
	// Enrich runs the merged set through the enrichment pipeline.
	Enrich bool

	// MaxArticles overrides the engine's bound for this run when positive.
	MaxArticles int
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Articles is the deduplicated, optionally enriched, bounded list.
	Articles []*domain.Article `json:"articles"`

	// Decision is the routing decision that selected the sources.
	Decision routing.Decision `json:"decision"`

	// TotalResults sums the providers' reported totals before dedup.
	TotalResults int `json:"total_results"`

	// SourcesSearched lists the sources that returned without error.
	SourcesSearched []domain.SourceType `json:"sources_searched"`

	// SourcesFailed lists the sources whose search failed. Failures are
	// absorbed; they never fail the run.
	SourcesFailed []domain.SourceType `json:"sources_failed"`

	// Duplicates is the number of articles dropped by deduplication.
	Duplicates int `json:"duplicates"`

	// Duration is the end-to-end pipeline duration.
	Duration time.Duration `json:"duration"`
}

// Engine orchestrates the aggregation pipeline.
type Engine struct {
	registry    *sources.Registry
	enricher    *enrich.Enricher
	metrics     *observability.Metrics
	logger      zerolog.Logger
	maxArticles int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxArticles overrides the default bound on the final article list.
func WithMaxArticles(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxArticles = n
		}
	}
}

// WithMetrics attaches pipeline metrics. The engine works without them.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an aggregation engine. The enricher may be nil when
// enrichment is disabled entirely.
func NewEngine(registry *sources.Registry, enricher *enrich.Enricher, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    registry,
		enricher:    enricher,
		logger:      logger.With().Str("component", "aggregate").Logger(),
		maxArticles: DefaultMaxArticles,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search routes the query, executes the resulting plan, and returns the
// merged article set. A run where every source fails or returns nothing
// yields an empty (non-nil) article list and no error; callers decide
// whether empty results are user-facing failures.
func (e *Engine) Search(ctx context.Context, query string, filters domain.SearchFilters, opts Options) (*Result, error) {
	decision := routing.Route(query)
	if e.metrics != nil {
		e.metrics.RecordQueryRouted(string(decision.QueryType), string(decision.Confidence))
	}
	return e.run(ctx, decision, query, filters, opts)
}

// SearchDual is the convenience path that queries PubMed and Europe PMC
// without routing, used by endpoints that want literature only.
func (e *Engine) SearchDual(ctx context.Context, query string, filters domain.SearchFilters, opts Options) (*Result, error) {
	decision := routing.Decision{
		QueryType:  routing.QueryTypeGeneral,
		Confidence: routing.ConfidenceMedium,
		Sources: []domain.SourceType{
			domain.SourceTypePubMed,
			domain.SourceTypeEuropePMC,
		},
		Limits: sources.Limits{
			domain.SourceTypePubMed:    dualSourceLimit,
			domain.SourceTypeEuropePMC: dualSourceLimit,
		},
	}
	return e.run(ctx, decision, query, filters, opts)
}

// run executes the plan in a decision: concurrent fan-out, ordered dedup,
// optional enrichment, bounding.
func (e *Engine) run(ctx context.Context, decision routing.Decision, query string, filters domain.SearchFilters, opts Options) (*Result, error) {
	started := time.Now()
	if e.metrics != nil {
		e.metrics.RecordAggregationStarted()
	}

	params := sources.SearchParams{
		Query:   query,
		Filters: filters,
	}

	if e.metrics != nil {
		for _, st := range decision.Sources {
			if src := e.registry.Get(st); src != nil && src.IsEnabled() {
				e.metrics.RecordSearchStarted(st.String())
			}
		}
	}

	searchResults := e.registry.SearchSources(ctx, params, decision.Sources, decision.Limits)

	result := &Result{
		Decision: decision,
	}

	// Flatten in request order. SearchSources preserves it, which makes
	// the dedup pass below a priority order.
	var flattened []*domain.Article
	for _, sr := range searchResults {
		if sr.Error != nil {
			result.SourcesFailed = append(result.SourcesFailed, sr.Source)
			if e.metrics != nil {
				e.metrics.RecordSearchFailed(sr.Source.String(), 0)
			}
			e.logger.Warn().
				Err(sr.Error).
				Str("source", sr.Source.String()).
				Str("query", query).
				Msg("source search failed")
			continue
		}
		result.SourcesSearched = append(result.SourcesSearched, sr.Source)
		result.TotalResults += sr.Result.TotalResults
		if e.metrics != nil {
			e.metrics.RecordSearchCompleted(sr.Source.String(), len(sr.Result.Articles), sr.Result.SearchDuration.Seconds())
		}
		flattened = append(flattened, sr.Result.Articles...)
	}

	articles, duplicates := Deduplicate(flattened)
	result.Duplicates = duplicates
	if e.metrics != nil {
		e.metrics.RecordArticlesAggregated(len(articles), duplicates)
	}

	if opts.Enrich && e.enricher != nil {
		articles = e.enricher.EnrichAll(ctx, articles)
	}

	maxArticles := e.maxArticles
	if opts.MaxArticles > 0 {
		maxArticles = opts.MaxArticles
	}
	if len(articles) > maxArticles {
		articles = articles[:maxArticles]
	}

	result.Articles = articles
	result.Duration = time.Since(started)
	if e.metrics != nil {
		// A run where every selected source failed is a degraded run even
		// though the error itself is absorbed.
		if len(result.SourcesFailed) > 0 && len(result.SourcesSearched) == 0 {
			e.metrics.RecordAggregationFailed(result.Duration.Seconds())
		} else {
			e.metrics.RecordAggregationCompleted(result.Duration.Seconds())
		}
	}

	e.logger.Info().
		Str("query", query).
		Str("query_type", string(decision.QueryType)).
		Int("articles", len(result.Articles)).
		Int("duplicates", duplicates).
		Int("sources_failed", len(result.SourcesFailed)).
		Dur("duration", result.Duration).
		Msg("aggregation completed")

	return result, nil
}

// Deduplicate keeps the first occurrence of each article key, so callers
// must pass articles in source-priority order. The key is the SourceID when
// present, otherwise the lowercased title. Returns the survivors (never nil)
// and the number of duplicates dropped.
func Deduplicate(articles []*domain.Article) ([]*domain.Article, int) {
	seen := make(map[string]struct{}, len(articles))
	kept := make([]*domain.Article, 0, len(articles))
	duplicates := 0

	for _, article := range articles {
		key := article.DedupKey()
		if key == "" {
			kept = append(kept, article)
			continue
		}
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, article)
	}

	return kept, duplicates
}
