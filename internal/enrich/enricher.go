package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/observability"
)

const (
	// DefaultBatchSize is the number of articles enriched concurrently
	// before pausing.
	DefaultBatchSize = 10

	// DefaultBatchPause is the pause between enrichment batches. It bounds
	// peak concurrent outbound connections per provider.
	DefaultBatchPause = 150 * time.Millisecond
)

// Provider augments a single article with additional metadata.
// Implementations must return a copy and leave the input untouched.
type Provider interface {
	Enrich(ctx context.Context, article *domain.Article) (*domain.Article, error)
	Name() string
	IsEnabled() bool
}

// Enricher runs articles through the configured providers in fixed-size
// batches: concurrent within a batch, a pause between batches.
type Enricher struct {
	providers  []Provider
	batchSize  int
	batchPause time.Duration
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Option configures the Enricher.
type Option func(*Enricher)

// WithBatchSize overrides the default batch size.
func WithBatchSize(size int) Option {
	return func(e *Enricher) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithBatchPause overrides the default inter-batch pause.
func WithBatchPause(pause time.Duration) Option {
	return func(e *Enricher) {
		if pause >= 0 {
			e.batchPause = pause
		}
	}
}

// WithMetrics attaches lookup metrics. The enricher works without them.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// NewEnricher creates an Enricher over the given providers. Disabled
// providers are skipped at enrichment time.
func NewEnricher(logger zerolog.Logger, providers []Provider, opts ...Option) *Enricher {
	e := &Enricher{
		providers:  providers,
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
		logger:     logger.With().Str("component", "enricher").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnrichAll runs every article through the enabled providers. Articles
// without a DOI pass through unchanged. A provider failure (including "no
// record found") leaves that article as it was; enrichment never fails the
// overall call. The returned slice preserves input order.
func (e *Enricher) EnrichAll(ctx context.Context, articles []*domain.Article) []*domain.Article {
	if len(articles) == 0 {
		return articles
	}

	enabled := e.enabledProviders()
	if len(enabled) == 0 {
		return articles
	}

	out := make([]*domain.Article, len(articles))
	copy(out, articles)

	for start := 0; start < len(out); start += e.batchSize {
		end := start + e.batchSize
		if end > len(out) {
			end = len(out)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if out[i].DOI == "" {
				continue
			}
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				out[idx] = e.enrichOne(ctx, enabled, out[idx])
			}(i)
		}
		wg.Wait()

		if end < len(out) && e.batchPause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(e.batchPause):
			}
		}
	}

	return out
}

// enrichOne chains the providers over a single article. Each provider's
// failure is absorbed and the article from the previous step carries forward.
func (e *Enricher) enrichOne(ctx context.Context, providers []Provider, article *domain.Article) *domain.Article {
	current := article
	for _, provider := range providers {
		enriched, err := provider.Enrich(ctx, current)
		if err != nil {
			if e.metrics != nil {
				e.metrics.RecordEnrichmentFailed(provider.Name(), enrichErrorType(err))
			}
			if !errors.Is(err, domain.ErrNotFound) {
				e.logger.Debug().
					Err(err).
					Str("provider", provider.Name()).
					Str("doi", current.DOI).
					Msg("enrichment lookup failed")
			}
			continue
		}
		if e.metrics != nil {
			e.metrics.RecordEnrichment(provider.Name())
		}
		current = enriched
	}
	return current
}

// enrichErrorType buckets a provider error for the failure metric label.
func enrichErrorType(err error) string {
	var apiErr *domain.ExternalAPIError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "other"
	}
}

func (e *Enricher) enabledProviders() []Provider {
	enabled := make([]Provider, 0, len(e.providers))
	for _, p := range e.providers {
		if p.IsEnabled() {
			enabled = append(enabled, p)
		}
	}
	return enabled
}
