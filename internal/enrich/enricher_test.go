package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/observability"
)

// stubProvider is a configurable Provider for testing the batch pipeline.
type stubProvider struct {
	name    string
	enabled bool

	enrichFunc func(ctx context.Context, article *domain.Article) (*domain.Article, error)

	mu         sync.Mutex
	calls      int
	concurrent atomic.Int32
	peak       atomic.Int32
}

func (s *stubProvider) Enrich(ctx context.Context, article *domain.Article) (*domain.Article, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	cur := s.concurrent.Add(1)
	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer s.concurrent.Add(-1)

	if s.enrichFunc != nil {
		return s.enrichFunc(ctx, article)
	}
	return article, nil
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) IsEnabled() bool { return s.enabled }

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func withDOIs(n int) []*domain.Article {
	articles := make([]*domain.Article, n)
	for i := range articles {
		articles[i] = &domain.Article{
			Title: "Article",
			DOI:   "10.1/" + string(rune('a'+i)),
		}
	}
	return articles
}

func TestEnricher_EnrichAll(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("applies provider to every article with a DOI", func(t *testing.T) {
		provider := &stubProvider{name: "stub", enabled: true,
			enrichFunc: func(ctx context.Context, a *domain.Article) (*domain.Article, error) {
				enriched := *a
				enriched.CitationCount = 9
				return &enriched, nil
			}}
		enricher := NewEnricher(logger, []Provider{provider}, WithBatchPause(0))

		articles := withDOIs(3)
		articles = append(articles, &domain.Article{Title: "no doi"})

		out := enricher.EnrichAll(context.Background(), articles)
		require.Len(t, out, 4)
		for i := 0; i < 3; i++ {
			assert.Equal(t, 9, out[i].CitationCount)
		}
		assert.Equal(t, 0, out[3].CitationCount)
		assert.Equal(t, 3, provider.callCount())
	})

	t.Run("provider failure keeps the original article", func(t *testing.T) {
		provider := &stubProvider{name: "failing", enabled: true,
			enrichFunc: func(ctx context.Context, a *domain.Article) (*domain.Article, error) {
				return nil, errors.New("provider down")
			}}
		enricher := NewEnricher(logger, []Provider{provider}, WithBatchPause(0))

		articles := withDOIs(2)
		out := enricher.EnrichAll(context.Background(), articles)
		require.Len(t, out, 2)
		assert.Equal(t, articles[0], out[0])
		assert.Equal(t, articles[1], out[1])
	})

	t.Run("chains providers in order", func(t *testing.T) {
		first := &stubProvider{name: "first", enabled: true,
			enrichFunc: func(ctx context.Context, a *domain.Article) (*domain.Article, error) {
				enriched := *a
				enriched.CitationCount = 10
				return &enriched, nil
			}}
		second := &stubProvider{name: "second", enabled: true,
			enrichFunc: func(ctx context.Context, a *domain.Article) (*domain.Article, error) {
				enriched := *a
				enriched.FullTextAvailable = true
				return &enriched, nil
			}}
		enricher := NewEnricher(logger, []Provider{first, second}, WithBatchPause(0))

		out := enricher.EnrichAll(context.Background(), withDOIs(1))
		require.Len(t, out, 1)
		assert.Equal(t, 10, out[0].CitationCount)
		assert.True(t, out[0].FullTextAvailable)
	})

	t.Run("skips disabled providers", func(t *testing.T) {
		disabled := &stubProvider{name: "disabled", enabled: false}
		enricher := NewEnricher(logger, []Provider{disabled}, WithBatchPause(0))

		articles := withDOIs(2)
		out := enricher.EnrichAll(context.Background(), articles)
		assert.Equal(t, articles, out)
		assert.Equal(t, 0, disabled.callCount())
	})

	t.Run("bounds concurrency to the batch size", func(t *testing.T) {
		provider := &stubProvider{name: "slow", enabled: true,
			enrichFunc: func(ctx context.Context, a *domain.Article) (*domain.Article, error) {
				time.Sleep(10 * time.Millisecond)
				return a, nil
			}}
		enricher := NewEnricher(logger, []Provider{provider},
			WithBatchSize(4), WithBatchPause(time.Millisecond))

		enricher.EnrichAll(context.Background(), withDOIs(12))
		assert.Equal(t, 12, provider.callCount())
		assert.LessOrEqual(t, provider.peak.Load(), int32(4))
	})

	t.Run("pauses between batches", func(t *testing.T) {
		provider := &stubProvider{name: "stub", enabled: true}
		enricher := NewEnricher(logger, []Provider{provider},
			WithBatchSize(2), WithBatchPause(30*time.Millisecond))

		start := time.Now()
		enricher.EnrichAll(context.Background(), withDOIs(6))
		// Two inter-batch pauses of 30ms each.
		assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	})

	t.Run("idempotent for articles without a DOI", func(t *testing.T) {
		provider := &stubProvider{name: "stub", enabled: true}
		enricher := NewEnricher(logger, []Provider{provider}, WithBatchPause(0))

		article := &domain.Article{Title: "Bare", Authors: []string{"A"}}
		out := enricher.EnrichAll(context.Background(), []*domain.Article{article})
		require.Len(t, out, 1)
		assert.Equal(t, article, out[0])
		assert.Equal(t, 0, provider.callCount())
	})

	t.Run("empty input returns empty output", func(t *testing.T) {
		enricher := NewEnricher(logger, nil)
		assert.Empty(t, enricher.EnrichAll(context.Background(), nil))
	})
}

func TestEnricherRecordsMetrics(t *testing.T) {
	// Unique namespace; promauto registers with the global registry.
	m := observability.NewMetrics("test_enrich_pipeline")

	succeeding := &stubProvider{name: "citations", enabled: true}
	failing := &stubProvider{name: "fulltext", enabled: true,
		enrichFunc: func(ctx context.Context, a *domain.Article) (*domain.Article, error) {
			return nil, domain.NewExternalAPIError("fulltext", 503, "unavailable", nil)
		}}
	enricher := NewEnricher(zerolog.Nop(), []Provider{succeeding, failing},
		WithBatchPause(0), WithMetrics(m))

	enricher.EnrichAll(context.Background(), withDOIs(3))

	assert.Equal(t, float64(3), testutil.ToFloat64(m.EnrichmentsTotal.WithLabelValues("citations")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.EnrichmentsFailed.WithLabelValues("fulltext", "api_error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.EnrichmentsTotal.WithLabelValues("fulltext")))
}

func TestEnrichErrorType(t *testing.T) {
	assert.Equal(t, "not_found", enrichErrorType(domain.NewNotFoundError("article", "10.1/a")))
	assert.Equal(t, "not_found", enrichErrorType(domain.ErrNotFound))
	assert.Equal(t, "rate_limited", enrichErrorType(domain.NewRateLimitError("crossref", time.Second)))
	assert.Equal(t, "api_error", enrichErrorType(domain.NewExternalAPIError("unpaywall", 500, "boom", nil)))
	assert.Equal(t, "other", enrichErrorType(errors.New("connection reset")))
}
