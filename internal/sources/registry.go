package sources

import (
	"context"
	"sync"

	"github.com/helixir/evidence-service/internal/domain"
)

// SourceResult holds the result of a search from one source.
type SourceResult struct {
	// Source identifies which source produced the result.
	Source domain.SourceType

	// Result contains the search results if the search succeeded.
	// Nil when Error is non-nil.
	Result *SearchResult

	// Error contains the error if the search failed.
	// Nil when Result is non-nil.
	Error error
}

// Limits maps a source type to the maximum results requested from it.
type Limits map[domain.SourceType]int

// Registry manages article sources and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of sources, plus
// fan-out search across multiple sources at once.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
	}
}

// Register adds a source to the registry, replacing any source with the
// same type. This method is thread-safe.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
func (r *Registry) Get(sourceType domain.SourceType) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources returns only enabled sources. The returned slice is a
// snapshot and is safe to iterate even if sources are registered
// concurrently.
func (r *Registry) EnabledSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// SearchSources searches the named sources concurrently, applying the
// per-source result limit from limits (falling back to params.MaxResults
// when a source has no entry). Results are returned in the order of
// sourceTypes so that callers relying on source priority for downstream
// deduplication see a deterministic ordering. Source types not present in
// the registry, and registered sources that are disabled, are skipped.
//
// Errors are not filtered; each SourceResult carries its own error and the
// caller decides how to degrade. The search respects context cancellation.
func (r *Registry) SearchSources(ctx context.Context, params SearchParams, sourceTypes []domain.SourceType, limits Limits) []SourceResult {
	r.mu.RLock()
	selected := make([]Source, 0, len(sourceTypes))
	for _, st := range sourceTypes {
		if source, ok := r.sources[st]; ok && source.IsEnabled() {
			selected = append(selected, source)
		}
	}
	r.mu.RUnlock()

	if len(selected) == 0 {
		return nil
	}

	results := make([]SourceResult, len(selected))
	var wg sync.WaitGroup

	for i, source := range selected {
		wg.Add(1)
		go func(slot int, s Source) {
			defer wg.Done()

			p := params
			if limit, ok := limits[s.SourceType()]; ok && limit > 0 {
				p.MaxResults = limit
			}

			result, err := s.Search(ctx, p)
			results[slot] = SourceResult{
				Source: s.SourceType(),
				Result: result,
				Error:  err,
			}
		}(i, source)
	}

	wg.Wait()
	return results
}
