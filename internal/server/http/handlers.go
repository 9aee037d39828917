package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/evidence-service/internal/aggregate"
	"github.com/helixir/evidence-service/internal/cache"
	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/evidence"
	"github.com/helixir/evidence-service/internal/llm"
	"github.com/helixir/evidence-service/internal/routing"
)

// Validation constants.
const (
	minQueryLength     = 3
	maxQueryLength     = 10000
	maxSearchLimit     = 100
	maxHistoryTurns    = 20
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// validate checks askRequest field bounds.
var validate = validator.New()

// searchKey is the cache payload for the search endpoint. Every parameter
// that changes the result participates in the key.
type searchKey struct {
	Query   string               `json:"query"`
	Filters domain.SearchFilters `json:"filters"`
	Enrich  bool                 `json:"enrich"`
	Limit   int                  `json:"limit"`
	Dual    bool                 `json:"dual"`
}

// askKey is the cache payload for the ask endpoint. Answers are keyed by
// question and filters only; conversation history does not partition the
// cache.
type askKey struct {
	Question string               `json:"question"`
	Filters  domain.SearchFilters `json:"filters"`
}

// searchHandler handles GET /api/v1/search.
// It routes the query across sources, aggregates, and returns the merged
// article list. With dual=true the router is bypassed and only the two
// literature databases are queried.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, ok := queryParam(w, r)
	if !ok {
		return
	}

	filters, ok := filtersFromQuery(w, r)
	if !ok {
		return
	}

	enrich, ok := boolParam(w, r, "enrich")
	if !ok {
		return
	}
	dual, ok := boolParam(w, r, "dual")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), false)
			return
		}
		limit = parsed
	}

	opts := aggregate.Options{Enrich: enrich, MaxArticles: limit}
	search := func(ctx context.Context) (*aggregate.Result, error) {
		if dual {
			return s.engine.SearchDual(ctx, query, filters, opts)
		}
		return s.engine.Search(ctx, query, filters, opts)
	}

	if s.store == nil {
		result, err := search(ctx)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resultToSearchResponse(query, result, false))
		return
	}

	key := searchKey{Query: query, Filters: filters, Enrich: enrich, Limit: limit, Dual: dual}
	computed := false
	value, err := s.store.GetOrCompute(ctx, cache.KindSearch, key, s.searchTTL, func(ctx context.Context) (interface{}, error) {
		computed = true
		return search(ctx)
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	cached := !computed
	s.recordCacheOutcome(string(cache.KindSearch), cached)

	writeJSON(w, http.StatusOK, resultToSearchResponse(query, value.(*aggregate.Result), cached))
}

// routeHandler handles GET /api/v1/route.
// It returns the routing decision for a query without searching anything.
func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request) {
	query, ok := queryParam(w, r)
	if !ok {
		return
	}

	decision := routing.Route(query)
	writeJSON(w, http.StatusOK, decisionToRouteResponse(query, decision))
}

// askHandler handles POST /api/v1/ask.
// It runs the full pipeline: route, aggregate, enrich, select evidence, and
// synthesize a cited answer with follow-up questions.
func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.synthesizer == nil {
		writeError(w, http.StatusServiceUnavailable, "answer synthesis is not configured", false)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", false)
		return
	}

	var req askRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body", false)
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), false)
		return
	}
	if len(req.History) > maxHistoryTurns {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("history must have at most %d entries", maxHistoryTurns), false)
		return
	}
	for _, turn := range req.History {
		if turn.Role != "user" && turn.Role != "assistant" {
			writeError(w, http.StatusBadRequest, `history roles must be "user" or "assistant"`, false)
			return
		}
	}
	if err := req.Filters.Validate(); err != nil {
		s.writeDomainError(w, err)
		return
	}

	followUps := req.MaxFollowUps
	if followUps == 0 {
		followUps = s.maxFollowUps
	}

	compute := func(ctx context.Context) (interface{}, error) {
		result, err := s.engine.Search(ctx, req.Question, req.Filters, aggregate.Options{Enrich: true})
		if err != nil {
			return nil, err
		}

		selected := evidence.Select(result.Articles, evidence.Options{Limit: s.evidenceLimit})
		blocks := evidence.FormatBlocks(selected, s.abstractPreview)

		started := time.Now()
		synthesis, err := s.synthesizer.Synthesize(ctx, llm.SynthesisRequest{
			Question:     req.Question,
			Evidence:     blocks,
			History:      req.History,
			MaxFollowUps: followUps,
		})
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordLLMRequestFailed("synthesize", s.synthesizer.Model(), "api_error")
			}
			return nil, fmt.Errorf("synthesize answer: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordLLMRequest("synthesize", synthesis.Model, time.Since(started).Seconds(),
				synthesis.InputTokens, synthesis.OutputTokens)
		}

		return &askResponse{
			Question:        req.Question,
			Answer:          synthesis.Answer,
			FollowUps:       synthesis.FollowUps,
			Citations:       articlesFromDomain(selected),
			QueryType:       string(result.Decision.QueryType),
			SourcesSearched: sourceTypesToStrings(result.SourcesSearched),
			Model:           synthesis.Model,
			InputTokens:     synthesis.InputTokens,
			OutputTokens:    synthesis.OutputTokens,
		}, nil
	}

	if s.store == nil {
		value, err := compute(ctx)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, value)
		return
	}

	key := askKey{Question: req.Question, Filters: req.Filters}
	computed := false
	value, err := s.store.GetOrCompute(ctx, cache.KindAnswer, key, s.answerTTL, func(ctx context.Context) (interface{}, error) {
		computed = true
		return compute(ctx)
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	cached := !computed
	s.recordCacheOutcome(string(cache.KindAnswer), cached)

	// Copy before flagging so the cached entry stays pristine.
	response := *value.(*askResponse)
	response.Cached = cached
	writeJSON(w, http.StatusOK, response)
}

// cacheStatsHandler handles GET /api/v1/cache/stats.
func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cache is disabled", false)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// cacheClearHandler handles DELETE /api/v1/cache.
func (s *Server) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "cache is disabled", false)
		return
	}
	s.store.Clear()
	s.logger.Info().Msg("cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// recordCacheOutcome records a cache hit or miss metric.
func (s *Server) recordCacheOutcome(kind string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(kind)
	} else {
		s.metrics.RecordCacheMiss(kind)
	}
}

// writeDomainError maps classified errors to HTTP status codes and writes a
// JSON error response with the retryable flag. Internal error details are not
// leaked to clients.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var apiErr *llm.APIError
	var extErr *domain.ExternalAPIError
	var ve *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error(), false)
		} else {
			writeError(w, http.StatusBadRequest, "invalid input", false)
		}
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found", false)
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited", true)
	case errors.Is(err, domain.ErrSourceDisabled):
		writeError(w, http.StatusServiceUnavailable, "source disabled", false)
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable", true)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out", true)
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "answer synthesis failed", apiErr.IsTransient())
	case errors.As(err, &extErr):
		writeError(w, http.StatusBadGateway, "upstream source error", domain.Retryable(err))
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error", domain.Retryable(err))
	}
}

// queryParam extracts and validates the required query parameter, writing a
// 400 response on failure.
func queryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required", false)
		return "", false
	}
	if len(query) < minQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", minQueryLength), false)
		return "", false
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at most %d characters", maxQueryLength), false)
		return "", false
	}
	return query, true
}

// filtersFromQuery parses and validates the filter query parameters.
func filtersFromQuery(w http.ResponseWriter, r *http.Request) (domain.SearchFilters, bool) {
	filters := domain.SearchFilters{
		DateRange: domain.DateRange(r.URL.Query().Get("date_range")),
		StudyType: domain.StudyTypeFilter(r.URL.Query().Get("study_type")),
	}
	if err := filters.Validate(); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error(), false)
		} else {
			writeError(w, http.StatusBadRequest, "invalid filters", false)
		}
		return domain.SearchFilters{}, false
	}
	return filters, true
}

// boolParam parses an optional boolean query parameter, writing a 400
// response on malformed values. Absent means false.
func boolParam(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a boolean", name), false)
		return false, false
	}
	return value, true
}

// validationMessage converts validator errors into a client-facing message.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "Question":
		switch fe.Tag() {
		case "required":
			return "question is required"
		case "min":
			return fmt.Sprintf("question must be at least %s characters", fe.Param())
		case "max":
			return fmt.Sprintf("question must be at most %s characters", fe.Param())
		}
	case "MaxFollowUps":
		return "max_follow_ups must be between 0 and 10"
	}
	return "invalid request"
}
