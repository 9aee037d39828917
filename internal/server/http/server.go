// Package httpserver provides the HTTP REST API for the evidence service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/evidence-service/internal/aggregate"
	"github.com/helixir/evidence-service/internal/cache"
	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/evidence"
	"github.com/helixir/evidence-service/internal/llm"
	"github.com/helixir/evidence-service/internal/observability"
	"github.com/helixir/evidence-service/internal/sources"
)

// Aggregator defines the aggregation pipeline operations used by the HTTP
// server. Implemented by aggregate.Engine.
type Aggregator interface {
	Search(ctx context.Context, query string, filters domain.SearchFilters, opts aggregate.Options) (*aggregate.Result, error)
	SearchDual(ctx context.Context, query string, filters domain.SearchFilters, opts aggregate.Options) (*aggregate.Result, error)
}

// Server is the HTTP REST API server.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	engine      Aggregator
	synthesizer llm.Synthesizer
	store       *cache.Store
	registry    *sources.Registry
	metrics     *observability.Metrics
	logger      zerolog.Logger

	evidenceLimit   int
	abstractPreview int
	maxFollowUps    int
	searchTTL       time.Duration
	answerTTL       time.Duration
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// EvidenceLimit bounds the articles handed to synthesis per ask.
	EvidenceLimit int

	// AbstractPreview is the rune bound on abstracts in the prompt.
	AbstractPreview int

	// MaxFollowUps is the default follow-up question count for ask.
	MaxFollowUps int

	// SearchTTL and AnswerTTL override the cache TTLs when positive.
	SearchTTL time.Duration
	AnswerTTL time.Duration

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
}

// NewServer creates a new HTTP server with all dependencies. The synthesizer
// may be nil when LLM synthesis is disabled; the ask endpoint then returns
// 503. The cache store may be nil when caching is disabled.
func NewServer(
	cfg Config,
	engine Aggregator,
	synthesizer llm.Synthesizer,
	store *cache.Store,
	registry *sources.Registry,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		engine:          engine,
		synthesizer:     synthesizer,
		store:           store,
		registry:        registry,
		metrics:         metrics,
		logger:          logger.With().Str("component", "http-server").Logger(),
		evidenceLimit:   cfg.EvidenceLimit,
		abstractPreview: cfg.AbstractPreview,
		maxFollowUps:    cfg.MaxFollowUps,
		searchTTL:       cfg.SearchTTL,
		answerTTL:       cfg.AnswerTTL,
	}
	if s.evidenceLimit <= 0 {
		s.evidenceLimit = evidence.DefaultLimit
	}
	if s.abstractPreview <= 0 {
		s.abstractPreview = evidence.DefaultAbstractPreview
	}
	if s.maxFollowUps <= 0 {
		s.maxFollowUps = llm.DefaultFollowUps
	}
	if s.searchTTL <= 0 {
		s.searchTTL = cache.DefaultSearchTTL
	}
	if s.answerTTL <= 0 {
		s.answerTTL = cache.DefaultAnswerTTL
	}

	s.router = s.buildRouter(cfg.MetricsPath)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(metricsPath string) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(s.requestLogger)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/search", s.searchHandler)
		r.Get("/route", s.routeHandler)
		r.Post("/ask", s.askHandler)
		r.Get("/cache/stats", s.cacheStatsHandler)
		r.Delete("/cache", s.cacheClearHandler)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status. The service holds no
// persistent connections, so liveness is process liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports ready when at least one article source is enabled.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	enabled := s.registry.EnabledSources()
	if len(enabled) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  "no article sources enabled",
		})
		return
	}

	names := make([]string, len(enabled))
	for i, src := range enabled {
		names[i] = src.SourceType().String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ready",
		"sources": names,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response with the retryable classification.
func writeError(w http.ResponseWriter, statusCode int, message string, retryable bool) {
	writeJSON(w, statusCode, errorResponse{
		Error:     message,
		Retryable: retryable,
	})
}
