// Package main provides the entry point for the evidence service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/helixir/evidence-service/internal/aggregate"
	"github.com/helixir/evidence-service/internal/cache"
	"github.com/helixir/evidence-service/internal/config"
	"github.com/helixir/evidence-service/internal/enrich"
	"github.com/helixir/evidence-service/internal/llm"
	"github.com/helixir/evidence-service/internal/observability"
	httpserver "github.com/helixir/evidence-service/internal/server/http"
	"github.com/helixir/evidence-service/internal/sources"
	"github.com/helixir/evidence-service/internal/sources/clinicaltrials"
	"github.com/helixir/evidence-service/internal/sources/europepmc"
	"github.com/helixir/evidence-service/internal/sources/openalex"
	"github.com/helixir/evidence-service/internal/sources/pubmed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("evidence-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Register the enabled article sources.
	registry := buildRegistry(cfg, logger)

	// Enrichment pipeline (CrossRef, Unpaywall).
	var enricher *enrich.Enricher
	if cfg.Enrichment.Enabled {
		enricher = buildEnricher(cfg, logger, metrics)
	}

	// Result cache.
	var store *cache.Store
	if cfg.Cache.Enabled {
		store = cache.NewStore(cache.WithSweepInterval(cfg.Cache.SweepInterval))
		defer store.Stop()
	}

	// Aggregation engine.
	engineOpts := []aggregate.EngineOption{
		aggregate.WithMaxArticles(cfg.Aggregation.MaxArticles),
	}
	if metrics != nil {
		engineOpts = append(engineOpts, aggregate.WithMetrics(metrics))
	}
	engine := aggregate.NewEngine(registry, enricher, logger, engineOpts...)

	// Answer synthesis.
	var synthesizer llm.Synthesizer
	if cfg.LLM.Enabled {
		synthesizer, err = llm.NewSynthesizer(llm.FactoryConfig{
			Provider:    cfg.LLM.Provider,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
			OpenAI: llm.OpenAIConfig{
				APIKey:  cfg.LLM.OpenAI.APIKey,
				Model:   cfg.LLM.OpenAI.Model,
				BaseURL: cfg.LLM.OpenAI.BaseURL,
			},
			Anthropic: llm.AnthropicConfig{
				APIKey:  cfg.LLM.Anthropic.APIKey,
				Model:   cfg.LLM.Anthropic.Model,
				BaseURL: cfg.LLM.Anthropic.BaseURL,
			},
		})
		if err != nil {
			return fmt.Errorf("create synthesizer: %w", err)
		}
		logger.Info().
			Str("provider", synthesizer.Provider()).
			Str("model", synthesizer.Model()).
			Msg("answer synthesis enabled")
	} else {
		logger.Warn().Msg("answer synthesis disabled; ask endpoint unavailable")
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		EvidenceLimit:   cfg.Aggregation.EvidenceLimit,
		AbstractPreview: cfg.Aggregation.AbstractPreview,
		MaxFollowUps:    cfg.LLM.MaxFollowUps,
		SearchTTL:       cfg.Cache.SearchTTL,
		AnswerTTL:       cfg.Cache.AnswerTTL,
	}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
	}

	httpSrv := httpserver.NewServer(httpCfg, engine, synthesizer, store, registry, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Int("sources_enabled", len(registry.EnabledSources())).
		Msg("evidence-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("evidence-service shutdown complete")
	return nil
}

// buildRegistry registers a client per configured source. Disabled sources
// are registered too; the registry skips them at search time and the
// readiness probe reports on what remains.
func buildRegistry(cfg *config.Config, logger zerolog.Logger) *sources.Registry {
	registry := sources.NewRegistry()

	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.Sources.PubMed.BaseURL,
		APIKey:     cfg.Sources.PubMed.APIKey,
		Timeout:    cfg.Sources.PubMed.Timeout,
		RateLimit:  cfg.Sources.PubMed.RateLimit,
		MaxResults: cfg.Sources.PubMed.MaxResults,
		Enabled:    cfg.Sources.PubMed.Enabled,
	}))
	registry.Register(europepmc.New(europepmc.Config{
		BaseURL:    cfg.Sources.EuropePMC.BaseURL,
		Timeout:    cfg.Sources.EuropePMC.Timeout,
		RateLimit:  cfg.Sources.EuropePMC.RateLimit,
		MaxResults: cfg.Sources.EuropePMC.MaxResults,
		Enabled:    cfg.Sources.EuropePMC.Enabled,
	}))
	registry.Register(openalex.New(openalex.Config{
		BaseURL:    cfg.Sources.OpenAlex.BaseURL,
		Email:      cfg.Sources.OpenAlex.Email,
		Timeout:    cfg.Sources.OpenAlex.Timeout,
		RateLimit:  cfg.Sources.OpenAlex.RateLimit,
		MaxResults: cfg.Sources.OpenAlex.MaxResults,
		Enabled:    cfg.Sources.OpenAlex.Enabled,
	}))
	registry.Register(clinicaltrials.New(clinicaltrials.Config{
		BaseURL:    cfg.Sources.ClinicalTrials.BaseURL,
		Timeout:    cfg.Sources.ClinicalTrials.Timeout,
		RateLimit:  cfg.Sources.ClinicalTrials.RateLimit,
		MaxResults: cfg.Sources.ClinicalTrials.MaxResults,
		Enabled:    cfg.Sources.ClinicalTrials.Enabled,
	}))

	for _, src := range registry.EnabledSources() {
		logger.Info().Str("source", src.Name()).Msg("article source enabled")
	}
	return registry
}

// buildEnricher wires the enrichment providers from configuration.
func buildEnricher(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *enrich.Enricher {
	providers := []enrich.Provider{
		enrich.NewCrossRefClient(enrich.CrossRefConfig{
			BaseURL: cfg.Enrichment.CrossRef.BaseURL,
			Email:   cfg.Enrichment.Email,
			Timeout: cfg.Enrichment.CrossRef.Timeout,
			Enabled: cfg.Enrichment.CrossRef.Enabled,
		}),
		enrich.NewUnpaywallClient(enrich.UnpaywallConfig{
			BaseURL: cfg.Enrichment.Unpaywall.BaseURL,
			Email:   cfg.Enrichment.Email,
			Timeout: cfg.Enrichment.Unpaywall.Timeout,
			Enabled: cfg.Enrichment.Unpaywall.Enabled,
		}),
	}

	opts := []enrich.Option{
		enrich.WithBatchSize(cfg.Enrichment.BatchSize),
		enrich.WithBatchPause(cfg.Enrichment.BatchPause),
	}
	if metrics != nil {
		opts = append(opts, enrich.WithMetrics(metrics))
	}
	return enrich.NewEnricher(logger, providers, opts...)
}
