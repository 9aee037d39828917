// Package config provides configuration management for the evidence service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the evidence service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Cache contains result cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Aggregation contains aggregation pipeline settings.
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	// Sources contains article source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Enrichment contains enrichment provider settings.
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	// LLM contains LLM client settings for answer synthesis.
	LLM LLMConfig `mapstructure:"llm"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the metric name prefix.
	Namespace string `mapstructure:"namespace"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// Enabled controls whether pipeline results are cached.
	Enabled bool `mapstructure:"enabled"`
	// SearchTTL is the time-to-live for cached search results.
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	// AnswerTTL is the time-to-live for cached synthesized answers.
	AnswerTTL time.Duration `mapstructure:"answer_ttl"`
	// SweepInterval is how often expired entries are removed.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AggregationConfig holds aggregation pipeline settings.
type AggregationConfig struct {
	// MaxArticles bounds the final merged article list.
	MaxArticles int `mapstructure:"max_articles"`
	// EvidenceLimit bounds the articles embedded in the synthesis prompt.
	EvidenceLimit int `mapstructure:"evidence_limit"`
	// AbstractPreview is the rune bound on abstracts in the prompt.
	AbstractPreview int `mapstructure:"abstract_preview"`
}

// SourcesConfig holds configuration for all article source APIs.
type SourcesConfig struct {
	// PubMed contains NCBI E-utilities settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
	// EuropePMC contains Europe PMC REST API settings.
	EuropePMC SourceConfig `mapstructure:"europepmc"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex SourceConfig `mapstructure:"openalex"`
	// ClinicalTrials contains ClinicalTrials.gov v2 API settings.
	ClinicalTrials SourceConfig `mapstructure:"clinicaltrials"`
}

// SourceConfig holds configuration for a single article source API.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. EVIDENCE_SOURCES_PUBMED_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is the contact address sent where the provider rewards it
	// (OpenAlex polite pool); ignored by sources that take none.
	Email string `mapstructure:"email"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// EnrichmentConfig holds enrichment provider settings.
type EnrichmentConfig struct {
	// Enabled controls whether enrichment runs at all.
	Enabled bool `mapstructure:"enabled"`
	// Email is the contact address sent to CrossRef and Unpaywall.
	// Unpaywall rejects requests without one.
	Email string `mapstructure:"email"`
	// BatchSize is the number of articles enriched concurrently.
	BatchSize int `mapstructure:"batch_size"`
	// BatchPause is the pause between enrichment batches.
	BatchPause time.Duration `mapstructure:"batch_pause"`
	// CrossRef contains CrossRef provider settings.
	CrossRef EnrichProviderConfig `mapstructure:"crossref"`
	// Unpaywall contains Unpaywall provider settings.
	Unpaywall EnrichProviderConfig `mapstructure:"unpaywall"`
}

// EnrichProviderConfig holds configuration for a single enrichment provider.
type EnrichProviderConfig struct {
	// Enabled controls whether this provider is used.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Enabled controls whether answer synthesis is available. When false
	// the ask endpoint reports the feature as unavailable.
	Enabled bool `mapstructure:"enabled"`
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// MaxFollowUps is the number of follow-up questions requested.
	MaxFollowUps int `mapstructure:"max_follow_ups"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI ProviderConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ProviderConfig holds per-provider LLM settings.
type ProviderConfig struct {
	// APIKey is the provider API key (loaded from environment variable,
	// e.g. EVIDENCE_LLM_ANTHROPIC_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the model identifier to use.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/evidence-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	// LLM provider API keys.
	cfg.LLM.OpenAI.APIKey = os.Getenv("EVIDENCE_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("EVIDENCE_LLM_ANTHROPIC_API_KEY")

	// NCBI raises the PubMed rate limit when an API key is supplied.
	cfg.Sources.PubMed.APIKey = os.Getenv("EVIDENCE_SOURCES_PUBMED_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "evidence")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.search_ttl", "24h")
	v.SetDefault("cache.answer_ttl", "12h")
	v.SetDefault("cache.sweep_interval", "10m")

	// Aggregation defaults
	v.SetDefault("aggregation.max_articles", 20)
	v.SetDefault("aggregation.evidence_limit", 15)
	v.SetDefault("aggregation.abstract_preview", 500)

	// Sources defaults - PubMed
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.timeout", "10s")
	v.SetDefault("sources.pubmed.rate_limit", 3.0) // NCBI allows max 3 req/sec without API key
	v.SetDefault("sources.pubmed.max_results", 20)

	// Sources defaults - Europe PMC
	v.SetDefault("sources.europepmc.enabled", true)
	v.SetDefault("sources.europepmc.base_url", "https://www.ebi.ac.uk/europepmc/webservices/rest")
	v.SetDefault("sources.europepmc.timeout", "10s")
	v.SetDefault("sources.europepmc.rate_limit", 5.0)
	v.SetDefault("sources.europepmc.max_results", 20)

	// Sources defaults - OpenAlex
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.email", "")
	v.SetDefault("sources.openalex.timeout", "10s")
	v.SetDefault("sources.openalex.rate_limit", 10.0)
	v.SetDefault("sources.openalex.max_results", 20)

	// Sources defaults - ClinicalTrials.gov
	v.SetDefault("sources.clinicaltrials.enabled", true)
	v.SetDefault("sources.clinicaltrials.base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("sources.clinicaltrials.timeout", "10s")
	v.SetDefault("sources.clinicaltrials.rate_limit", 2.0)
	v.SetDefault("sources.clinicaltrials.max_results", 20)

	// Enrichment defaults
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.email", "")
	v.SetDefault("enrichment.batch_size", 10)
	v.SetDefault("enrichment.batch_pause", "150ms")
	v.SetDefault("enrichment.crossref.enabled", true)
	v.SetDefault("enrichment.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("enrichment.crossref.timeout", "10s")
	v.SetDefault("enrichment.unpaywall.enabled", true)
	v.SetDefault("enrichment.unpaywall.base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("enrichment.unpaywall.timeout", "10s")

	// LLM defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_follow_ups", 3)
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate cache config
	if c.Cache.Enabled {
		if c.Cache.SearchTTL <= 0 {
			return fmt.Errorf("cache search_ttl must be positive")
		}
		if c.Cache.AnswerTTL <= 0 {
			return fmt.Errorf("cache answer_ttl must be positive")
		}
	}

	// Validate aggregation config
	if c.Aggregation.MaxArticles <= 0 {
		return fmt.Errorf("aggregation max_articles must be positive")
	}
	if c.Aggregation.EvidenceLimit <= 0 {
		return fmt.Errorf("aggregation evidence_limit must be positive")
	}

	// At least one source must be enabled or the pipeline can never
	// return anything.
	if !c.Sources.PubMed.Enabled && !c.Sources.EuropePMC.Enabled &&
		!c.Sources.OpenAlex.Enabled && !c.Sources.ClinicalTrials.Enabled {
		return fmt.Errorf("at least one article source must be enabled")
	}

	// Validate enrichment config
	if c.Enrichment.Enabled {
		if c.Enrichment.BatchSize <= 0 {
			return fmt.Errorf("enrichment batch_size must be positive")
		}
		if c.Enrichment.Unpaywall.Enabled && c.Enrichment.Email == "" {
			return fmt.Errorf("enrichment email is required when Unpaywall is enabled")
		}
	}

	// Validate that the configured LLM provider has its required API key
	// set. Synthesis can be disabled outright for search-only deployments.
	if c.LLM.Enabled {
		switch strings.ToLower(c.LLM.Provider) {
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return fmt.Errorf("LLM provider %q requires EVIDENCE_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
			}
		case "anthropic":
			if c.LLM.Anthropic.APIKey == "" {
				return fmt.Errorf("LLM provider %q requires EVIDENCE_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
			}
		default:
			return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
		}
	}

	return nil
}
