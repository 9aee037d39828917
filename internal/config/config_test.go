package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes validation, for tests that
// mutate one field at a time.
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Enabled:   true,
			SearchTTL: 24 * time.Hour,
			AnswerTTL: 12 * time.Hour,
		},
		Aggregation: AggregationConfig{
			MaxArticles:     20,
			EvidenceLimit:   15,
			AbstractPreview: 500,
		},
		Sources: SourcesConfig{
			PubMed: SourceConfig{Enabled: true},
		},
		Enrichment: EnrichmentConfig{
			Enabled:   true,
			Email:     "ops@example.org",
			BatchSize: 10,
			CrossRef:  EnrichProviderConfig{Enabled: true},
			Unpaywall: EnrichProviderConfig{Enabled: true},
		},
		LLM: LLMConfig{
			Enabled:   true,
			Provider:  "anthropic",
			Anthropic: ProviderConfig{APIKey: "sk-ant-test", Model: "claude-sonnet-4-20250514"},
		},
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EVIDENCE_LLM_ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "evidence", cfg.Metrics.Namespace)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Cache.SearchTTL)
	assert.Equal(t, 12*time.Hour, cfg.Cache.AnswerTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.SweepInterval)

	assert.Equal(t, 20, cfg.Aggregation.MaxArticles)
	assert.Equal(t, 15, cfg.Aggregation.EvidenceLimit)

	assert.True(t, cfg.Sources.PubMed.Enabled)
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.Sources.PubMed.BaseURL)
	assert.Equal(t, 3.0, cfg.Sources.PubMed.RateLimit)
	assert.True(t, cfg.Sources.EuropePMC.Enabled)
	assert.True(t, cfg.Sources.OpenAlex.Enabled)
	assert.True(t, cfg.Sources.ClinicalTrials.Enabled)
	assert.Equal(t, "https://clinicaltrials.gov/api/v2", cfg.Sources.ClinicalTrials.BaseURL)

	assert.True(t, cfg.Enrichment.Enabled)
	assert.Equal(t, 10, cfg.Enrichment.BatchSize)
	assert.Equal(t, 150*time.Millisecond, cfg.Enrichment.BatchPause)
	assert.Equal(t, "https://api.crossref.org", cfg.Enrichment.CrossRef.BaseURL)
	assert.Equal(t, "https://api.unpaywall.org/v2", cfg.Enrichment.Unpaywall.BaseURL)

	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Anthropic.Model)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EVIDENCE_LLM_ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("EVIDENCE_SERVER_HTTP_PORT", "9999")
	t.Setenv("EVIDENCE_LOGGING_LEVEL", "debug")
	t.Setenv("EVIDENCE_CACHE_SEARCH_TTL", "1h")
	t.Setenv("EVIDENCE_SOURCES_OPENALEX_EMAIL", "dev@example.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, time.Hour, cfg.Cache.SearchTTL)
	assert.Equal(t, "dev@example.org", cfg.Sources.OpenAlex.Email)
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("EVIDENCE_LLM_ANTHROPIC_API_KEY", "sk-ant-secret")
	t.Setenv("EVIDENCE_LLM_OPENAI_API_KEY", "sk-openai-secret")
	t.Setenv("EVIDENCE_SOURCES_PUBMED_API_KEY", "ncbi-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-secret", cfg.LLM.Anthropic.APIKey)
	assert.Equal(t, "sk-openai-secret", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "ncbi-key", cfg.Sources.PubMed.APIKey)
}

func TestLoadFailsWithoutLLMKey(t *testing.T) {
	// Default provider is anthropic; no key in the environment.
	t.Setenv("EVIDENCE_LLM_ANTHROPIC_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVIDENCE_LLM_ANTHROPIC_API_KEY")
}

func TestLoadAllowsDisabledLLM(t *testing.T) {
	t.Setenv("EVIDENCE_LLM_ANTHROPIC_API_KEY", "")
	t.Setenv("EVIDENCE_LLM_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.LLM.Enabled)
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("invalid http port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HTTPPort = 0
		assert.ErrorContains(t, cfg.Validate(), "invalid HTTP port")

		cfg.Server.HTTPPort = 70000
		assert.ErrorContains(t, cfg.Validate(), "invalid HTTP port")
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "verbose"
		assert.ErrorContains(t, cfg.Validate(), "invalid log level")
	})

	t.Run("non-positive cache TTLs", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.SearchTTL = 0
		assert.ErrorContains(t, cfg.Validate(), "search_ttl")

		cfg = validConfig()
		cfg.Cache.AnswerTTL = -time.Hour
		assert.ErrorContains(t, cfg.Validate(), "answer_ttl")
	})

	t.Run("cache TTLs ignored when cache disabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache = CacheConfig{Enabled: false}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("non-positive aggregation bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.Aggregation.MaxArticles = 0
		assert.ErrorContains(t, cfg.Validate(), "max_articles")

		cfg = validConfig()
		cfg.Aggregation.EvidenceLimit = 0
		assert.ErrorContains(t, cfg.Validate(), "evidence_limit")
	})

	t.Run("all sources disabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sources = SourcesConfig{}
		assert.ErrorContains(t, cfg.Validate(), "at least one article source")
	})

	t.Run("unpaywall requires email", func(t *testing.T) {
		cfg := validConfig()
		cfg.Enrichment.Email = ""
		assert.ErrorContains(t, cfg.Validate(), "enrichment email")

		// Disabling Unpaywall lifts the requirement.
		cfg.Enrichment.Unpaywall.Enabled = false
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing provider key", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = "openai"
		assert.ErrorContains(t, cfg.Validate(), "EVIDENCE_LLM_OPENAI_API_KEY")
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM.Provider = "bedrock"
		assert.ErrorContains(t, cfg.Validate(), "unsupported LLM provider")
	})

	t.Run("disabled llm skips provider checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM = LLMConfig{Enabled: false}
		assert.NoError(t, cfg.Validate())
	})
}

func TestHTTPAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", HTTPPort: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddress())
}
