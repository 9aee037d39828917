package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

const (
	// UnpaywallBaseURL is the default Unpaywall API base URL.
	UnpaywallBaseURL = "https://api.unpaywall.org/v2"

	unpaywallRateLimit = 10.0

	unpaywallName = "Unpaywall"
)

// unpaywallResponse is the subset of an Unpaywall record used for enrichment.
type unpaywallResponse struct {
	DOI            string             `json:"doi"`
	IsOA           bool               `json:"is_oa"`
	OAStatus       string             `json:"oa_status,omitempty"`
	BestOALocation *unpaywallLocation `json:"best_oa_location,omitempty"`
}

// unpaywallLocation describes one open-access copy of a work.
type unpaywallLocation struct {
	URL        string `json:"url,omitempty"`
	URLForPDF  string `json:"url_for_pdf,omitempty"`
	License    string `json:"license,omitempty"`
	HostType   string `json:"host_type,omitempty"`
	RepoName   string `json:"repository_institution,omitempty"`
	IsVerified bool   `json:"is_best,omitempty"`
}

// UnpaywallConfig holds configuration for the Unpaywall client.
type UnpaywallConfig struct {
	// BaseURL defaults to UnpaywallBaseURL if empty.
	BaseURL string

	// Email is required by the Unpaywall API on every request.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// Enabled indicates whether Unpaywall enrichment is active.
	Enabled bool
}

// UnpaywallClient locates open-access full texts via Unpaywall.
type UnpaywallClient struct {
	config     UnpaywallConfig
	httpClient *sources.HTTPClient
}

// NewUnpaywallClient creates an Unpaywall client with the given configuration.
func NewUnpaywallClient(cfg UnpaywallConfig) *UnpaywallClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = UnpaywallBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &UnpaywallClient{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: unpaywallRateLimit,
			BurstSize: 10,
			UserAgent: "Helixir-EvidenceService/1.0 (mailto:" + cfg.Email + ")",
		}),
	}
}

// NewUnpaywallClientWithHTTPClient creates an Unpaywall client with a custom
// HTTP client, for testing with mock servers.
func NewUnpaywallClientWithHTTPClient(cfg UnpaywallConfig, httpClient *sources.HTTPClient) *UnpaywallClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = UnpaywallBaseURL
	}
	return &UnpaywallClient{config: cfg, httpClient: httpClient}
}

// Enrich looks up the article's DOI on Unpaywall and sets full-text
// availability from the best open-access location in a copy of the article.
// Returns domain.ErrNotFound when Unpaywall has no record for the DOI.
func (c *UnpaywallClient) Enrich(ctx context.Context, article *domain.Article) (*domain.Article, error) {
	if article.DOI == "" {
		return article, nil
	}

	requestURL := c.config.BaseURL + "/" + url.PathEscape(article.DOI) + "?email=" + url.QueryEscape(c.config.Email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError(unpaywallName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("work", article.DOI)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(unpaywallName, resp.StatusCode, string(body), nil)
	}

	var unpaywallResp unpaywallResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)).Decode(&unpaywallResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	enriched := *article
	if unpaywallResp.IsOA {
		enriched.FullTextAvailable = true
		if loc := unpaywallResp.BestOALocation; loc != nil {
			fullTextURL := loc.URLForPDF
			if fullTextURL == "" {
				fullTextURL = loc.URL
			}
			if fullTextURL != "" {
				enriched.FullTextURL = fullTextURL
			}
			if enriched.License == "" && loc.License != "" {
				enriched.License = loc.License
			}
		}
	}

	return &enriched, nil
}

// Name returns the human-readable name for this enrichment provider.
func (c *UnpaywallClient) Name() string {
	return unpaywallName
}

// IsEnabled returns whether Unpaywall enrichment is active.
func (c *UnpaywallClient) IsEnabled() bool {
	return c.config.Enabled
}
