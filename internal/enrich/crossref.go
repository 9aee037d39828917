// Package enrich augments aggregated articles with citation, license, and
// full-text metadata keyed by DOI. Enrichment is strictly best-effort: a
// lookup failure or missing DOI leaves the article unchanged and never fails
// the surrounding request.
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
	// CrossRefBaseURL is the default CrossRef REST API base URL.
	CrossRefBaseURL = "https://api.crossref.org"

	// crossRefRateLimit is the polite-pool request rate.
	crossRefRateLimit = 10.0

	crossRefName = "CrossRef"
)

// crossRefResponse is the envelope around a CrossRef work record.
type crossRefResponse struct {
	Status  string       `json:"status"`
	Message crossRefWork `json:"message"`
}

// crossRefWork is the subset of a CrossRef work used for enrichment.
type crossRefWork struct {
	DOI                 string            `json:"DOI"`
	IsReferencedByCount int               `json:"is-referenced-by-count"`
	License             []crossRefLicense `json:"license,omitempty"`
	Funder              []crossRefFunder  `json:"funder,omitempty"`
}

type crossRefLicense struct {
	URL string `json:"URL"`
}

type crossRefFunder struct {
	Name string `json:"name"`
}

// CrossRefConfig holds configuration for the CrossRef client.
type CrossRefConfig struct {
	// BaseURL defaults to CrossRefBaseURL if empty.
	BaseURL string

	// Email is the contact address sent for polite-pool access.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// Enabled indicates whether CrossRef enrichment is active.
	Enabled bool
}

// CrossRefClient fetches citation and license metadata from CrossRef.
type CrossRefClient struct {
	config     CrossRefConfig
	httpClient *sources.HTTPClient
}

// NewCrossRefClient creates a CrossRef client with the given configuration.
func NewCrossRefClient(cfg CrossRefConfig) *CrossRefClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = CrossRefBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &CrossRefClient{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: crossRefRateLimit,
			BurstSize: 10,
			UserAgent: "Helixir-EvidenceService/1.0 (mailto:" + cfg.Email + ")",
		}),
	}
}

// NewCrossRefClientWithHTTPClient creates a CrossRef client with a custom
// HTTP client, for testing with mock servers.
func NewCrossRefClientWithHTTPClient(cfg CrossRefConfig, httpClient *sources.HTTPClient) *CrossRefClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = CrossRefBaseURL
	}
	return &CrossRefClient{config: cfg, httpClient: httpClient}
}

// Enrich looks up the article's DOI on CrossRef and merges citation count,
// license, and funder metadata into a copy of the article. The citation
// count is only ever raised, never lowered. Returns domain.ErrNotFound when
// CrossRef has no record for the DOI.
func (c *CrossRefClient) Enrich(ctx context.Context, article *domain.Article) (*domain.Article, error) {
	if article.DOI == "" {
		return article, nil
	}

	requestURL := c.config.BaseURL + "/works/" + url.PathEscape(article.DOI)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError(crossRefName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("work", article.DOI)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(crossRefName, resp.StatusCode, string(body), nil)
	}

	var crossRefResp crossRefResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)).Decode(&crossRefResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	enriched := *article
	if crossRefResp.Message.IsReferencedByCount > enriched.CitationCount {
		enriched.CitationCount = crossRefResp.Message.IsReferencedByCount
	}
	if len(crossRefResp.Message.License) > 0 && enriched.License == "" {
		enriched.License = crossRefResp.Message.License[0].URL
	}
	if len(crossRefResp.Message.Funder) > 0 && len(enriched.Funders) == 0 {
		funders := make([]string, 0, len(crossRefResp.Message.Funder))
		for _, f := range crossRefResp.Message.Funder {
			if f.Name != "" {
				funders = append(funders, f.Name)
			}
		}
		enriched.Funders = funders
	}

	return &enriched, nil
}

// Name returns the human-readable name for this enrichment provider.
func (c *CrossRefClient) Name() string {
	return crossRefName
}

// IsEnabled returns whether CrossRef enrichment is active.
func (c *CrossRefClient) IsEnabled() bool {
	return c.config.Enabled
}
