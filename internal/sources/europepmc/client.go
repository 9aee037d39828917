package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the base URL for the Europe PMC REST API.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// MaxResultsLimit is the page size cap enforced by the API.
	MaxResultsLimit = 100

	// articleURLPrefix is the canonical article link prefix.
	articleURLPrefix = "https://europepmc.org/article/"

	// sourceName is the human-readable name for this source.
	sourceName = "Europe PMC"
)

// Config holds the configuration for the Europe PMC client.
type Config struct {
	// BaseURL is the base URL for the REST API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default maximum results per search.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the sources.Source interface for Europe PMC.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements Source.
var _ sources.Source = (*Client)(nil)

// New creates a new Europe PMC client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "Helixir-EvidenceService/1.0 (mailto:support@helixir.io)",
	}

	return &Client{
		config:     cfg,
		httpClient: sources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new Europe PMC client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries Europe PMC for articles matching the given parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, domain.ErrSourceDisabled
	}

	startTime := time.Now()

	u, err := url.Parse(c.config.BaseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	q := u.Query()
	q.Set("query", BuildQuery(params.Query, params.Filters))
	q.Set("format", "json")
	q.Set("resultType", "core")
	q.Set("pageSize", strconv.Itoa(maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	articles := make([]*domain.Article, 0, len(searchResp.ResultList.Results))
	for _, record := range searchResp.ResultList.Results {
		articles = append(articles, recordToArticle(record))
	}

	return &sources.SearchResult{
		Articles:       articles,
		TotalResults:   searchResp.HitCount,
		Source:         domain.SourceTypeEuropePMC,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeEuropePMC
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildQuery wraps the free-text query and appends Europe PMC's bracketed
// field filters for date range and publication type.
func BuildQuery(query string, filters domain.SearchFilters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%s)", query)

	if years := filters.DateRange.Years(); years > 0 {
		now := time.Now()
		fmt.Fprintf(&b, " AND (PUB_YEAR:[%d TO %d])", now.Year()-years, now.Year())
	}

	switch filters.StudyType {
	case domain.StudyFilterRCT:
		b.WriteString(` AND (PUB_TYPE:"randomized controlled trial")`)
	case domain.StudyFilterMeta:
		b.WriteString(` AND (PUB_TYPE:"meta-analysis")`)
	case domain.StudyFilterReview:
		b.WriteString(` AND (PUB_TYPE:"review")`)
	case domain.StudyFilterClinical:
		b.WriteString(` AND (PUB_TYPE:"clinical trial")`)
	case domain.StudyFilterGuideline:
		b.WriteString(` AND (PUB_TYPE:"guideline" OR PUB_TYPE:"practice guideline")`)
	}

	return b.String()
}

// recordToArticle converts a Europe PMC result to a domain.Article.
func recordToArticle(record Result) *domain.Article {
	sourceID := record.PMID
	if sourceID == "" {
		sourceID = record.ID
	}

	journal := record.JournalTitle
	if journal == "" && record.JournalInfo != nil && record.JournalInfo.Journal != nil {
		journal = record.JournalInfo.Journal.Title
	}

	pubDate := record.FirstPublicationDate
	if pubDate == "" {
		pubDate = record.PubYear
	}

	fullTextURL := openAccessURL(record.FullTextURLList)

	article := &domain.Article{
		SourceID:          sourceID,
		Title:             strings.TrimSpace(record.Title),
		Authors:           extractAuthors(record),
		JournalOrSponsor:  journal,
		PublicationDate:   pubDate,
		DOI:               domain.NormalizeDOI(record.DOI),
		Abstract:          strings.TrimSpace(record.AbstractText),
		StudyType:         domain.ClassifyStudyType(pubTypes(record.PubTypeList)),
		URL:               articleURLPrefix + record.Source + "/" + record.ID,
		Source:            domain.SourceTypeEuropePMC,
		CitationCount:     record.CitedByCount,
		FullTextAvailable: record.IsOpenAccess == "Y" || fullTextURL != "",
		FullTextURL:       fullTextURL,
	}
	article.Normalize()
	return article
}

// extractAuthors prefers the structured author list, falling back to
// splitting the comma-separated authorString.
func extractAuthors(record Result) []string {
	if record.AuthorList != nil && len(record.AuthorList.Authors) > 0 {
		authors := make([]string, 0, len(record.AuthorList.Authors))
		for _, a := range record.AuthorList.Authors {
			name := a.FullName
			if name == "" {
				name = a.CollectiveName
			}
			if name == "" && a.LastName != "" {
				name = strings.TrimSpace(a.FirstName + " " + a.LastName)
			}
			if name != "" {
				authors = append(authors, name)
			}
		}
		return authors
	}

	if record.AuthorString == "" {
		return nil
	}

	raw := strings.Split(strings.TrimSuffix(record.AuthorString, "."), ",")
	authors := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// openAccessURL picks the first open-access full-text link, if any.
func openAccessURL(list *FullTextURLList) string {
	if list == nil {
		return ""
	}
	for _, ft := range list.FullTextURLs {
		if strings.EqualFold(ft.AvailabilityCode, "OA") || strings.EqualFold(ft.Availability, "Open access") {
			return ft.URL
		}
	}
	return ""
}

func pubTypes(list *PubTypeList) []string {
	if list == nil {
		return nil
	}
	return list.PubTypes
}
