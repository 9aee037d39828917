package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// MaxResultsLimit is the per_page cap enforced by the API.
	MaxResultsLimit = 200

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"

	// maxAbstractWords bounds inverted-index reconstruction against
	// pathological payloads with excessive position entries.
	maxAbstractWords = 100_000

	// maxAbstractPosition bounds the highest position accepted from the
	// inverted index.
	maxAbstractPosition = 100_000

	// sourceName is the human-readable name for this source.
	sourceName = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// Providing an email grants access to higher rate limits.
	Email string

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

// applyDefaults sets default values for unset configuration fields.
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

// Client implements the sources.Source interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements Source.
var _ sources.Source = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "Helixir-EvidenceService/1.0 (mailto:" + cfg.Email + ")",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries OpenAlex for works matching the given parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, domain.ErrSourceDisabled
	}

	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	articles := make([]*domain.Article, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if article := workToArticle(&searchResp.Results[i]); article != nil {
			articles = append(articles, article)
		}
	}

	return &sources.SearchResult{
		Articles:       articles,
		TotalResults:   searchResp.Meta.Count,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the works search URL with query parameters.
func (c *Client) buildSearchURL(params sources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = "/works"

	query := url.Values{}
	if params.Query != "" {
		query.Set("search", params.Query)
	}

	if filters := BuildFilters(params.Filters); len(filters) > 0 {
		query.Set("filter", strings.Join(filters, ","))
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}
	query.Set("per_page", strconv.Itoa(maxResults))

	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// BuildFilters translates search filters into OpenAlex filter expressions,
// joined by commas in the request URL. OpenAlex has no publication-type
// taxonomy for study designs, so study type filtering maps to the coarse
// work type where possible and is otherwise left to post-search
// classification.
func BuildFilters(filters domain.SearchFilters) []string {
	var parts []string

	if years := filters.DateRange.Years(); years > 0 {
		from := time.Now().AddDate(-years, 0, 0)
		parts = append(parts, "from_publication_date:"+from.Format("2006-01-02"))
	}

	switch filters.StudyType {
	case domain.StudyFilterReview, domain.StudyFilterMeta:
		parts = append(parts, "type:review")
	case domain.StudyFilterRCT, domain.StudyFilterClinical, domain.StudyFilterGuideline:
		parts = append(parts, "type:article")
	}

	return parts
}

// workToArticle converts an OpenAlex Work to a domain.Article.
// Returns nil for works without any usable identifier.
func workToArticle(work *Work) *domain.Article {
	if work == nil {
		return nil
	}

	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	doi := domain.NormalizeDOI(work.DOI)
	if doi == "" {
		doi = domain.NormalizeDOI(work.IDs.DOI)
	}

	if openAlexID == "" && doi == "" {
		return nil
	}

	sourceID := openAlexID
	if sourceID == "" {
		sourceID = doi
	}

	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	var journal string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		journal = work.PrimaryLocation.Source.DisplayName
	}

	var fullTextURL string
	isOpenAccess := false
	if work.OpenAccess != nil {
		isOpenAccess = work.OpenAccess.IsOA
		fullTextURL = work.OpenAccess.OAURL
	}
	if fullTextURL == "" && work.PrimaryLocation != nil {
		fullTextURL = work.PrimaryLocation.PDFURL
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if name := authorship.Author.DisplayName; name != "" {
			authors = append(authors, name)
		}
	}

	articleURL := work.ID
	if articleURL == "" {
		articleURL = openAlexIDPrefix + sourceID
	}

	article := &domain.Article{
		SourceID:          sourceID,
		Title:             strings.TrimSpace(title),
		Authors:           authors,
		JournalOrSponsor:  journal,
		PublicationDate:   work.PublicationDate,
		PublicationYear:   work.PublicationYear,
		DOI:               doi,
		Abstract:          ReconstructAbstract(work.AbstractInvertedIndex),
		StudyType:         classifyWorkType(work.Type, work.DisplayName),
		URL:               articleURL,
		Source:            domain.SourceTypeOpenAlex,
		CitationCount:     work.CitedByCount,
		FullTextAvailable: isOpenAccess || fullTextURL != "",
		FullTextURL:       fullTextURL,
	}
	article.Normalize()
	return article
}

// classifyWorkType classifies from the coarse OpenAlex work type plus the
// title, since OpenAlex carries no study-design metadata.
func classifyWorkType(workType, title string) domain.StudyType {
	signals := make([]string, 0, 2)
	if title != "" {
		signals = append(signals, title)
	}
	if workType != "" {
		signals = append(signals, workType)
	}
	return domain.ClassifyStudyType(signals)
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	id = strings.TrimPrefix(id, openAlexIDPrefix)
	return strings.TrimSpace(id)
}

// ReconstructAbstract rebuilds abstract text from OpenAlex's inverted-index
// representation, which maps each word to the positions it occupies.
// Reconstruction is bounded: payloads exceeding maxAbstractWords entries or
// containing positions beyond maxAbstractPosition yield an empty string.
func ReconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}

	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			if pos < 0 || pos > maxAbstractPosition {
				return ""
			}
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
