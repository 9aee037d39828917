package pubmed

import (
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 100

	// articleURLPrefix is the canonical article link prefix.
	articleURLPrefix = "https://pubmed.ncbi.nlm.nih.gov/"

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// With an API key this can be raised to 10 req/sec.
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

// Client implements the sources.Source interface for PubMed.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements Source.
var _ sources.Source = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
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

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries PubMed for articles matching the given parameters.
// It performs a two-step search:
// 1. esearch.fcgi - retrieves PMIDs matching the translated query
// 2. efetch.fcgi - retrieves full article metadata for the PMIDs
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, domain.ErrSourceDisabled
	}

	startTime := time.Now()

	searchResult, err := c.esearch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	// Phrases the index does not know yield empty results, not errors.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		return &sources.SearchResult{
			Articles:       []*domain.Article{},
			TotalResults:   0,
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	if len(searchResult.IDList.IDs) == 0 {
		return &sources.SearchResult{
			Articles:       []*domain.Article{},
			TotalResults:   searchResult.Count,
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	articleSet, err := c.efetch(ctx, searchResult.IDList.IDs)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	articles := make([]*domain.Article, 0, len(articleSet.Articles))
	for _, record := range articleSet.Articles {
		articles = append(articles, recordToArticle(record))
	}

	return &sources.SearchResult{
		Articles:       articles,
		TotalResults:   searchResult.Count,
		Source:         domain.SourceTypePubMed,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildQuery translates the free-text query and filters into PubMed's native
// boolean syntax, appending date and publication-type clauses.
func BuildQuery(query string, filters domain.SearchFilters) string {
	var b strings.Builder
	b.WriteString(query)

	if years := filters.DateRange.Years(); years > 0 {
		from := time.Now().AddDate(-years, 0, 0)
		fmt.Fprintf(&b, ` AND ("%s"[Date - Publication] : "3000"[Date - Publication])`,
			from.Format("2006/01/02"))
	}

	switch filters.StudyType {
	case domain.StudyFilterRCT:
		b.WriteString(` AND randomized controlled trial[Publication Type]`)
	case domain.StudyFilterMeta:
		b.WriteString(` AND meta-analysis[Publication Type]`)
	case domain.StudyFilterReview:
		b.WriteString(` AND review[Publication Type]`)
	case domain.StudyFilterClinical:
		b.WriteString(` AND clinical trial[Publication Type]`)
	case domain.StudyFilterGuideline:
		b.WriteString(` AND (guideline[Publication Type] OR practice guideline[Publication Type])`)
	}

	return b.String()
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, params sources.SearchParams) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", BuildQuery(params.Query, params.Filters))
	q.Set("retmode", "xml")
	q.Set("usehistory", "n")

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}
	q.Set("retmax", strconv.Itoa(maxResults))

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// efetch retrieves full article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML response into dst.
func (c *Client) getXML(ctx context.Context, requestURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewExternalAPIError(sourceName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := xml.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}

	return nil
}

// recordToArticle converts a PubmedArticle to a domain.Article.
// Provider fields are validated individually with explicit fallbacks.
func recordToArticle(record PubmedArticle) *domain.Article {
	citation := record.MedlineCitation
	pmid := citation.PMID.Value

	journal := citation.Article.Journal.Title
	if journal == "" {
		journal = citation.Article.Journal.ISOAbbreviation
	}

	article := &domain.Article{
		SourceID:         pmid,
		Title:            strings.TrimSpace(citation.Article.ArticleTitle),
		Authors:          extractAuthors(citation.Article.AuthorList),
		JournalOrSponsor: journal,
		PublicationDate:  extractPublicationDate(citation.Article),
		DOI:              domain.NormalizeDOI(extractDOI(citation.Article, record.PubmedData)),
		Abstract:         extractAbstract(citation.Article.Abstract),
		StudyType:        domain.ClassifyStudyType(extractPublicationTypes(citation.Article.PublicationTypeList)),
		URL:              articleURLPrefix + pmid + "/",
		Source:           domain.SourceTypePubMed,
	}
	article.Normalize()
	return article
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article CitedArticle, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractPublicationDate builds the raw publication date string.
// Uses ArticleDate if available, otherwise the JournalIssue PubDate.
func extractPublicationDate(article CitedArticle) string {
	for _, ad := range article.ArticleDate {
		if ad.Year != "" {
			return strings.TrimSpace(strings.Join([]string{ad.Year, ad.Month, ad.Day}, " "))
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if pubDate.MedlineDate != "" {
		return pubDate.MedlineDate
	}

	parts := make([]string, 0, 3)
	if pubDate.Year != "" {
		parts = append(parts, pubDate.Year)
	}
	if pubDate.Month != "" {
		parts = append(parts, pubDate.Month)
	}
	if pubDate.Day != "" {
		parts = append(parts, pubDate.Day)
	}
	if pubDate.Season != "" {
		parts = append(parts, pubDate.Season)
	}
	return strings.Join(parts, " ")
}

// extractAbstract concatenates multiple abstract sections into a single string.
// The XML decoder has already resolved entities, so the result is plain text.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	// If only one section without label, return it directly
	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors converts PubMed authors to display name strings.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = a.CollectiveName
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}

		if name == "" {
			continue
		}
		authors = append(authors, name)
	}

	return authors
}

// extractPublicationTypes flattens the publication type list to raw strings.
func extractPublicationTypes(list *PublicationTypeList) []string {
	if list == nil {
		return nil
	}
	types := make([]string, 0, len(list.PublicationTypes))
	for _, pt := range list.PublicationTypes {
		types = append(types, pt.Value)
	}
	return types
}
