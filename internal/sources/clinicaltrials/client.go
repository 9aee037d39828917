package clinicaltrials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

const (
	// DefaultBaseURL is the base URL for the ClinicalTrials.gov v2 API.
	DefaultBaseURL = "https://clinicaltrials.gov/api/v2"

	// DefaultRateLimit is the default requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 10

	// MaxResultsLimit is the page size cap enforced by the API.
	MaxResultsLimit = 100

	// studyURLPrefix is the canonical study link prefix.
	studyURLPrefix = "https://clinicaltrials.gov/study/"

	// sourceName is the human-readable name for this source.
	sourceName = "ClinicalTrials.gov"
)

// stopPhrasePattern matches trial-related phrases stripped from the query to
// isolate the medical condition before searching the registry. Word
// boundaries keep phrases like "for" from matching inside drug names.
// Longer alternatives come first so substrings are not stripped prematurely.
var stopPhrasePattern = regexp.MustCompile(
	`\b(ongoing clinical trials|clinical trials|clinical trial|clinical studies|clinical study|trials|trial|recruiting|enrolling|ongoing|studies|study|for)\b`)

// Config holds the configuration for the ClinicalTrials.gov client.
type Config struct {
	// BaseURL is the base URL for the v2 API.
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

// Client implements the sources.Source interface for ClinicalTrials.gov.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements Source.
var _ sources.Source = (*Client)(nil)

// New creates a new ClinicalTrials.gov client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "Helixir-EvidenceService/1.0 (mailto:support@helixir.io)",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new ClinicalTrials.gov client with a custom
// HTTP client. This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries ClinicalTrials.gov for studies matching the given parameters.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, domain.ErrSourceDisabled
	}

	startTime := time.Now()

	u, err := url.Parse(c.config.BaseURL + "/studies")
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
	q.Set("query.cond", StripTrialPhrases(params.Query))
	q.Set("format", "json")
	q.Set("pageSize", strconv.Itoa(maxResults))
	q.Set("countTotal", "true")
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

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var studiesResp StudiesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&studiesResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	articles := make([]*domain.Article, 0, len(studiesResp.Studies))
	for i := range studiesResp.Studies {
		articles = append(articles, studyToArticle(&studiesResp.Studies[i]))
	}

	return &sources.SearchResult{
		Articles:       articles,
		TotalResults:   studiesResp.TotalCount,
		Source:         domain.SourceTypeClinicalTrials,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeClinicalTrials
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// StripTrialPhrases removes trial-related stop phrases from a free-text query
// so the condition search matches the registry's condition index rather than
// the literal phrase "clinical trials". Returns the original query when
// stripping would leave nothing.
func StripTrialPhrases(query string) string {
	stripped := stopPhrasePattern.ReplaceAllString(strings.ToLower(query), " ")
	stripped = strings.Join(strings.Fields(stripped), " ")
	if stripped == "" {
		return strings.TrimSpace(query)
	}
	return stripped
}

// studyToArticle converts a registered study to a domain.Article.
// The NCT number serves as the source ID and the lead sponsor stands in for
// the journal field.
func studyToArticle(study *Study) *domain.Article {
	protocol := study.ProtocolSection
	nctID := protocol.IdentificationModule.NCTID

	title := protocol.IdentificationModule.BriefTitle
	if title == "" {
		title = protocol.IdentificationModule.OfficialTitle
	}

	var abstract string
	if protocol.DescriptionModule != nil {
		abstract = strings.TrimSpace(protocol.DescriptionModule.BriefSummary)
	}

	var startDate string
	if protocol.StatusModule.StartDate != nil {
		startDate = protocol.StatusModule.StartDate.Date
	}

	article := &domain.Article{
		SourceID:         nctID,
		Title:            strings.TrimSpace(title),
		JournalOrSponsor: protocol.SponsorModule.LeadSponsor.Name,
		PublicationDate:  startDate,
		Abstract:         abstract,
		StudyType:        classifyStudy(protocol.DesignModule),
		URL:              studyURLPrefix + nctID,
		Source:           domain.SourceTypeClinicalTrials,
	}
	article.Normalize()
	return article
}

// classifyStudy maps registry design metadata to the shared classification.
// Interventional registrations classify as clinical trials; everything else
// falls through the standard rules.
func classifyStudy(design *DesignModule) domain.StudyType {
	if design == nil {
		return domain.StudyTypeClinicalTrial
	}
	signals := make([]string, 0, len(design.Phases)+1)
	if design.StudyType != "" {
		signals = append(signals, design.StudyType)
	}
	signals = append(signals, design.Phases...)
	if st := domain.ClassifyStudyType(signals); st != "" && st != domain.StudyTypeResearchArticle {
		return st
	}
	return domain.StudyTypeClinicalTrial
}
