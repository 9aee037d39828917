package httpserver

import (
	"github.com/helixir/evidence-service/internal/aggregate"
	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/llm"
	"github.com/helixir/evidence-service/internal/routing"
)

// errorResponse is the JSON error body. Retryable tells clients whether the
// same request may succeed later.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// articleResponse is the wire representation of one article.
type articleResponse struct {
	SourceID          string   `json:"source_id"`
	Title             string   `json:"title"`
	Authors           []string `json:"authors,omitempty"`
	AuthorsPreview    []string `json:"authors_preview,omitempty"`
	JournalOrSponsor  string   `json:"journal_or_sponsor,omitempty"`
	PublicationDate   string   `json:"publication_date,omitempty"`
	PublicationYear   int      `json:"publication_year,omitempty"`
	DOI               string   `json:"doi,omitempty"`
	Abstract          string   `json:"abstract,omitempty"`
	StudyType         string   `json:"study_type,omitempty"`
	URL               string   `json:"url,omitempty"`
	Source            string   `json:"source"`
	CitationCount     int      `json:"citation_count"`
	FullTextAvailable bool     `json:"full_text_available"`
	FullTextURL       string   `json:"full_text_url,omitempty"`
	License           string   `json:"license,omitempty"`
	Funders           []string `json:"funders,omitempty"`
	IsRecent          bool     `json:"is_recent"`
}

// searchResponse is the JSON response for GET /api/v1/search.
type searchResponse struct {
	Query           string            `json:"query"`
	QueryType       string            `json:"query_type"`
	Confidence      string            `json:"confidence"`
	Articles        []articleResponse `json:"articles"`
	TotalResults    int               `json:"total_results"`
	SourcesSearched []string          `json:"sources_searched"`
	SourcesFailed   []string          `json:"sources_failed,omitempty"`
	Duplicates      int               `json:"duplicates"`
	Cached          bool              `json:"cached"`
	DurationMS      int64             `json:"duration_ms"`
}

// routeResponse is the JSON response for GET /api/v1/route.
type routeResponse struct {
	Query      string         `json:"query"`
	QueryType  string         `json:"query_type"`
	Confidence string         `json:"confidence"`
	Score      int            `json:"score"`
	Sources    []string       `json:"sources"`
	Limits     map[string]int `json:"limits"`
}

// askRequest is the JSON request body for POST /api/v1/ask.
type askRequest struct {
	Question     string                 `json:"question" validate:"required,min=3,max=10000"`
	Filters      domain.SearchFilters   `json:"filters"`
	History      []llm.ConversationTurn `json:"history,omitempty"`
	MaxFollowUps int                    `json:"max_follow_ups,omitempty" validate:"min=0,max=10"`
}

// askResponse is the JSON response for POST /api/v1/ask.
type askResponse struct {
	Question        string            `json:"question"`
	Answer          string            `json:"answer"`
	FollowUps       []string          `json:"follow_up_questions,omitempty"`
	Citations       []articleResponse `json:"citations"`
	QueryType       string            `json:"query_type"`
	SourcesSearched []string          `json:"sources_searched"`
	Model           string            `json:"model"`
	InputTokens     int               `json:"input_tokens"`
	OutputTokens    int               `json:"output_tokens"`
	Cached          bool              `json:"cached"`
}

// articleFromDomain converts a domain article to its wire representation.
func articleFromDomain(a *domain.Article) articleResponse {
	return articleResponse{
		SourceID:          a.SourceID,
		Title:             a.Title,
		Authors:           a.Authors,
		AuthorsPreview:    a.AuthorsPreview,
		JournalOrSponsor:  a.JournalOrSponsor,
		PublicationDate:   a.PublicationDate,
		PublicationYear:   a.PublicationYear,
		DOI:               a.DOI,
		Abstract:          a.Abstract,
		StudyType:         string(a.StudyType),
		URL:               a.URL,
		Source:            a.Source.String(),
		CitationCount:     a.CitationCount,
		FullTextAvailable: a.FullTextAvailable,
		FullTextURL:       a.FullTextURL,
		License:           a.License,
		Funders:           a.Funders,
		IsRecent:          a.IsRecent,
	}
}

// articlesFromDomain converts a slice of domain articles; never nil so the
// wire always carries a JSON array.
func articlesFromDomain(articles []*domain.Article) []articleResponse {
	out := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		out = append(out, articleFromDomain(a))
	}
	return out
}

// sourceTypesToStrings converts source type tags for the wire; never nil.
func sourceTypesToStrings(types []domain.SourceType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.String())
	}
	return out
}

// resultToSearchResponse converts an aggregation result to the search wire
// response.
func resultToSearchResponse(query string, result *aggregate.Result, cached bool) searchResponse {
	return searchResponse{
		Query:           query,
		QueryType:       string(result.Decision.QueryType),
		Confidence:      string(result.Decision.Confidence),
		Articles:        articlesFromDomain(result.Articles),
		TotalResults:    result.TotalResults,
		SourcesSearched: sourceTypesToStrings(result.SourcesSearched),
		SourcesFailed:   sourceTypesToStrings(result.SourcesFailed),
		Duplicates:      result.Duplicates,
		Cached:          cached,
		DurationMS:      result.Duration.Milliseconds(),
	}
}

// decisionToRouteResponse converts a routing decision to the route wire
// response.
func decisionToRouteResponse(query string, d routing.Decision) routeResponse {
	limits := make(map[string]int, len(d.Limits))
	for source, limit := range d.Limits {
		limits[source.String()] = limit
	}
	return routeResponse{
		Query:      query,
		QueryType:  string(d.QueryType),
		Confidence: string(d.Confidence),
		Score:      d.Score,
		Sources:    sourceTypesToStrings(d.Sources),
		Limits:     limits,
	}
}
