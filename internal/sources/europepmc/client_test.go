package europepmc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

const searchResponseJSON = `{
  "version": "6.9",
  "hitCount": 128,
  "resultList": {
    "result": [
      {
        "id": "37000001",
        "source": "MED",
        "pmid": "37000001",
        "doi": "10.1001/jama.2023.12345",
        "title": "Statins for primary prevention: a meta-analysis.",
        "authorString": "Garcia M, Lindqvist E, Tanaka H.",
        "journalTitle": "JAMA",
        "pubYear": "2023",
        "firstPublicationDate": "2023-06-15",
        "abstractText": "Pooled analysis of 24 trials.",
        "pubTypeList": {"pubType": ["meta-analysis", "journal article"]},
        "citedByCount": 41,
        "isOpenAccess": "Y",
        "fullTextUrlList": {
          "fullTextUrl": [
            {"availability": "Open access", "availabilityCode": "OA", "documentStyle": "html", "site": "Europe_PMC", "url": "https://europepmc.org/articles/PMC9999999"}
          ]
        }
      },
      {
        "id": "PPR650001",
        "source": "PPR",
        "title": "Preprint without PMID",
        "authorList": {
          "author": [
            {"fullName": "Nguyen T."},
            {"collectiveName": "COVID Response Consortium"}
          ]
        },
        "pubYear": "2024",
        "pubTypeList": {"pubType": ["preprint"]}
      }
    ]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})

	return NewWithHTTPClient(Config{
		BaseURL: server.URL,
		Enabled: true,
	}, httpClient)
}

func TestClient_Search(t *testing.T) {
	t.Run("maps results to articles", func(t *testing.T) {
		var gotQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("query")
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			assert.Equal(t, "core", r.URL.Query().Get("resultType"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, searchResponseJSON)
		})

		result, err := client.Search(context.Background(), sources.SearchParams{
			Query:      "statins primary prevention",
			Filters:    domain.DefaultFilters(),
			MaxResults: 10,
		})
		require.NoError(t, err)
		require.Len(t, result.Articles, 2)
		assert.Equal(t, 128, result.TotalResults)
		assert.Equal(t, "(statins primary prevention)", gotQuery)

		first := result.Articles[0]
		assert.Equal(t, "37000001", first.SourceID)
		assert.Equal(t, "Statins for primary prevention: a meta-analysis.", first.Title)
		assert.Equal(t, []string{"Garcia M", "Lindqvist E", "Tanaka H"}, first.Authors)
		assert.Equal(t, "JAMA", first.JournalOrSponsor)
		assert.Equal(t, "10.1001/jama.2023.12345", first.DOI)
		assert.Equal(t, domain.StudyTypeMetaAnalysis, first.StudyType)
		assert.Equal(t, "https://europepmc.org/article/MED/37000001", first.URL)
		assert.Equal(t, 41, first.CitationCount)
		assert.True(t, first.FullTextAvailable)
		assert.Equal(t, "https://europepmc.org/articles/PMC9999999", first.FullTextURL)
		assert.Equal(t, 2023, first.PublicationYear)

		second := result.Articles[1]
		assert.Equal(t, "PPR650001", second.SourceID)
		assert.Equal(t, []string{"Nguyen T.", "COVID Response Consortium"}, second.Authors)
		assert.Equal(t, "https://europepmc.org/article/PPR/PPR650001", second.URL)
		assert.False(t, second.FullTextAvailable)
	})

	t.Run("disabled source returns ErrSourceDisabled", func(t *testing.T) {
		client := New(Config{Enabled: false})

		_, err := client.Search(context.Background(), sources.SearchParams{Query: "anything"})
		assert.ErrorIs(t, err, domain.ErrSourceDisabled)
	})

	t.Run("non-200 surfaces as ExternalAPIError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q"})
		require.Error(t, err)
		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("caps page size", func(t *testing.T) {
		var pageSize string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			pageSize = r.URL.Query().Get("pageSize")
			fmt.Fprint(w, `{"hitCount":0,"resultList":{"result":[]}}`)
		})

		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q", MaxResults: 999})
		require.NoError(t, err)
		assert.Equal(t, "100", pageSize)
	})
}

func TestBuildQuery(t *testing.T) {
	t.Run("wraps bare query", func(t *testing.T) {
		assert.Equal(t, "(aspirin)", BuildQuery("aspirin", domain.DefaultFilters()))
	})

	t.Run("appends year range", func(t *testing.T) {
		got := BuildQuery("aspirin", domain.SearchFilters{
			DateRange: domain.DateRangeFive,
			StudyType: domain.StudyFilterAll,
		})
		now := time.Now().Year()
		assert.Equal(t, fmt.Sprintf("(aspirin) AND (PUB_YEAR:[%d TO %d])", now-5, now), got)
	})

	t.Run("appends publication type", func(t *testing.T) {
		got := BuildQuery("aspirin", domain.SearchFilters{
			DateRange: domain.DateRangeAll,
			StudyType: domain.StudyFilterRCT,
		})
		assert.Equal(t, `(aspirin) AND (PUB_TYPE:"randomized controlled trial")`, got)
	})

	t.Run("combines both filters", func(t *testing.T) {
		got := BuildQuery("aspirin", domain.SearchFilters{
			DateRange: domain.DateRangeOneYear,
			StudyType: domain.StudyFilterMeta,
		})
		assert.Contains(t, got, "PUB_YEAR:[")
		assert.Contains(t, got, `PUB_TYPE:"meta-analysis"`)
	})
}
