package pubmed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

const esearchResponseXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>2</Count>
  <RetMax>2</RetMax>
  <RetStart>0</RetStart>
  <IdList>
    <Id>38000001</Id>
    <Id>38000002</Id>
  </IdList>
</eSearchResult>`

const esearchEmptyXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>0</Count>
  <RetMax>0</RetMax>
  <RetStart>0</RetStart>
  <IdList></IdList>
</eSearchResult>`

const esearchPhraseNotFoundXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>0</Count>
  <RetMax>0</RetMax>
  <RetStart>0</RetStart>
  <IdList></IdList>
  <ErrorList>
    <PhraseNotFound>zxqwv nonsense phrase</PhraseNotFound>
  </ErrorList>
</eSearchResult>`

const efetchResponseXML = `<?xml version="1.0" encoding="UTF-8"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">38000001</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <Volume>12</Volume>
            <Issue>3</Issue>
            <PubDate>
              <Year>2024</Year>
              <Month>Mar</Month>
            </PubDate>
          </JournalIssue>
          <Title>The Lancet</Title>
        </Journal>
        <ArticleTitle>Metformin and cardiovascular outcomes in type 2 diabetes</ArticleTitle>
        <ELocationID EIdType="doi" ValidYN="Y">10.1016/S0140-6736(24)00001-2</ELocationID>
        <Abstract>
          <AbstractText Label="BACKGROUND">Metformin is first-line therapy.</AbstractText>
          <AbstractText Label="RESULTS">Risk was reduced.</AbstractText>
        </Abstract>
        <AuthorList CompleteYN="Y">
          <Author ValidYN="Y">
            <LastName>Chen</LastName>
            <ForeName>Wei</ForeName>
            <Initials>W</Initials>
          </Author>
          <Author ValidYN="Y">
            <LastName>Okafor</LastName>
            <ForeName>Amara</ForeName>
            <Initials>A</Initials>
          </Author>
        </AuthorList>
        <PublicationTypeList>
          <PublicationType UI="D016449">Randomized Controlled Trial</PublicationType>
          <PublicationType UI="D016428">Journal Article</PublicationType>
        </PublicationTypeList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <PublicationStatus>ppublish</PublicationStatus>
      <ArticleIdList>
        <ArticleId IdType="pubmed">38000001</ArticleId>
        <ArticleId IdType="doi">10.1016/S0140-6736(24)00001-2</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">38000002</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate>
              <MedlineDate>2023 Nov-Dec</MedlineDate>
            </PubDate>
          </JournalIssue>
          <Title>BMJ</Title>
        </Journal>
        <ArticleTitle>Semaglutide for weight management: a systematic review</ArticleTitle>
        <Abstract>
          <AbstractText>Single unlabeled abstract section.</AbstractText>
        </Abstract>
        <AuthorList CompleteYN="Y">
          <Author ValidYN="Y">
            <CollectiveName>GLP-1 Study Group</CollectiveName>
          </Author>
        </AuthorList>
        <PublicationTypeList>
          <PublicationType UI="D000078182">Systematic Review</PublicationType>
        </PublicationTypeList>
      </Article>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">38000002</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

// newTestClient builds a client pointed at a mock E-utilities server.
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

func eutilsHandler(t *testing.T, esearchXML, efetchXML string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			fmt.Fprint(w, esearchXML)
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
			fmt.Fprint(w, efetchXML)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestClient_Search(t *testing.T) {
	t.Run("maps fetched records to articles", func(t *testing.T) {
		client := newTestClient(t, eutilsHandler(t, esearchResponseXML, efetchResponseXML))

		result, err := client.Search(context.Background(), sources.SearchParams{
			Query:      "metformin cardiovascular",
			Filters:    domain.DefaultFilters(),
			MaxResults: 10,
		})
		require.NoError(t, err)
		require.Len(t, result.Articles, 2)
		assert.Equal(t, 2, result.TotalResults)
		assert.Equal(t, domain.SourceTypePubMed, result.Source)

		first := result.Articles[0]
		assert.Equal(t, "38000001", first.SourceID)
		assert.Equal(t, "Metformin and cardiovascular outcomes in type 2 diabetes", first.Title)
		assert.Equal(t, []string{"Wei Chen", "Amara Okafor"}, first.Authors)
		assert.Equal(t, "The Lancet", first.JournalOrSponsor)
		assert.Equal(t, "10.1016/s0140-6736(24)00001-2", first.DOI)
		assert.Equal(t, "BACKGROUND: Metformin is first-line therapy. RESULTS: Risk was reduced.", first.Abstract)
		assert.Equal(t, domain.StudyTypeRCT, first.StudyType)
		assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/38000001/", first.URL)
		assert.Equal(t, 2024, first.PublicationYear)

		second := result.Articles[1]
		assert.Equal(t, "38000002", second.SourceID)
		assert.Equal(t, []string{"GLP-1 Study Group"}, second.Authors)
		assert.Equal(t, "Single unlabeled abstract section.", second.Abstract)
		assert.Equal(t, domain.StudyTypeSystematicReview, second.StudyType)
		assert.Equal(t, "2023 Nov-Dec", second.PublicationDate)
		assert.Equal(t, 2023, second.PublicationYear)
		assert.Empty(t, second.DOI)
	})

	t.Run("empty ID list returns empty result without efetch", func(t *testing.T) {
		var efetchCalled bool
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/efetch.fcgi") {
				efetchCalled = true
			}
			fmt.Fprint(w, esearchEmptyXML)
		})

		result, err := client.Search(context.Background(), sources.SearchParams{Query: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, result.Articles)
		assert.False(t, efetchCalled)
	})

	t.Run("phrase not found is empty result, not error", func(t *testing.T) {
		client := newTestClient(t, eutilsHandler(t, esearchPhraseNotFoundXML, efetchResponseXML))

		result, err := client.Search(context.Background(), sources.SearchParams{Query: "zxqwv nonsense phrase"})
		require.NoError(t, err)
		assert.Empty(t, result.Articles)
		assert.Equal(t, 0, result.TotalResults)
	})

	t.Run("disabled source returns ErrSourceDisabled", func(t *testing.T) {
		client := New(Config{Enabled: false})

		_, err := client.Search(context.Background(), sources.SearchParams{Query: "anything"})
		assert.ErrorIs(t, err, domain.ErrSourceDisabled)
	})

	t.Run("server error surfaces as ExternalAPIError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q"})
		require.Error(t, err)
		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("sends api key and caps retmax", func(t *testing.T) {
		var esearchQuery string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/esearch.fcgi") {
				esearchQuery = r.URL.RawQuery
				fmt.Fprint(w, esearchEmptyXML)
				return
			}
			fmt.Fprint(w, efetchResponseXML)
		})
		client.config.APIKey = "nckey"

		_, err := client.Search(context.Background(), sources.SearchParams{Query: "q", MaxResults: 500})
		require.NoError(t, err)
		assert.Contains(t, esearchQuery, "api_key=nckey")
		assert.Contains(t, esearchQuery, "retmax=100")
	})
}

func TestBuildQuery(t *testing.T) {
	t.Run("no filters passes query through", func(t *testing.T) {
		got := BuildQuery("aspirin stroke prevention", domain.DefaultFilters())
		assert.Equal(t, "aspirin stroke prevention", got)
	})

	t.Run("date range appends publication date clause", func(t *testing.T) {
		got := BuildQuery("aspirin", domain.SearchFilters{
			DateRange: domain.DateRangeFive,
			StudyType: domain.StudyFilterAll,
		})
		assert.Contains(t, got, `[Date - Publication] : "3000"[Date - Publication]`)
		expectedYear := time.Now().AddDate(-5, 0, 0).Format("2006")
		assert.Contains(t, got, expectedYear)
	})

	tests := []struct {
		filter domain.StudyTypeFilter
		clause string
	}{
		{domain.StudyFilterRCT, "randomized controlled trial[Publication Type]"},
		{domain.StudyFilterMeta, "meta-analysis[Publication Type]"},
		{domain.StudyFilterReview, "review[Publication Type]"},
		{domain.StudyFilterClinical, "clinical trial[Publication Type]"},
		{domain.StudyFilterGuideline, "guideline[Publication Type]"},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			got := BuildQuery("q", domain.SearchFilters{DateRange: domain.DateRangeAll, StudyType: tt.filter})
			assert.Contains(t, got, tt.clause)
		})
	}
}

func TestExtractPublicationDate(t *testing.T) {
	t.Run("prefers article date", func(t *testing.T) {
		article := CitedArticle{
			ArticleDate: []ArticleDate{{DateType: "Electronic", Year: "2024", Month: "01", Day: "15"}},
			Journal: Journal{JournalIssue: JournalIssue{
				PubDate: PubDate{Year: "2023"},
			}},
		}
		assert.Equal(t, "2024 01 15", extractPublicationDate(article))
	})

	t.Run("falls back to medline date", func(t *testing.T) {
		article := CitedArticle{
			Journal: Journal{JournalIssue: JournalIssue{
				PubDate: PubDate{MedlineDate: "2022 Jul-Aug"},
			}},
		}
		assert.Equal(t, "2022 Jul-Aug", extractPublicationDate(article))
	})

	t.Run("assembles year month season", func(t *testing.T) {
		article := CitedArticle{
			Journal: Journal{JournalIssue: JournalIssue{
				PubDate: PubDate{Year: "2021", Season: "Winter"},
			}},
		}
		assert.Equal(t, "2021 Winter", extractPublicationDate(article))
	})
}
