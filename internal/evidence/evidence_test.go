package evidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/evidence-service/internal/domain"
)

func evidenceArticle(id, title string, citations int) *domain.Article {
	return &domain.Article{
		SourceID:      id,
		Title:         title,
		CitationCount: citations,
		Source:        domain.SourceTypePubMed,
	}
}

func TestSelect(t *testing.T) {
	t.Run("preserves relevance order by default", func(t *testing.T) {
		articles := []*domain.Article{
			evidenceArticle("a", "first", 1),
			evidenceArticle("b", "second", 100),
			evidenceArticle("c", "third", 50),
		}

		selected := Select(articles, Options{})
		require.Len(t, selected, 3)
		assert.Equal(t, "a", selected[0].SourceID)
		assert.Equal(t, "b", selected[1].SourceID)
	})

	t.Run("sorts by citations only when requested", func(t *testing.T) {
		articles := []*domain.Article{
			evidenceArticle("a", "first", 1),
			evidenceArticle("b", "second", 100),
			evidenceArticle("c", "third", 50),
		}

		selected := Select(articles, Options{SortByCitations: true})
		assert.Equal(t, "b", selected[0].SourceID)
		assert.Equal(t, "c", selected[1].SourceID)
		assert.Equal(t, "a", selected[2].SourceID)

		// Input order untouched.
		assert.Equal(t, "a", articles[0].SourceID)
	})

	t.Run("citation sort is stable", func(t *testing.T) {
		articles := []*domain.Article{
			evidenceArticle("a", "first", 10),
			evidenceArticle("b", "second", 10),
			evidenceArticle("c", "third", 10),
		}

		selected := Select(articles, Options{SortByCitations: true})
		assert.Equal(t, "a", selected[0].SourceID)
		assert.Equal(t, "b", selected[1].SourceID)
		assert.Equal(t, "c", selected[2].SourceID)
	})

	t.Run("applies limit", func(t *testing.T) {
		articles := make([]*domain.Article, 0, DefaultLimit+5)
		for i := 0; i < DefaultLimit+5; i++ {
			articles = append(articles, evidenceArticle("id", "study", 0))
		}

		assert.Len(t, Select(articles, Options{}), DefaultLimit)
		assert.Len(t, Select(articles, Options{Limit: 3}), 3)
	})

	t.Run("empty input", func(t *testing.T) {
		selected := Select(nil, Options{})
		assert.NotNil(t, selected)
		assert.Empty(t, selected)
	})
}

func TestTruncateAbstract(t *testing.T) {
	t.Run("short abstract unchanged", func(t *testing.T) {
		assert.Equal(t, "short text", TruncateAbstract("short text", 100))
	})

	t.Run("cuts at word boundary with ellipsis", func(t *testing.T) {
		got := TruncateAbstract("alpha beta gamma delta", 16)
		assert.Equal(t, "alpha beta...", got)
	})

	t.Run("strips trailing punctuation before ellipsis", func(t *testing.T) {
		got := TruncateAbstract("one two, three four five", 10)
		assert.Equal(t, "one two...", got)
	})

	t.Run("non-positive limit passes through", func(t *testing.T) {
		assert.Equal(t, "anything", TruncateAbstract("anything", 0))
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		got := TruncateAbstract("αβγ δεζ ηθι κλμ", 8)
		assert.True(t, strings.HasSuffix(got, "..."))
		assert.LessOrEqual(t, len([]rune(got)), 8+3)
	})
}

func TestFormatCitation(t *testing.T) {
	t.Run("full article", func(t *testing.T) {
		a := &domain.Article{
			SourceID:         "38000001",
			Title:            "Metformin and cardiovascular outcomes",
			Authors:          []string{"Jane Doe", "John Smith", "Ana Ruiz", "Wei Chen"},
			AuthorsPreview:   []string{"Jane Doe", "John Smith", "Ana Ruiz"},
			JournalOrSponsor: "The Lancet",
			PublicationDate:  "2024 Mar 15",
			DOI:              "10.1016/s0140-6736(24)00001-2",
		}

		got := FormatCitation(1, a)
		assert.Equal(t,
			"[1] Metformin and cardiovascular outcomes / Jane Doe, John Smith, Ana Ruiz et al. / The Lancet, 2024 Mar 15 / doi:10.1016/s0140-6736(24)00001-2",
			got)
	})

	t.Run("trial record without DOI falls back to source ID", func(t *testing.T) {
		a := &domain.Article{
			SourceID:         "NCT05000001",
			Title:            "Phase 3 study of drug X",
			JournalOrSponsor: "Acme Pharma",
			PublicationDate:  "2025-01-01",
		}

		got := FormatCitation(2, a)
		assert.Equal(t, "[2] Phase 3 study of drug X / Acme Pharma, 2025-01-01 / NCT05000001", got)
	})

	t.Run("no et al for short author lists", func(t *testing.T) {
		a := &domain.Article{
			SourceID:       "x",
			Title:          "Small study",
			Authors:        []string{"Solo Author"},
			AuthorsPreview: []string{"Solo Author"},
		}

		got := FormatCitation(3, a)
		assert.Equal(t, "[3] Small study / Solo Author / x", got)
	})

	t.Run("missing fields collapse", func(t *testing.T) {
		a := &domain.Article{Title: "Untitled"}
		assert.Equal(t, "[1] Untitled", FormatCitation(1, a))
	})
}

func TestFormatBlocks(t *testing.T) {
	t.Run("numbers blocks and embeds abstracts", func(t *testing.T) {
		articles := []*domain.Article{
			{
				SourceID: "a",
				Title:    "First study",
				Abstract: "Alpha findings.",
			},
			{
				SourceID: "b",
				Title:    "Second study",
			},
		}

		got := FormatBlocks(articles, 0)
		blocks := strings.Split(got, "\n\n")
		require.Len(t, blocks, 2)
		assert.Equal(t, "[1] First study / a\nAlpha findings.", blocks[0])
		assert.Equal(t, "[2] Second study / b", blocks[1])
	})

	t.Run("truncates long abstracts", func(t *testing.T) {
		long := strings.Repeat("evidence word ", 100)
		articles := []*domain.Article{
			{SourceID: "a", Title: "Long one", Abstract: long},
		}

		got := FormatBlocks(articles, 50)
		lines := strings.Split(got, "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasSuffix(lines[1], "..."))
		assert.LessOrEqual(t, len([]rune(lines[1])), 53)
	})

	t.Run("empty input renders empty string", func(t *testing.T) {
		assert.Equal(t, "", FormatBlocks(nil, 0))
	})
}
