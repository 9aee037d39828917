// Package evidence bounds, orders, and formats aggregated articles for the
// synthesis prompt. It is purely computational: no I/O, no mutation of the
// input articles.
package evidence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helixir/evidence-service/internal/domain"
)

// DefaultLimit is the number of articles handed to synthesis when the caller
// does not override it. Payload-size constraints on the LLM call keep this
// small.
const DefaultLimit = 15

// DefaultAbstractPreview is the rune bound applied to abstracts before they
// are embedded in the prompt.
const DefaultAbstractPreview = 500

// Options tunes one selection pass.
type Options struct {
	// Limit bounds the selected articles. Zero or negative uses
	// DefaultLimit.
	Limit int

	// SortByCitations re-orders by citation count (descending) before
	// bounding. When false the incoming relevance order is preserved.
	SortByCitations bool
}

// Select bounds and optionally re-orders articles for synthesis. The input
// slice is not modified; relevance order among equal citation counts is
// preserved.
func Select(articles []*domain.Article, opts Options) []*domain.Article {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	selected := make([]*domain.Article, len(articles))
	copy(selected, articles)

	if opts.SortByCitations {
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].CitationCount > selected[j].CitationCount
		})
	}

	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

// TruncateAbstract bounds an abstract to at most limit runes, cutting at the
// last word boundary and appending an ellipsis. A non-positive limit returns
// the abstract unchanged.
func TruncateAbstract(abstract string, limit int) string {
	if limit <= 0 {
		return abstract
	}
	runes := []rune(abstract)
	if len(runes) <= limit {
		return abstract
	}

	cut := string(runes[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}

// FormatCitation renders one article as its citation-numbered header line:
// [n] Title / Authors / Journal, Date / ID.
func FormatCitation(n int, a *domain.Article) string {
	parts := []string{fmt.Sprintf("[%d] %s", n, a.Title)}

	if authors := formatAuthors(a); authors != "" {
		parts = append(parts, authors)
	}
	if venue := formatVenue(a); venue != "" {
		parts = append(parts, venue)
	}
	if id := identifier(a); id != "" {
		parts = append(parts, id)
	}

	return strings.Join(parts, " / ")
}

// FormatBlocks renders the selected articles as citation-numbered evidence
// blocks separated by blank lines, each block a citation line followed by the
// truncated abstract when one exists. Numbering starts at 1 and matches the
// slice order, which the synthesized answer's inline citations refer back to.
func FormatBlocks(articles []*domain.Article, abstractLimit int) string {
	if abstractLimit <= 0 {
		abstractLimit = DefaultAbstractPreview
	}

	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatCitation(i+1, a))
		if abstract := strings.TrimSpace(a.Abstract); abstract != "" {
			b.WriteString("\n")
			b.WriteString(TruncateAbstract(abstract, abstractLimit))
		}
	}
	return b.String()
}

// formatAuthors renders the preview authors, marking elision of the full list.
func formatAuthors(a *domain.Article) string {
	preview := a.AuthorsPreview
	if len(preview) == 0 {
		preview = a.Authors
		if len(preview) > domain.AuthorPreviewLimit {
			preview = preview[:domain.AuthorPreviewLimit]
		}
	}
	if len(preview) == 0 {
		return ""
	}

	authors := strings.Join(preview, ", ")
	if len(a.Authors) > len(preview) {
		authors += " et al."
	}
	return authors
}

// formatVenue renders "Journal, Date" with either half optional.
func formatVenue(a *domain.Article) string {
	switch {
	case a.JournalOrSponsor != "" && a.PublicationDate != "":
		return a.JournalOrSponsor + ", " + a.PublicationDate
	case a.JournalOrSponsor != "":
		return a.JournalOrSponsor
	case a.PublicationDate != "":
		return a.PublicationDate
	default:
		return ""
	}
}

// identifier prefers the DOI as the citation ID, falling back to the
// provider's record ID.
func identifier(a *domain.Article) string {
	if a.DOI != "" {
		return "doi:" + a.DOI
	}
	return a.SourceID
}
