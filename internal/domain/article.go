// Package domain defines the canonical types that flow through the evidence
// aggregation pipeline: the Article record, study type classification, search
// filters, and the error taxonomy shared by all source and enrichment clients.
package domain

import (
	"regexp"
	"strings"
	"time"
)

// SourceType identifies the external provider an article originated from.
type SourceType string

// Known source types.
const (
	SourceTypePubMed         SourceType = "pubmed"
	SourceTypeEuropePMC      SourceType = "europepmc"
	SourceTypeOpenAlex       SourceType = "openalex"
	SourceTypeClinicalTrials SourceType = "clinicaltrials"
)

// String returns the string representation of the source type.
func (s SourceType) String() string {
	return string(s)
}

// UntitledFallback is the sentinel title used when a provider record carries
// no usable title. Articles in the pipeline never have an empty Title.
const UntitledFallback = "Untitled"

// AuthorPreviewLimit is the number of authors retained in AuthorsPreview.
const AuthorPreviewLimit = 3

// StudyType is the closed classification of an article's study design.
type StudyType string

// Study type classifications, ordered from strongest to weakest evidence.
const (
	StudyTypeMetaAnalysis     StudyType = "Meta-Analysis"
	StudyTypeSystematicReview StudyType = "Systematic Review"
	StudyTypeRCT              StudyType = "RCT"
	StudyTypeClinicalTrial    StudyType = "Clinical Trial"
	StudyTypeReview           StudyType = "Review"
	StudyTypeGuideline        StudyType = "Guideline"
	StudyTypeCaseReport       StudyType = "Case Report"
	StudyTypeObservational    StudyType = "Observational Study"
	StudyTypeResearchArticle  StudyType = "Research Article"
)

// studyTypeRule pairs a classification with the substrings that select it.
type studyTypeRule struct {
	studyType StudyType
	matches   []string
}

// studyTypeRules is evaluated in order; the first rule with a matching
// substring wins. The order encodes the fixed classification precedence:
// Meta-Analysis > Systematic Review > RCT > Clinical Trial > Review >
// Guideline > Case Report > Observational Study.
var studyTypeRules = []studyTypeRule{
	{StudyTypeMetaAnalysis, []string{"meta-analysis", "meta analysis"}},
	{StudyTypeSystematicReview, []string{"systematic review"}},
	{StudyTypeRCT, []string{"randomized controlled trial", "randomised controlled trial"}},
	{StudyTypeClinicalTrial, []string{"clinical trial", "interventional"}},
	{StudyTypeReview, []string{"review"}},
	{StudyTypeGuideline, []string{"guideline", "practice guideline"}},
	{StudyTypeCaseReport, []string{"case report", "case reports"}},
	{StudyTypeObservational, []string{"observational", "cohort", "case-control"}},
}

// ClassifyStudyType maps a list of raw provider publication-type strings to a
// StudyType. Classification happens once when the article is normalized and is
// never revisited by enrichment. Returns empty StudyType when the input gives
// no signal at all; callers that want the default should use
// StudyTypeResearchArticle for non-empty publication type lists.
func ClassifyStudyType(rawTypes []string) StudyType {
	if len(rawTypes) == 0 {
		return ""
	}

	lowered := make([]string, 0, len(rawTypes))
	for _, t := range rawTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return ""
	}

	for _, rule := range studyTypeRules {
		for _, raw := range lowered {
			for _, match := range rule.matches {
				if strings.Contains(raw, match) {
					return rule.studyType
				}
			}
		}
	}

	return StudyTypeResearchArticle
}

// Article is the canonical unit flowing through the aggregation pipeline.
// Source clients produce Articles; enrichment only adds or refines fields and
// never removes anything a source supplied.
type Article struct {
	// SourceID is the provider-specific primary key (PMID, NCT number,
	// DOI, or OpenAlex ID).
	SourceID string `json:"source_id"`

	// Title is the article title. Never empty; normalization substitutes
	// UntitledFallback when the provider record has no title.
	Title string `json:"title"`

	// Authors is the full ordered list of author display names.
	Authors []string `json:"authors"`

	// AuthorsPreview holds at most AuthorPreviewLimit leading author names
	// for compact display; the full list is retained in Authors.
	AuthorsPreview []string `json:"authors_preview"`

	// JournalOrSponsor is the journal title for literature sources or the
	// lead sponsor for clinical trial records.
	JournalOrSponsor string `json:"journal_or_sponsor"`

	// PublicationDate is the raw provider-supplied date string.
	PublicationDate string `json:"publication_date"`

	// PublicationYear is derived from PublicationDate when a four-digit
	// year is present; zero otherwise.
	PublicationYear int `json:"publication_year,omitempty"`

	// DOI is the Digital Object Identifier, normalized to lowercase
	// without URL prefix. It is the join key for enrichment.
	DOI string `json:"doi,omitempty"`

	// Abstract is the XML-decoded plain text abstract, when available.
	Abstract string `json:"abstract,omitempty"`

	// StudyType is the classified study design, empty when undetermined.
	StudyType StudyType `json:"study_type,omitempty"`

	// URL is the canonical link to the article, built per source rules.
	URL string `json:"url"`

	// Source tags the provider this record came from.
	Source SourceType `json:"source"`

	// CitationCount is the number of citations. Defaults to zero and may
	// be refined upward by enrichment; it is never decreased.
	CitationCount int `json:"citation_count"`

	// FullTextAvailable reports whether an open-access full text was
	// located by enrichment.
	FullTextAvailable bool `json:"full_text_available"`

	// FullTextURL links to the open-access full text when available.
	FullTextURL string `json:"full_text_url,omitempty"`

	// License is the license URL reported by enrichment, if any.
	License string `json:"license,omitempty"`

	// Funders lists funder names reported by enrichment, if any.
	Funders []string `json:"funders,omitempty"`

	// IsRecent is derived: current year minus PublicationYear <= 1.
	IsRecent bool `json:"is_recent"`
}

// yearPattern matches a plausible four-digit publication year.
var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

// ExtractYear returns the first four-digit year found in a raw date string,
// or zero when none is present.
func ExtractYear(rawDate string) int {
	match := yearPattern.FindString(rawDate)
	if match == "" {
		return 0
	}
	year := 0
	for _, r := range match {
		year = year*10 + int(r-'0')
	}
	return year
}

// Normalize fills derived and fallback fields in place: sentinel title,
// author preview, publication year, and recency. Source clients call it once
// after mapping a provider record.
func (a *Article) Normalize() {
	if strings.TrimSpace(a.Title) == "" {
		a.Title = UntitledFallback
	}

	if a.PublicationYear == 0 {
		a.PublicationYear = ExtractYear(a.PublicationDate)
	}

	if len(a.Authors) > AuthorPreviewLimit {
		a.AuthorsPreview = a.Authors[:AuthorPreviewLimit]
	} else {
		a.AuthorsPreview = a.Authors
	}

	a.IsRecent = a.PublicationYear > 0 && time.Now().Year()-a.PublicationYear <= 1
}

// DedupKey returns the reconciliation key used when merging results across
// sources: the SourceID when present, otherwise the lower-cased title.
func (a *Article) DedupKey() string {
	if a.SourceID != "" {
		return a.SourceID
	}
	return strings.ToLower(strings.TrimSpace(a.Title))
}

// NormalizeDOI strips URL and scheme prefixes from a DOI and lowercases it.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}
