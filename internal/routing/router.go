// Package routing classifies free-text medical questions into topical
// categories and selects which sources to query with what per-source result
// limits. Classification is a pure keyword-scoring function with no I/O.
package routing

import (
	"strings"

	"github.com/helixir/evidence-service/internal/domain"
	"github.com/helixir/evidence-service/internal/sources"
)

// QueryType is the topical category of a query.
type QueryType string

// The fixed topical taxonomy.
const (
	QueryTypeTrial      QueryType = "trial"
	QueryTypeRecent     QueryType = "recent"
	QueryTypeSynthesis  QueryType = "synthesis"
	QueryTypeDrug       QueryType = "drug"
	QueryTypeCondition  QueryType = "condition"
	QueryTypeMechanism  QueryType = "mechanism"
	QueryTypeGuidelines QueryType = "guidelines"
	QueryTypeGeneral    QueryType = "general"
)

// Confidence expresses how strongly the keyword score supported the
// classification.
type Confidence string

// Confidence levels derived from the winning keyword score.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Decision is the routing outcome for one query. Created fresh per query and
// never persisted.
type Decision struct {
	QueryType  QueryType           `json:"query_type"`
	Sources    []domain.SourceType `json:"sources"`
	Confidence Confidence          `json:"confidence"`
	Score      int                 `json:"score"`
	Limits     sources.Limits      `json:"limits"`
}

// category couples keyword phrases with the sources that serve them best.
// Primary sources are queried at full limits; secondary sources broaden
// coverage. Both tiers are always included; confidence tunes limits only.
type category struct {
	queryType QueryType
	keywords  []string
	primary   []domain.SourceType
	secondary []domain.SourceType
}

// categories is evaluated in order; declaration order breaks score ties.
var categories = []category{
	{
		queryType: QueryTypeTrial,
		keywords: []string{
			"clinical trial", "phase 1", "phase 2", "phase 3", "phase 4",
			"phase i", "phase ii", "phase iii", "recruiting", "enrollment",
			"nct", "ongoing trial", "interventional study",
		},
		primary:   []domain.SourceType{domain.SourceTypeClinicalTrials},
		secondary: []domain.SourceType{domain.SourceTypePubMed},
	},
	{
		queryType: QueryTypeRecent,
		keywords: []string{
			"latest", "recent", "new study", "newest", "this year",
			"breakthrough", "just published", "emerging",
		},
		primary:   []domain.SourceType{domain.SourceTypeEuropePMC, domain.SourceTypeOpenAlex},
		secondary: []domain.SourceType{domain.SourceTypePubMed},
	},
	{
		queryType: QueryTypeSynthesis,
		keywords: []string{
			"meta-analysis", "meta analysis", "systematic review",
			"pooled analysis", "evidence synthesis", "cochrane",
		},
		primary:   []domain.SourceType{domain.SourceTypePubMed, domain.SourceTypeEuropePMC},
		secondary: []domain.SourceType{domain.SourceTypeOpenAlex},
	},
	{
		queryType: QueryTypeDrug,
		keywords: []string{
			"drug", "medication", "dose", "dosage", "side effect",
			"side effects", "adverse event", "interaction", "contraindication",
			"pharmacokinetics", "efficacy of",
		},
		primary:   []domain.SourceType{domain.SourceTypePubMed},
		secondary: []domain.SourceType{domain.SourceTypeEuropePMC, domain.SourceTypeClinicalTrials},
	},
	{
		queryType: QueryTypeCondition,
		keywords: []string{
			"symptoms", "diagnosis", "prognosis", "risk factor",
			"risk factors", "epidemiology", "prevalence", "incidence",
			"causes of", "prevention", "screening",
		},
		primary:   []domain.SourceType{domain.SourceTypePubMed, domain.SourceTypeEuropePMC},
		secondary: []domain.SourceType{domain.SourceTypeOpenAlex},
	},
	{
		queryType: QueryTypeMechanism,
		keywords: []string{
			"mechanism", "pathway", "pathophysiology", "molecular",
			"receptor", "signaling", "how does", "mode of action",
		},
		primary:   []domain.SourceType{domain.SourceTypePubMed, domain.SourceTypeOpenAlex},
		secondary: []domain.SourceType{domain.SourceTypeEuropePMC},
	},
	{
		queryType: QueryTypeGuidelines,
		keywords: []string{
			"guideline", "guidelines", "recommendation", "recommendations",
			"consensus", "standard of care", "first-line", "first line",
		},
		primary:   []domain.SourceType{domain.SourceTypePubMed},
		secondary: []domain.SourceType{domain.SourceTypeEuropePMC},
	},
}

// generalSources is the fallback source set when no category matches.
var generalSources = []domain.SourceType{
	domain.SourceTypePubMed,
	domain.SourceTypeEuropePMC,
	domain.SourceTypeOpenAlex,
}

// categoryLimits maps each category to per-source result caps. Categories
// without an entry fall back to generalLimits.
var categoryLimits = map[QueryType]sources.Limits{
	QueryTypeTrial: {
		domain.SourceTypeClinicalTrials: 10,
		domain.SourceTypePubMed:         5,
	},
	QueryTypeRecent: {
		domain.SourceTypeEuropePMC: 10,
		domain.SourceTypeOpenAlex:  10,
		domain.SourceTypePubMed:    5,
	},
	QueryTypeSynthesis: {
		domain.SourceTypePubMed:    10,
		domain.SourceTypeEuropePMC: 8,
		domain.SourceTypeOpenAlex:  5,
	},
	QueryTypeDrug: {
		domain.SourceTypePubMed:         10,
		domain.SourceTypeEuropePMC:      8,
		domain.SourceTypeClinicalTrials: 5,
	},
	QueryTypeCondition: {
		domain.SourceTypePubMed:    10,
		domain.SourceTypeEuropePMC: 8,
		domain.SourceTypeOpenAlex:  5,
	},
	QueryTypeMechanism: {
		domain.SourceTypePubMed:    10,
		domain.SourceTypeOpenAlex:  8,
		domain.SourceTypeEuropePMC: 5,
	},
	QueryTypeGuidelines: {
		domain.SourceTypePubMed:    10,
		domain.SourceTypeEuropePMC: 8,
	},
}

// generalLimits are the reduced per-source caps for unclassified queries.
var generalLimits = sources.Limits{
	domain.SourceTypePubMed:    8,
	domain.SourceTypeEuropePMC: 8,
	domain.SourceTypeOpenAlex:  5,
}

// Route classifies a free-text query into a Decision. The function is pure
// and total: any input, including empty or whitespace-only queries, resolves
// to a decision (falling back to the general category at low confidence).
func Route(query string) Decision {
	lowered := strings.ToLower(query)

	bestScore := 0
	var best *category
	for i := range categories {
		score := scoreCategory(lowered, categories[i].keywords)
		if score > bestScore {
			bestScore = score
			best = &categories[i]
		}
	}

	if best == nil {
		return Decision{
			QueryType:  QueryTypeGeneral,
			Sources:    generalSources,
			Confidence: ConfidenceLow,
			Score:      0,
			Limits:     generalLimits,
		}
	}

	limits, ok := categoryLimits[best.queryType]
	if !ok {
		limits = generalLimits
	}

	return Decision{
		QueryType:  best.queryType,
		Sources:    unionSources(best.primary, best.secondary),
		Confidence: confidenceFor(bestScore),
		Score:      bestScore,
		Limits:     limits,
	}
}

// scoreCategory sums the word count of every keyword phrase contained in the
// lowered query. Longer phrases contribute more because they are more
// specific.
func scoreCategory(loweredQuery string, keywords []string) int {
	score := 0
	for _, phrase := range keywords {
		if strings.Contains(loweredQuery, phrase) {
			score += len(strings.Fields(phrase))
		}
	}
	return score
}

// confidenceFor derives confidence from the winning score.
func confidenceFor(score int) Confidence {
	switch {
	case score >= 3:
		return ConfidenceHigh
	case score == 1:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// unionSources merges the primary and secondary tiers, preserving order and
// dropping duplicates. Primary sources come first, which downstream
// deduplication relies on as its priority order.
func unionSources(primary, secondary []domain.SourceType) []domain.SourceType {
	seen := make(map[domain.SourceType]struct{}, len(primary)+len(secondary))
	union := make([]domain.SourceType, 0, len(primary)+len(secondary))
	for _, tier := range [][]domain.SourceType{primary, secondary} {
		for _, s := range tier {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			union = append(union, s)
		}
	}
	return union
}
