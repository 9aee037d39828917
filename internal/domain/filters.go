package domain

import "fmt"

// DateRange restricts search results by publication date.
type DateRange string

// Recognized date range filters.
const (
	DateRangeAll     DateRange = "all"
	DateRangeOneYear DateRange = "1year"
	DateRangeFive    DateRange = "5years"
	DateRangeTen     DateRange = "10years"
)

// Years returns the number of years covered by the range, or zero for all.
func (d DateRange) Years() int {
	switch d {
	case DateRangeOneYear:
		return 1
	case DateRangeFive:
		return 5
	case DateRangeTen:
		return 10
	default:
		return 0
	}
}

// StudyTypeFilter restricts search results by study design.
type StudyTypeFilter string

// Recognized study type filters.
const (
	StudyFilterAll       StudyTypeFilter = "all"
	StudyFilterRCT       StudyTypeFilter = "rct"
	StudyFilterMeta      StudyTypeFilter = "meta"
	StudyFilterReview    StudyTypeFilter = "review"
	StudyFilterClinical  StudyTypeFilter = "clinical"
	StudyFilterGuideline StudyTypeFilter = "guideline"
)

// SearchFilters carries the user-selected result filters. Each source client
// translates them into its provider's native query syntax.
type SearchFilters struct {
	DateRange DateRange       `json:"date_range"`
	StudyType StudyTypeFilter `json:"study_type"`
}

// DefaultFilters returns filters that do not restrict results.
func DefaultFilters() SearchFilters {
	return SearchFilters{
		DateRange: DateRangeAll,
		StudyType: StudyFilterAll,
	}
}

// Validate maps empty filter values to "all" and rejects values outside the
// recognized sets.
func (f *SearchFilters) Validate() error {
	if f.DateRange == "" {
		f.DateRange = DateRangeAll
	}
	if f.StudyType == "" {
		f.StudyType = StudyFilterAll
	}

	switch f.DateRange {
	case DateRangeAll, DateRangeOneYear, DateRangeFive, DateRangeTen:
	default:
		return NewValidationError("date_range", fmt.Sprintf("unrecognized value %q", f.DateRange))
	}

	switch f.StudyType {
	case StudyFilterAll, StudyFilterRCT, StudyFilterMeta, StudyFilterReview,
		StudyFilterClinical, StudyFilterGuideline:
	default:
		return NewValidationError("study_type", fmt.Sprintf("unrecognized value %q", f.StudyType))
	}

	return nil
}
