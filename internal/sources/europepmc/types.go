// Package europepmc provides a client for the Europe PMC REST API.
//
// Europe PMC mirrors PubMed and adds preprints and full-text links. The
// RESTful search endpoint returns JSON; this package implements the
// sources.Source interface over it.
//
// API documentation: https://europepmc.org/RestfulWebService
package europepmc

// SearchResponse is the top-level response from the search endpoint.
type SearchResponse struct {
	Version    string     `json:"version"`
	HitCount   int        `json:"hitCount"`
	ResultList ResultList `json:"resultList"`
}

// ResultList wraps the result records.
type ResultList struct {
	Results []Result `json:"result"`
}

// Result is a single Europe PMC record. Field presence varies by record
// source (MED, PMC, PPR, etc.), so everything beyond the ID is optional.
type Result struct {
	ID                    string           `json:"id"`
	Source                string           `json:"source"`
	PMID                  string           `json:"pmid,omitempty"`
	PMCID                 string           `json:"pmcid,omitempty"`
	DOI                   string           `json:"doi,omitempty"`
	Title                 string           `json:"title"`
	AuthorString          string           `json:"authorString,omitempty"`
	AuthorList            *AuthorList      `json:"authorList,omitempty"`
	JournalTitle          string           `json:"journalTitle,omitempty"`
	JournalInfo           *JournalInfo     `json:"journalInfo,omitempty"`
	PubYear               string           `json:"pubYear,omitempty"`
	FirstPublicationDate  string           `json:"firstPublicationDate,omitempty"`
	AbstractText          string           `json:"abstractText,omitempty"`
	PubTypeList           *PubTypeList     `json:"pubTypeList,omitempty"`
	CitedByCount          int              `json:"citedByCount,omitempty"`
	IsOpenAccess          string           `json:"isOpenAccess,omitempty"`
	InEPMC                string           `json:"inEPMC,omitempty"`
	FullTextURLList       *FullTextURLList `json:"fullTextUrlList,omitempty"`
	HasTextMinedTerms     string           `json:"hasTextMinedTerms,omitempty"`
	HasReferences         string           `json:"hasReferences,omitempty"`
}

// AuthorList contains structured author records.
type AuthorList struct {
	Authors []Author `json:"author"`
}

// Author is a structured author name.
type Author struct {
	FullName       string `json:"fullName,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Initials       string `json:"initials,omitempty"`
	CollectiveName string `json:"collectiveName,omitempty"`
}

// JournalInfo carries the journal metadata block.
type JournalInfo struct {
	Volume  string   `json:"volume,omitempty"`
	Issue   string   `json:"issue,omitempty"`
	Journal *Journal `json:"journal,omitempty"`
}

// Journal identifies the journal.
type Journal struct {
	Title        string `json:"title,omitempty"`
	ISOAbbrev    string `json:"isoabbreviation,omitempty"`
	MedlineAbbrv string `json:"medlineAbbreviation,omitempty"`
}

// PubTypeList contains the publication types.
type PubTypeList struct {
	PubTypes []string `json:"pubType"`
}

// FullTextURLList contains links to full-text versions.
type FullTextURLList struct {
	FullTextURLs []FullTextURL `json:"fullTextUrl"`
}

// FullTextURL is a single full-text link with availability metadata.
type FullTextURL struct {
	Availability     string `json:"availability,omitempty"`
	AvailabilityCode string `json:"availabilityCode,omitempty"`
	DocumentStyle    string `json:"documentStyle,omitempty"`
	Site             string `json:"site,omitempty"`
	URL              string `json:"url"`
}
