// Package clinicaltrials provides a client for the ClinicalTrials.gov v2 API.
//
// ClinicalTrials.gov is the NIH registry of clinical studies. This package
// implements the sources.Source interface over the v2 studies endpoint,
// mapping trial records onto the shared article shape (NCT number as the
// identifier, lead sponsor in place of a journal).
//
// API documentation: https://clinicaltrials.gov/data-api/api
package clinicaltrials

// StudiesResponse is the top-level response from the studies endpoint.
type StudiesResponse struct {
	TotalCount    int     `json:"totalCount"`
	Studies       []Study `json:"studies"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Study is a single registered clinical study.
type Study struct {
	ProtocolSection ProtocolSection `json:"protocolSection"`
}

// ProtocolSection groups the protocol metadata modules.
type ProtocolSection struct {
	IdentificationModule IdentificationModule  `json:"identificationModule"`
	StatusModule         StatusModule          `json:"statusModule"`
	SponsorModule        SponsorModule         `json:"sponsorCollaboratorsModule"`
	DescriptionModule    *DescriptionModule    `json:"descriptionModule,omitempty"`
	DesignModule         *DesignModule         `json:"designModule,omitempty"`
	ConditionsModule     *ConditionsModule     `json:"conditionsModule,omitempty"`
	ContactsModule       *ContactsModule       `json:"contactsLocationsModule,omitempty"`
}

// IdentificationModule identifies the study.
type IdentificationModule struct {
	NCTID         string `json:"nctId"`
	BriefTitle    string `json:"briefTitle,omitempty"`
	OfficialTitle string `json:"officialTitle,omitempty"`
}

// StatusModule carries the recruitment status and key dates.
type StatusModule struct {
	OverallStatus  string      `json:"overallStatus,omitempty"`
	StartDate      *DateStruct `json:"startDateStruct,omitempty"`
	CompletionDate *DateStruct `json:"completionDateStruct,omitempty"`
}

// DateStruct is a partial date (YYYY or YYYY-MM or YYYY-MM-DD).
type DateStruct struct {
	Date string `json:"date,omitempty"`
	Type string `json:"type,omitempty"`
}

// SponsorModule carries the lead sponsor.
type SponsorModule struct {
	LeadSponsor Sponsor `json:"leadSponsor"`
}

// Sponsor is an organization running or funding a study.
type Sponsor struct {
	Name  string `json:"name,omitempty"`
	Class string `json:"class,omitempty"`
}

// DescriptionModule carries the study summaries.
type DescriptionModule struct {
	BriefSummary        string `json:"briefSummary,omitempty"`
	DetailedDescription string `json:"detailedDescription,omitempty"`
}

// DesignModule carries the study design metadata.
type DesignModule struct {
	StudyType string   `json:"studyType,omitempty"`
	Phases    []string `json:"phases,omitempty"`
}

// ConditionsModule lists the conditions studied.
type ConditionsModule struct {
	Conditions []string `json:"conditions,omitempty"`
}

// ContactsModule carries contacts and locations. Only presence matters here.
type ContactsModule struct {
	Locations []Location `json:"locations,omitempty"`
}

// Location is a study site.
type Location struct {
	Facility string `json:"facility,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
}
