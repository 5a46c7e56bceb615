// Package models holds the typed ClinicalTrials.gov API records and the
// warehouse row types they normalize into.
package models

// The API types mirror the V2 /studies response shape. Scalars are pointers
// so a missing field decodes to nil; unknown JSON fields are ignored for
// forward compatibility.

type Study struct {
	ProtocolSection ProtocolSection `json:"protocolSection"`
	HasResults      *bool           `json:"hasResults"`
}

type ProtocolSection struct {
	IdentificationModule       IdentificationModule        `json:"identificationModule"`
	StatusModule               StatusModule                `json:"statusModule"`
	SponsorCollaboratorsModule *SponsorCollaboratorsModule `json:"sponsorCollaboratorsModule"`
	DescriptionModule          *DescriptionModule          `json:"descriptionModule"`
	ConditionsModule           *ConditionsModule           `json:"conditionsModule"`
	DesignModule               *DesignModule               `json:"designModule"`
	ArmsInterventionsModule    *ArmsInterventionsModule    `json:"armsInterventionsModule"`
	OutcomesModule             *OutcomesModule             `json:"outcomesModule"`
}

type IdentificationModule struct {
	NCTID         string  `json:"nctId"`
	BriefTitle    *string `json:"briefTitle"`
	OfficialTitle *string `json:"officialTitle"`
}

type StatusModule struct {
	OverallStatus               *string     `json:"overallStatus"`
	StartDateStruct             *DateStruct `json:"startDateStruct"`
	PrimaryCompletionDateStruct *DateStruct `json:"primaryCompletionDateStruct"`
	LastUpdatePostDateStruct    *DateStruct `json:"lastUpdatePostDateStruct"`
}

type DateStruct struct {
	Date *string `json:"date"`
	Type *string `json:"type"`
}

type SponsorCollaboratorsModule struct {
	LeadSponsor   *Sponsor  `json:"leadSponsor"`
	Collaborators []Sponsor `json:"collaborators"`
}

type Sponsor struct {
	Name  *string `json:"name"`
	Class *string `json:"class"`
}

type DescriptionModule struct {
	BriefSummary        *string `json:"briefSummary"`
	DetailedDescription *string `json:"detailedDescription"`
}

type ConditionsModule struct {
	Conditions []string `json:"conditions"`
}

type DesignModule struct {
	StudyType *string  `json:"studyType"`
	Phases    []string `json:"phases"`
}

type ArmsInterventionsModule struct {
	ArmGroups     []ArmGroup     `json:"armGroups"`
	Interventions []Intervention `json:"interventions"`
}

type ArmGroup struct {
	Label       *string `json:"label"`
	Type        *string `json:"type"`
	Description *string `json:"description"`
}

type Intervention struct {
	Type           *string  `json:"type"`
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	ArmGroupLabels []string `json:"armGroupLabels"`
}

type OutcomesModule struct {
	PrimaryOutcomes   []Outcome `json:"primaryOutcomes"`
	SecondaryOutcomes []Outcome `json:"secondaryOutcomes"`
	OtherOutcomes     []Outcome `json:"otherOutcomes"`
}

type Outcome struct {
	Measure     *string `json:"measure"`
	Description *string `json:"description"`
	TimeFrame   *string `json:"timeFrame"`
}

// NCTID returns the study identifier.
func (s *Study) NCTID() string {
	return s.ProtocolSection.IdentificationModule.NCTID
}
