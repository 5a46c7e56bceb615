package models

import (
	"encoding/json"
	"time"
)

// Table describes one warehouse table: its column order (which must match the
// staging DDL for COPY) and the natural key the merge conflicts on.
type Table struct {
	Name       string
	Columns    []string
	KeyColumns []string
}

// StagingName returns the name of the matching unlogged staging table.
func (t Table) StagingName() string {
	return "staging_" + t.Name
}

// UpdateColumns returns the non-key columns, i.e. the columns the merge sets
// from EXCLUDED on conflict. Empty for pure-key tables.
func (t Table) UpdateColumns() []string {
	keys := make(map[string]struct{}, len(t.KeyColumns))
	for _, k := range t.KeyColumns {
		keys[k] = struct{}{}
	}
	var cols []string
	for _, c := range t.Columns {
		if _, ok := keys[c]; !ok {
			cols = append(cols, c)
		}
	}
	return cols
}

var (
	RawStudiesTable = Table{
		Name:       "raw_studies",
		Columns:    []string{"nct_id", "last_updated_api", "last_updated_api_str", "ingestion_timestamp", "payload"},
		KeyColumns: []string{"nct_id"},
	}
	StudiesTable = Table{
		Name: "studies",
		Columns: []string{
			"nct_id", "brief_title", "official_title", "overall_status",
			"start_date", "start_date_str",
			"primary_completion_date", "primary_completion_date_str",
			"study_type", "brief_summary",
		},
		KeyColumns: []string{"nct_id"},
	}
	SponsorsTable = Table{
		Name:       "sponsors",
		Columns:    []string{"nct_id", "name", "agency_class", "is_lead"},
		KeyColumns: []string{"nct_id", "name", "agency_class"},
	}
	ConditionsTable = Table{
		Name:       "conditions",
		Columns:    []string{"nct_id", "name"},
		KeyColumns: []string{"nct_id", "name"},
	}
	InterventionsTable = Table{
		Name:       "interventions",
		Columns:    []string{"nct_id", "intervention_type", "name", "description"},
		KeyColumns: []string{"nct_id", "intervention_type", "name"},
	}
	InterventionArmGroupsTable = Table{
		Name:       "intervention_arm_groups",
		Columns:    []string{"nct_id", "intervention_name", "arm_group_label"},
		KeyColumns: []string{"nct_id", "intervention_name", "arm_group_label"},
	}
	DesignOutcomesTable = Table{
		Name:       "design_outcomes",
		Columns:    []string{"nct_id", "outcome_type", "measure", "time_frame", "description"},
		KeyColumns: []string{"nct_id", "outcome_type", "measure"},
	}
)

// Tables lists every warehouse table in merge dependency order: raw_studies
// first, then studies, then the child tables.
var Tables = []Table{
	RawStudiesTable,
	StudiesTable,
	SponsorsTable,
	ConditionsTable,
	InterventionsTable,
	InterventionArmGroupsTable,
	DesignOutcomesTable,
}

// TableByName resolves a table from the registry.
func TableByName(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// RawStudyRow preserves the untouched API payload for replay.
type RawStudyRow struct {
	NCTID              string          `db:"nct_id"`
	LastUpdatedAPI     *time.Time      `db:"last_updated_api"`
	LastUpdatedAPIStr  *string         `db:"last_updated_api_str"`
	IngestionTimestamp time.Time       `db:"ingestion_timestamp"`
	Payload            json.RawMessage `db:"payload"`
}

func (r RawStudyRow) Values() []any {
	return []any{r.NCTID, r.LastUpdatedAPI, r.LastUpdatedAPIStr, r.IngestionTimestamp, []byte(r.Payload)}
}

type StudyRow struct {
	NCTID                    string     `db:"nct_id"`
	BriefTitle               *string    `db:"brief_title"`
	OfficialTitle            *string    `db:"official_title"`
	OverallStatus            *string    `db:"overall_status"`
	StartDate                *time.Time `db:"start_date"`
	StartDateStr             *string    `db:"start_date_str"`
	PrimaryCompletionDate    *time.Time `db:"primary_completion_date"`
	PrimaryCompletionDateStr *string    `db:"primary_completion_date_str"`
	StudyType                *string    `db:"study_type"`
	BriefSummary             *string    `db:"brief_summary"`
}

func (r StudyRow) Values() []any {
	return []any{
		r.NCTID, r.BriefTitle, r.OfficialTitle, r.OverallStatus,
		r.StartDate, r.StartDateStr,
		r.PrimaryCompletionDate, r.PrimaryCompletionDateStr,
		r.StudyType, r.BriefSummary,
	}
}

type SponsorRow struct {
	NCTID       string `db:"nct_id"`
	Name        string `db:"name"`
	AgencyClass string `db:"agency_class"`
	IsLead      bool   `db:"is_lead"`
}

func (r SponsorRow) Values() []any {
	return []any{r.NCTID, r.Name, r.AgencyClass, r.IsLead}
}

type ConditionRow struct {
	NCTID string `db:"nct_id"`
	Name  string `db:"name"`
}

func (r ConditionRow) Values() []any {
	return []any{r.NCTID, r.Name}
}

type InterventionRow struct {
	NCTID            string  `db:"nct_id"`
	InterventionType string  `db:"intervention_type"`
	Name             string  `db:"name"`
	Description      *string `db:"description"`
}

func (r InterventionRow) Values() []any {
	return []any{r.NCTID, r.InterventionType, r.Name, r.Description}
}

type InterventionArmGroupRow struct {
	NCTID            string `db:"nct_id"`
	InterventionName string `db:"intervention_name"`
	ArmGroupLabel    string `db:"arm_group_label"`
}

func (r InterventionArmGroupRow) Values() []any {
	return []any{r.NCTID, r.InterventionName, r.ArmGroupLabel}
}

type DesignOutcomeRow struct {
	NCTID       string  `db:"nct_id"`
	OutcomeType string  `db:"outcome_type"`
	Measure     string  `db:"measure"`
	TimeFrame   *string `db:"time_frame"`
	Description *string `db:"description"`
}

func (r DesignOutcomeRow) Values() []any {
	return []any{r.NCTID, r.OutcomeType, r.Measure, r.TimeFrame, r.Description}
}

// Batch is a set of rows bound for one table's staging load. Rows are
// positional and ordered to match Table.Columns.
type Batch struct {
	Table Table
	Rows  [][]any
}

func (b *Batch) Len() int {
	return len(b.Rows)
}
