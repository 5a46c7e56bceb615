// Package transform flattens typed study records into per-table row batches
// ready for staging.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// keyedRows is an insertion-ordered row buffer keyed by natural key. Putting
// an existing key replaces the row in place (last write wins), so one staged
// batch never carries two rows with the same conflict target.
type keyedRows struct {
	index map[string]int
	rows  [][]any
}

func newKeyedRows() *keyedRows {
	return &keyedRows{index: make(map[string]int)}
}

func (k *keyedRows) put(key string, values []any) {
	if i, ok := k.index[key]; ok {
		k.rows[i] = values
		return
	}
	k.index[key] = len(k.rows)
	k.rows = append(k.rows, values)
}

func (k *keyedRows) len() int {
	return len(k.rows)
}

func (k *keyedRows) clear() {
	k.index = make(map[string]int)
	k.rows = nil
}

func rowKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// Transformer accumulates normalized rows for the seven warehouse tables.
// It is stateless between studies; all state lives in the buffers, which the
// orchestrator owns and flushes.
type Transformer struct {
	now     func() time.Time
	buffers map[string]*keyedRows
	studies int
}

// NewTransformer creates an empty set of batch buffers.
func NewTransformer() *Transformer {
	return NewTransformerWithClock(time.Now)
}

// NewTransformerWithClock injects the ingestion-timestamp clock.
func NewTransformerWithClock(now func() time.Time) *Transformer {
	t := &Transformer{now: now, buffers: make(map[string]*keyedRows)}
	for _, table := range models.Tables {
		t.buffers[table.Name] = newKeyedRows()
	}
	return t
}

// Add flattens one validated study plus its untouched payload into the
// buffers. Duplicate natural keys within the study collapse to the first
// occurrence; a study re-encountered later in the run replaces its earlier
// rows.
func (t *Transformer) Add(study *models.Study, raw json.RawMessage) error {
	nctID := study.NCTID()
	if nctID == "" {
		return fmt.Errorf("study has no nctId")
	}

	t.addRawStudy(nctID, study, raw)
	t.addStudy(nctID, study)
	t.addSponsors(nctID, study)
	t.addConditions(nctID, study)
	t.addInterventions(nctID, study)
	t.addInterventionArmGroups(nctID, study)
	t.addOutcomes(nctID, study)

	t.studies++
	return nil
}

// StudyCount returns the number of studies buffered since the last Clear.
func (t *Transformer) StudyCount() int {
	return t.studies
}

// RowCount returns the total number of buffered rows across all tables.
func (t *Transformer) RowCount() int {
	n := 0
	for _, b := range t.buffers {
		n += b.len()
	}
	return n
}

// Batches returns the non-empty buffers as positional batches, in merge
// dependency order.
func (t *Transformer) Batches() []models.Batch {
	var batches []models.Batch
	for _, table := range models.Tables {
		b := t.buffers[table.Name]
		if b.len() == 0 {
			continue
		}
		batches = append(batches, models.Batch{Table: table, Rows: b.rows})
	}
	return batches
}

// Clear resets every buffer.
func (t *Transformer) Clear() {
	for _, b := range t.buffers {
		b.clear()
	}
	t.studies = 0
}

func (t *Transformer) addRawStudy(nctID string, study *models.Study, raw json.RawMessage) {
	var lastUpdatedStr *string
	if s := study.ProtocolSection.StatusModule.LastUpdatePostDateStruct; s != nil {
		lastUpdatedStr = s.Date
	}

	row := models.RawStudyRow{
		NCTID:              nctID,
		LastUpdatedAPI:     parseDatePtr(lastUpdatedStr),
		LastUpdatedAPIStr:  lastUpdatedStr,
		IngestionTimestamp: t.now().UTC(),
		Payload:            raw,
	}
	t.buffers[models.RawStudiesTable.Name].put(rowKey(nctID), row.Values())
}

func (t *Transformer) addStudy(nctID string, study *models.Study) {
	idModule := study.ProtocolSection.IdentificationModule
	statusModule := study.ProtocolSection.StatusModule

	var startDateStr, completionDateStr *string
	if statusModule.StartDateStruct != nil {
		startDateStr = statusModule.StartDateStruct.Date
	}
	if statusModule.PrimaryCompletionDateStruct != nil {
		completionDateStr = statusModule.PrimaryCompletionDateStruct.Date
	}

	var studyType *string
	if study.ProtocolSection.DesignModule != nil {
		studyType = study.ProtocolSection.DesignModule.StudyType
	}

	var briefSummary *string
	if study.ProtocolSection.DescriptionModule != nil {
		briefSummary = study.ProtocolSection.DescriptionModule.BriefSummary
	}

	row := models.StudyRow{
		NCTID:                    nctID,
		BriefTitle:               idModule.BriefTitle,
		OfficialTitle:            idModule.OfficialTitle,
		OverallStatus:            statusModule.OverallStatus,
		StartDate:                parseDatePtr(startDateStr),
		StartDateStr:             startDateStr,
		PrimaryCompletionDate:    parseDatePtr(completionDateStr),
		PrimaryCompletionDateStr: completionDateStr,
		StudyType:                studyType,
		BriefSummary:             briefSummary,
	}
	t.buffers[models.StudiesTable.Name].put(rowKey(nctID), row.Values())
}

func (t *Transformer) addSponsors(nctID string, study *models.Study) {
	module := study.ProtocolSection.SponsorCollaboratorsModule
	if module == nil {
		return
	}

	buffer := t.buffers[models.SponsorsTable.Name]
	seen := make(map[string]struct{})

	add := func(sp models.Sponsor, isLead bool) {
		if sp.Name == nil || *sp.Name == "" {
			return
		}
		class := deref(sp.Class)
		key := rowKey(*sp.Name, class)
		if _, ok := seen[key]; ok {
			return // first occurrence wins within a study
		}
		seen[key] = struct{}{}
		row := models.SponsorRow{NCTID: nctID, Name: *sp.Name, AgencyClass: class, IsLead: isLead}
		buffer.put(rowKey(nctID, *sp.Name, class), row.Values())
	}

	if module.LeadSponsor != nil {
		add(*module.LeadSponsor, true)
	}
	for _, collaborator := range module.Collaborators {
		add(collaborator, false)
	}
}

func (t *Transformer) addConditions(nctID string, study *models.Study) {
	module := study.ProtocolSection.ConditionsModule
	if module == nil {
		return
	}

	buffer := t.buffers[models.ConditionsTable.Name]
	seen := make(map[string]struct{})
	for _, condition := range module.Conditions {
		if condition == "" {
			continue
		}
		if _, ok := seen[condition]; ok {
			continue
		}
		seen[condition] = struct{}{}
		row := models.ConditionRow{NCTID: nctID, Name: condition}
		buffer.put(rowKey(nctID, condition), row.Values())
	}
}

func (t *Transformer) addInterventions(nctID string, study *models.Study) {
	module := study.ProtocolSection.ArmsInterventionsModule
	if module == nil {
		return
	}

	buffer := t.buffers[models.InterventionsTable.Name]
	seen := make(map[string]struct{})
	for _, intervention := range module.Interventions {
		if intervention.Name == nil || *intervention.Name == "" {
			continue
		}
		interventionType := deref(intervention.Type)
		key := rowKey(interventionType, *intervention.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		row := models.InterventionRow{
			NCTID:            nctID,
			InterventionType: interventionType,
			Name:             *intervention.Name,
			Description:      intervention.Description,
		}
		buffer.put(rowKey(nctID, interventionType, *intervention.Name), row.Values())
	}
}

func (t *Transformer) addInterventionArmGroups(nctID string, study *models.Study) {
	module := study.ProtocolSection.ArmsInterventionsModule
	if module == nil {
		return
	}

	buffer := t.buffers[models.InterventionArmGroupsTable.Name]
	seen := make(map[string]struct{})
	for _, intervention := range module.Interventions {
		if intervention.Name == nil || *intervention.Name == "" {
			continue
		}
		for _, label := range intervention.ArmGroupLabels {
			if label == "" {
				continue
			}
			key := rowKey(*intervention.Name, label)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			row := models.InterventionArmGroupRow{
				NCTID:            nctID,
				InterventionName: *intervention.Name,
				ArmGroupLabel:    label,
			}
			buffer.put(rowKey(nctID, *intervention.Name, label), row.Values())
		}
	}
}

func (t *Transformer) addOutcomes(nctID string, study *models.Study) {
	module := study.ProtocolSection.OutcomesModule
	if module == nil {
		return
	}

	buffer := t.buffers[models.DesignOutcomesTable.Name]
	seen := make(map[string]struct{})

	add := func(outcomeType string, outcome models.Outcome) {
		if outcome.Measure == nil || *outcome.Measure == "" {
			return
		}
		key := rowKey(outcomeType, *outcome.Measure)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		row := models.DesignOutcomeRow{
			NCTID:       nctID,
			OutcomeType: outcomeType,
			Measure:     *outcome.Measure,
			TimeFrame:   outcome.TimeFrame,
			Description: outcome.Description,
		}
		buffer.put(rowKey(nctID, outcomeType, *outcome.Measure), row.Values())
	}

	// only PRIMARY and SECONDARY outcomes are warehoused
	for _, outcome := range module.PrimaryOutcomes {
		add("PRIMARY", outcome)
	}
	for _, outcome := range module.SecondaryOutcomes {
		add("SECONDARY", outcome)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
