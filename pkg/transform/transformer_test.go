package transform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func ptr(s string) *string {
	return &s
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testStudy(nctID string) *models.Study {
	return &models.Study{
		ProtocolSection: models.ProtocolSection{
			IdentificationModule: models.IdentificationModule{
				NCTID:      nctID,
				BriefTitle: ptr("A test study"),
			},
			StatusModule: models.StatusModule{
				OverallStatus:            ptr("RECRUITING"),
				StartDateStruct:          &models.DateStruct{Date: ptr("2024-01-15")},
				LastUpdatePostDateStruct: &models.DateStruct{Date: ptr("2024-05-01")},
			},
		},
	}
}

func TestParseFlexibleDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		ok       bool
	}{
		{
			name:     "full date",
			input:    "2024-01-15",
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			ok:       true,
		},
		{
			name:     "year-month",
			input:    "2024-03",
			expected: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			ok:       true,
		},
		{
			name:     "year only",
			input:    "2024",
			expected: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ok:       true,
		},
		{
			name:  "garbage",
			input: "January 2024",
			ok:    false,
		},
		{
			name:  "empty",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFlexibleDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestAddBuffersEveryTable(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)

	study := testStudy("NCT00000001")
	study.ProtocolSection.SponsorCollaboratorsModule = &models.SponsorCollaboratorsModule{
		LeadSponsor:   &models.Sponsor{Name: ptr("Acme Pharma"), Class: ptr("INDUSTRY")},
		Collaborators: []models.Sponsor{{Name: ptr("NIH"), Class: ptr("NIH")}},
	}
	study.ProtocolSection.ConditionsModule = &models.ConditionsModule{
		Conditions: []string{"Diabetes", "Hypertension"},
	}
	study.ProtocolSection.ArmsInterventionsModule = &models.ArmsInterventionsModule{
		Interventions: []models.Intervention{
			{
				Type:           ptr("DRUG"),
				Name:           ptr("Metformin"),
				Description:    ptr("500mg daily"),
				ArmGroupLabels: []string{"Treatment", "Extension"},
			},
		},
	}
	study.ProtocolSection.OutcomesModule = &models.OutcomesModule{
		PrimaryOutcomes:   []models.Outcome{{Measure: ptr("HbA1c change"), TimeFrame: ptr("12 weeks")}},
		SecondaryOutcomes: []models.Outcome{{Measure: ptr("Weight change")}},
	}

	raw := json.RawMessage(`{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"}}}`)
	require.NoError(t, tr.Add(study, raw))

	assert.Equal(t, 1, tr.StudyCount())

	batches := tr.Batches()
	byTable := make(map[string]models.Batch)
	for _, b := range batches {
		byTable[b.Table.Name] = b
	}

	assert.Len(t, byTable["raw_studies"].Rows, 1)
	assert.Len(t, byTable["studies"].Rows, 1)
	assert.Len(t, byTable["sponsors"].Rows, 2)
	assert.Len(t, byTable["conditions"].Rows, 2)
	assert.Len(t, byTable["interventions"].Rows, 1)
	assert.Len(t, byTable["intervention_arm_groups"].Rows, 2)
	assert.Len(t, byTable["design_outcomes"].Rows, 2)

	// batches come out in merge dependency order
	assert.Equal(t, "raw_studies", batches[0].Table.Name)
	assert.Equal(t, "studies", batches[1].Table.Name)

	// lead sponsor first, flagged
	sponsorRow := byTable["sponsors"].Rows[0]
	assert.Equal(t, "Acme Pharma", sponsorRow[1])
	assert.Equal(t, true, sponsorRow[3])

	// raw payload carried through untouched
	rawRow := byTable["raw_studies"].Rows[0]
	assert.Equal(t, []byte(raw), rawRow[4].([]byte))
}

func TestAddPartialDateKeepsString(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)

	study := testStudy("NCT00000002")
	study.ProtocolSection.StatusModule.StartDateStruct = &models.DateStruct{Date: ptr("2024")}

	require.NoError(t, tr.Add(study, json.RawMessage(`{}`)))

	var studyRows [][]any
	for _, b := range tr.Batches() {
		if b.Table.Name == "studies" {
			studyRows = b.Rows
		}
	}
	require.Len(t, studyRows, 1)

	// start_date parses to the first of the year, start_date_str keeps "2024"
	row := studyRows[0]
	startDate := row[4].(*time.Time)
	require.NotNil(t, startDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *startDate)
	assert.Equal(t, "2024", *row[5].(*string))
}

func TestAddUnparseableDateLeavesNull(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)

	study := testStudy("NCT00000003")
	study.ProtocolSection.StatusModule.StartDateStruct = &models.DateStruct{Date: ptr("sometime soon")}

	require.NoError(t, tr.Add(study, json.RawMessage(`{}`)))

	var row []any
	for _, b := range tr.Batches() {
		if b.Table.Name == "studies" {
			row = b.Rows[0]
		}
	}
	require.NotNil(t, row)

	assert.Nil(t, row[4].(*time.Time))
	assert.Equal(t, "sometime soon", *row[5].(*string))
}

func TestAddDeduplicatesWithinStudy(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)

	study := testStudy("NCT00000004")
	study.ProtocolSection.ConditionsModule = &models.ConditionsModule{
		Conditions: []string{"Diabetes", "Diabetes"},
	}
	study.ProtocolSection.SponsorCollaboratorsModule = &models.SponsorCollaboratorsModule{
		LeadSponsor: &models.Sponsor{Name: ptr("Acme"), Class: ptr("INDUSTRY")},
		// same natural key as the lead; first occurrence (is_lead=true) wins
		Collaborators: []models.Sponsor{{Name: ptr("Acme"), Class: ptr("INDUSTRY")}},
	}

	require.NoError(t, tr.Add(study, json.RawMessage(`{}`)))

	byTable := make(map[string][][]any)
	for _, b := range tr.Batches() {
		byTable[b.Table.Name] = b.Rows
	}

	require.Len(t, byTable["conditions"], 1)
	require.Len(t, byTable["sponsors"], 1)
	assert.Equal(t, true, byTable["sponsors"][0][3])
}

func TestAddSameStudyTwiceLastWriteWins(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)

	first := testStudy("NCT00000005")
	first.ProtocolSection.IdentificationModule.BriefTitle = ptr("old title")
	second := testStudy("NCT00000005")
	second.ProtocolSection.IdentificationModule.BriefTitle = ptr("new title")

	require.NoError(t, tr.Add(first, json.RawMessage(`{"v":1}`)))
	require.NoError(t, tr.Add(second, json.RawMessage(`{"v":2}`)))

	byTable := make(map[string][][]any)
	for _, b := range tr.Batches() {
		byTable[b.Table.Name] = b.Rows
	}

	require.Len(t, byTable["studies"], 1)
	assert.Equal(t, "new title", *byTable["studies"][0][1].(*string))
	require.Len(t, byTable["raw_studies"], 1)
}

func TestAddSkipsChildRowsWithoutNaturalKey(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)

	study := testStudy("NCT00000006")
	study.ProtocolSection.ArmsInterventionsModule = &models.ArmsInterventionsModule{
		Interventions: []models.Intervention{
			{Type: ptr("DRUG")}, // no name
			{Name: ptr("Aspirin"), ArmGroupLabels: []string{""}},
		},
	}
	study.ProtocolSection.OutcomesModule = &models.OutcomesModule{
		PrimaryOutcomes: []models.Outcome{{Description: ptr("no measure")}},
		// OTHER outcomes are not part of this module's type registry; only
		// PRIMARY and SECONDARY rows are emitted at all
		OtherOutcomes: []models.Outcome{{Measure: ptr("ignored")}},
	}

	require.NoError(t, tr.Add(study, json.RawMessage(`{}`)))

	byTable := make(map[string][][]any)
	for _, b := range tr.Batches() {
		byTable[b.Table.Name] = b.Rows
	}

	require.Len(t, byTable["interventions"], 1)
	assert.Empty(t, byTable["intervention_arm_groups"])
	assert.Empty(t, byTable["design_outcomes"])
}

func TestClearResetsBuffers(t *testing.T) {
	tr := NewTransformerWithClock(fixedClock)
	require.NoError(t, tr.Add(testStudy("NCT00000007"), json.RawMessage(`{}`)))
	require.NotZero(t, tr.RowCount())

	tr.Clear()

	assert.Zero(t, tr.StudyCount())
	assert.Zero(t, tr.RowCount())
	assert.Empty(t, tr.Batches())
}
