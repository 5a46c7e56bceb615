package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStudyValid(t *testing.T) {
	raw := json.RawMessage(`{
		"protocolSection": {
			"identificationModule": {
				"nctId": "NCT01234567",
				"briefTitle": "A study",
				"officialTitle": "An official study"
			},
			"statusModule": {
				"overallStatus": "COMPLETED",
				"startDateStruct": {"date": "2023-04"},
				"lastUpdatePostDateStruct": {"date": "2024-01-10"}
			},
			"designModule": {"studyType": "INTERVENTIONAL"},
			"conditionsModule": {"conditions": ["Asthma"]},
			"sponsorCollaboratorsModule": {
				"leadSponsor": {"name": "Acme", "class": "INDUSTRY"}
			}
		},
		"hasResults": false
	}`)

	study, err := ParseStudy(raw)
	require.NoError(t, err)
	assert.Equal(t, "NCT01234567", study.NCTID())
	assert.Equal(t, "COMPLETED", *study.ProtocolSection.StatusModule.OverallStatus)
	assert.Equal(t, "2023-04", *study.ProtocolSection.StatusModule.StartDateStruct.Date)
}

func TestParseStudyToleratesUnknownFields(t *testing.T) {
	raw := json.RawMessage(`{
		"protocolSection": {
			"identificationModule": {"nctId": "NCT01234567"},
			"statusModule": {},
			"futureModule": {"anything": [1, 2, 3]}
		},
		"derivedSection": {"miscInfoModule": {}}
	}`)

	study, err := ParseStudy(raw)
	require.NoError(t, err)
	assert.Equal(t, "NCT01234567", study.NCTID())
}

func TestParseStudyInvalid(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		pathPart string
	}{
		{
			name:     "missing nct id",
			raw:      `{"protocolSection": {"identificationModule": {"briefTitle": "no id"}, "statusModule": {}}}`,
			pathPart: "nctId",
		},
		{
			name:     "empty nct id",
			raw:      `{"protocolSection": {"identificationModule": {"nctId": ""}, "statusModule": {}}}`,
			pathPart: "nctId",
		},
		{
			name:     "wrong kind for scalar",
			raw:      `{"protocolSection": {"identificationModule": {"nctId": "NCT1", "briefTitle": ["not", "a", "string"]}, "statusModule": {}}}`,
			pathPart: "briefTitle",
		},
		{
			name:     "wrong kind for module",
			raw:      `{"protocolSection": {"identificationModule": {"nctId": "NCT1"}, "statusModule": {"startDateStruct": "2024-01-01"}}}`,
			pathPart: "startDateStruct",
		},
		{
			name:     "unknown overall status",
			raw:      `{"protocolSection": {"identificationModule": {"nctId": "NCT1"}, "statusModule": {"overallStatus": "DANCING"}}}`,
			pathPart: "overallStatus",
		},
		{
			name:     "unknown study type",
			raw:      `{"protocolSection": {"identificationModule": {"nctId": "NCT1"}, "statusModule": {}, "designModule": {"studyType": "MYSTERY"}}}`,
			pathPart: "studyType",
		},
		{
			name:     "unknown agency class",
			raw:      `{"protocolSection": {"identificationModule": {"nctId": "NCT1"}, "statusModule": {}, "sponsorCollaboratorsModule": {"leadSponsor": {"name": "X", "class": "MEGACORP"}}}}`,
			pathPart: "class",
		},
		{
			name:     "malformed json",
			raw:      `{"protocolSection": `,
			pathPart: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			study, err := ParseStudy(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.Nil(t, study)
			assert.True(t, IsValidationError(err), "expected validation error, got %T", err)
			if tt.pathPart != "" {
				assert.Contains(t, err.Error(), tt.pathPart)
			}
		})
	}
}

func TestExtractNCTID(t *testing.T) {
	assert.Equal(t, "NCT42",
		ExtractNCTID(json.RawMessage(`{"protocolSection": {"identificationModule": {"nctId": "NCT42"}}}`)))
	assert.Equal(t, "",
		ExtractNCTID(json.RawMessage(`{"protocolSection": {}}`)))
	assert.Equal(t, "",
		ExtractNCTID(json.RawMessage(`not json`)))
	// best-effort extraction still works when sibling fields are malformed
	assert.Equal(t, "NCT42",
		ExtractNCTID(json.RawMessage(`{"protocolSection": {"identificationModule": {"nctId": "NCT42"}}, "hasResults": "maybe"}`)))
}
