// Package schema validates raw API study payloads into typed records.
// Validation is purely structural and per-record; cross-record integrity is
// the warehouse's job.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ValidationError describes why a raw payload could not become a typed Study.
// Path points at the offending field where known.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("field '%s': %s", e.Path, e.Message)
}

func newValidationErrorf(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a per-record validation failure
// (DLQ route) rather than a pipeline fault.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Enum values from the V2 API schema. Unknown values are rejected; a study
// carrying one is routed to the DLQ rather than poisoning the warehouse.
var overallStatuses = map[string]struct{}{
	"ACTIVE_NOT_RECRUITING":     {},
	"COMPLETED":                 {},
	"ENROLLING_BY_INVITATION":   {},
	"NOT_YET_RECRUITING":        {},
	"RECRUITING":                {},
	"SUSPENDED":                 {},
	"TERMINATED":                {},
	"WITHDRAWN":                 {},
	"AVAILABLE":                 {},
	"NO_LONGER_AVAILABLE":       {},
	"TEMPORARILY_NOT_AVAILABLE": {},
	"APPROVED_FOR_MARKETING":    {},
	"WITHHELD":                  {},
	"UNKNOWN":                   {},
}

var studyTypes = map[string]struct{}{
	"INTERVENTIONAL":  {},
	"OBSERVATIONAL":   {},
	"EXPANDED_ACCESS": {},
}

var agencyClasses = map[string]struct{}{
	"NIH":       {},
	"FED":       {},
	"OTHER_GOV": {},
	"INDIV":     {},
	"INDUSTRY":  {},
	"NETWORK":   {},
	"AMBIG":     {},
	"OTHER":     {},
	"UNKNOWN":   {},
}

// ParseStudy decodes a raw study payload into a typed record. It returns a
// *ValidationError when the payload is structurally invalid: missing/empty
// nctId, a scalar of the wrong JSON kind, or an enum field carrying a value
// the API schema disallows. Unknown fields are tolerated.
func ParseStudy(raw json.RawMessage) (*models.Study, error) {
	var study models.Study
	if err := json.Unmarshal(raw, &study); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, newValidationErrorf(typeErr.Field, "expected %s, got JSON %s", typeErr.Type, typeErr.Value)
		}
		return nil, &ValidationError{Message: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if study.ProtocolSection.IdentificationModule.NCTID == "" {
		return nil, newValidationErrorf("protocolSection.identificationModule.nctId", "missing or empty")
	}

	if err := checkEnums(&study); err != nil {
		return nil, err
	}

	return &study, nil
}

func checkEnums(study *models.Study) error {
	status := study.ProtocolSection.StatusModule.OverallStatus
	if status != nil {
		if _, ok := overallStatuses[*status]; !ok {
			return newValidationErrorf("protocolSection.statusModule.overallStatus", "value %q is not a known overall status", *status)
		}
	}

	if dm := study.ProtocolSection.DesignModule; dm != nil && dm.StudyType != nil {
		if _, ok := studyTypes[*dm.StudyType]; !ok {
			return newValidationErrorf("protocolSection.designModule.studyType", "value %q is not a known study type", *dm.StudyType)
		}
	}

	scm := study.ProtocolSection.SponsorCollaboratorsModule
	if scm == nil {
		return nil
	}
	if scm.LeadSponsor != nil {
		if err := checkAgencyClass("protocolSection.sponsorCollaboratorsModule.leadSponsor.class", scm.LeadSponsor.Class); err != nil {
			return err
		}
	}
	for i := range scm.Collaborators {
		path := fmt.Sprintf("protocolSection.sponsorCollaboratorsModule.collaborators[%d].class", i)
		if err := checkAgencyClass(path, scm.Collaborators[i].Class); err != nil {
			return err
		}
	}
	return nil
}

func checkAgencyClass(path string, class *string) error {
	if class == nil {
		return nil
	}
	if _, ok := agencyClasses[*class]; !ok {
		return newValidationErrorf(path, "value %q is not a known agency class", *class)
	}
	return nil
}

// ExtractNCTID pulls the study identifier out of a raw payload without full
// validation, for DLQ diagnostics. Returns "" when absent.
func ExtractNCTID(raw json.RawMessage) string {
	var probe struct {
		ProtocolSection struct {
			IdentificationModule struct {
				NCTID string `json:"nctId"`
			} `json:"identificationModule"`
		} `json:"protocolSection"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ProtocolSection.IdentificationModule.NCTID
}
