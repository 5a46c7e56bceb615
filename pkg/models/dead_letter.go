package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeadLetterEntry is one record that failed validation, preserved with its
// raw payload so it can be replayed once the defect is understood. DLQ rows
// are committed outside the run transaction and survive rollback.
type DeadLetterEntry struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	NCTID        *string         `json:"nct_id,omitempty" db:"nct_id"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	ErrorMessage string          `json:"error_message" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
