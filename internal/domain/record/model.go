package record

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/domain/clinical"
)

// Save statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrNotFound is returned when no record exists for a document.
var ErrNotFound = errors.New("record not found")

// StoredRecord is a canonical record together with the document it came from.
type StoredRecord struct {
	DocumentID   uuid.UUID                        `json:"document_id"`
	FileName     string                           `json:"file_name"`
	DocumentType clinical.DocumentType            `json:"document_type"`
	PatientMRN   string                           `json:"patient_mrn"`
	Record       clinical.CanonicalClinicalRecord `json:"record"`
	CreatedAt    time.Time                        `json:"created_at"`
}

// Meta describes the source document of a record being saved.
type Meta struct {
	DocumentID   uuid.UUID
	FileName     string
	DocumentType clinical.DocumentType
}

// SaveResult reports the outcome of persisting one record.
type SaveResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the save succeeded.
func (r SaveResult) OK() bool { return r.Status == StatusSuccess }
