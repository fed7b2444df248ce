package record

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/clinical"
)

// Sink persists assembled records. A failed save is reported in the result
// and never returned as an error.
type Sink struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewSink creates a sink writing to repo.
func NewSink(repo Repository, logger zerolog.Logger) *Sink {
	return &Sink{repo: repo, logger: logger, now: time.Now}
}

// Save stores rec for the document described by meta.
func (s *Sink) Save(ctx context.Context, rec clinical.CanonicalClinicalRecord, meta Meta) SaveResult {
	stored := &StoredRecord{
		DocumentID:   meta.DocumentID,
		FileName:     meta.FileName,
		DocumentType: meta.DocumentType,
		PatientMRN:   rec.Patient.MRN,
		Record:       rec,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Save(ctx, stored); err != nil {
		err = clinical.NewError(clinical.KindPersistenceFailure, "save record", err)
		s.logger.Warn().Err(err).Str("document_id", meta.DocumentID.String()).Msg("failed to persist record")
		return SaveResult{Status: StatusError, Message: "Failed to save data to database: " + err.Error()}
	}
	s.logger.Debug().Str("document_id", meta.DocumentID.String()).Msg("record persisted")
	return SaveResult{Status: StatusSuccess, Message: "Data saved to database successfully"}
}
