package record

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores canonical records. Save replaces any record already
// stored for the same document.
type Repository interface {
	Save(ctx context.Context, r *StoredRecord) error
	GetByDocument(ctx context.Context, documentID uuid.UUID) (*StoredRecord, error)
	ListByPatient(ctx context.Context, mrn string, limit, offset int) ([]*StoredRecord, int, error)
}
