package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/intake/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a Postgres repository. The schema comes from the
// embedded migrations in platform/db.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `document_id, file_name, document_type, patient_mrn, record, created_at`

func (r *repoPG) scan(row pgx.Row) (*StoredRecord, error) {
	var (
		s   StoredRecord
		raw []byte
	)
	if err := row.Scan(&s.DocumentID, &s.FileName, &s.DocumentType, &s.PatientMRN, &raw, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.Record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", s.DocumentID, err)
	}
	return &s, nil
}

func (r *repoPG) Save(ctx context.Context, s *StoredRecord) error {
	raw, err := json.Marshal(s.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_record (document_id, file_name, document_type, patient_mrn, record,
			icd_10_codes, cpt_codes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (document_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			document_type = EXCLUDED.document_type,
			patient_mrn = EXCLUDED.patient_mrn,
			record = EXCLUDED.record,
			icd_10_codes = EXCLUDED.icd_10_codes,
			cpt_codes = EXCLUDED.cpt_codes`,
		s.DocumentID, s.FileName, string(s.DocumentType), s.PatientMRN, raw,
		s.Record.Billing.ICD10Codes, s.Record.Billing.CPTCodes, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save record %s: %w", s.DocumentID, err)
	}
	return nil
}

func (r *repoPG) GetByDocument(ctx context.Context, documentID uuid.UUID) (*StoredRecord, error) {
	s, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinical_record WHERE document_id = $1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *repoPG) ListByPatient(ctx context.Context, mrn string, limit, offset int) ([]*StoredRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_record WHERE patient_mrn = $1`, mrn).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM clinical_record WHERE patient_mrn = $1
		 ORDER BY created_at DESC, document_id LIMIT $2 OFFSET $3`, mrn, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var items []*StoredRecord
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
