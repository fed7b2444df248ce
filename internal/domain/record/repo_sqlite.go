package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ehr/intake/internal/domain/clinical"
)

// RepoSQLite stores records in a single SQLite table.
type RepoSQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path with WAL
// mode enabled and the schema in place.
func OpenSQLite(ctx context.Context, path string) (*RepoSQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	repo, err := NewRepoSQLite(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepoSQLite wraps an open database, creating the schema if missing.
func NewRepoSQLite(ctx context.Context, db *sql.DB) (*RepoSQLite, error) {
	if err := initSchema(ctx, db); err != nil {
		return nil, err
	}
	return &RepoSQLite{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS clinical_record (
	document_id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	document_type TEXT NOT NULL,
	patient_mrn TEXT NOT NULL DEFAULT '',
	record TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clinical_record_patient_mrn
	ON clinical_record (patient_mrn, created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *RepoSQLite) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *RepoSQLite) Close() error {
	return r.db.Close()
}

func (r *RepoSQLite) Save(ctx context.Context, s *StoredRecord) error {
	raw, err := json.Marshal(s.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO clinical_record (document_id, file_name, document_type, patient_mrn, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			file_name = excluded.file_name,
			document_type = excluded.document_type,
			patient_mrn = excluded.patient_mrn,
			record = excluded.record`,
		s.DocumentID.String(), s.FileName, string(s.DocumentType), s.PatientMRN, string(raw),
		s.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save record %s: %w", s.DocumentID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLite(row scanner) (*StoredRecord, error) {
	var (
		s                       StoredRecord
		id, docType, raw, added string
	)
	if err := row.Scan(&id, &s.FileName, &docType, &s.PatientMRN, &raw, &added); err != nil {
		return nil, err
	}
	var err error
	if s.DocumentID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse document id %q: %w", id, err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, added); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", added, err)
	}
	s.DocumentType = clinical.DocumentType(docType)
	if err := json.Unmarshal([]byte(raw), &s.Record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &s, nil
}

func (r *RepoSQLite) GetByDocument(ctx context.Context, documentID uuid.UUID) (*StoredRecord, error) {
	s, err := scanSQLite(r.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM clinical_record WHERE document_id = ?`, documentID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *RepoSQLite) ListByPatient(ctx context.Context, mrn string, limit, offset int) ([]*StoredRecord, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clinical_record WHERE patient_mrn = ?`, mrn).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM clinical_record WHERE patient_mrn = ?
		 ORDER BY created_at DESC, document_id LIMIT ? OFFSET ?`, mrn, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var items []*StoredRecord
	for rows.Next() {
		s, err := scanSQLite(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
