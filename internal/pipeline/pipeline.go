// Package pipeline drives one document at a time through detection,
// extraction, analysis, standardization, assembly and persistence, and fans
// a directory of documents out over a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/assemble"
	"github.com/ehr/intake/internal/dedup"
	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/domain/record"
	"github.com/ehr/intake/internal/extract"
	"github.com/ehr/intake/internal/nlp"
	"github.com/ehr/intake/internal/platform/detect"
	"github.com/ehr/intake/internal/terminology"
)

// Stage names a step of the per-document state machine.
type Stage string

const (
	StageDetected     Stage = "Detected"
	StageExtracted    Stage = "Extracted"
	StageAnalyzed     Stage = "Analyzed"
	StageStandardized Stage = "Standardized"
	StageAssembled    Stage = "Assembled"
	StagePersisted    Stage = "Persisted"
	StageFailed       Stage = "Failed"
)

const (
	causeTimeout  = "timeout"
	causeCanceled = "canceled"
)

// Failure is the terminal state of a document that did not make it through.
// Stage is the stage that was running when the document failed.
type Failure struct {
	Stage Stage              `json:"stage"`
	Cause string             `json:"cause"`
	Kind  clinical.ErrorKind `json:"kind,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Stage, f.Cause)
}

// Unwrap lets errors.Is match the failure's kind sentinel.
func (f *Failure) Unwrap() error {
	if f.Kind == "" {
		return nil
	}
	return clinical.NewError(f.Kind, "", nil)
}

// Result is the outcome of processing one document. State is the last stage
// completed, or StageFailed.
type Result struct {
	FileName     string                            `json:"file_name"`
	FilePath     string                            `json:"file_path"`
	DocumentID   uuid.UUID                         `json:"document_id"`
	DocumentType clinical.DocumentType             `json:"document_type,omitempty"`
	State        Stage                             `json:"state"`
	Record       *clinical.CanonicalClinicalRecord `json:"record,omitempty"`
	Failure      *Failure                          `json:"failure,omitempty"`
	Warnings     []string                          `json:"warnings,omitempty"`
	Persistence  *record.SaveResult                `json:"persistence,omitempty"`
}

// Failed reports whether the document ended in the Failed state.
func (r *Result) Failed() bool { return r.State == StageFailed }

// Sink persists an assembled record. *record.Sink implements it.
type Sink interface {
	Save(ctx context.Context, rec clinical.CanonicalClinicalRecord, meta record.Meta) record.SaveResult
}

// RecordAssembler builds the canonical record. On failure it still returns
// a record, the empty one, alongside the error. *assemble.Assembler
// implements it.
type RecordAssembler interface {
	Assemble(in assemble.Input) (clinical.CanonicalClinicalRecord, error)
}

// Config wires a Pipeline. Sink may be nil, in which case records are not
// persisted. A zero Timeout disables the per-document deadline. A nil
// Assembler uses assemble.New.
type Config struct {
	Adapters  *extract.Adapters
	Analyzer  *nlp.Analyzer
	Tables    terminology.Tables
	Assembler RecordAssembler
	Sink      Sink
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Pipeline processes single documents. It is safe for concurrent use.
type Pipeline struct {
	adapters  *extract.Adapters
	analyzer  *nlp.Analyzer
	icd10     *terminology.Standardizer
	cpt       *terminology.Standardizer
	assembler RecordAssembler
	sink      Sink
	timeout   time.Duration
	logger    zerolog.Logger
}

// New validates cfg and builds a pipeline. Invalid wiring is a
// Configuration error.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Adapters == nil:
		return nil, configError("no extraction adapters")
	case cfg.Tables.ICD10 == nil || cfg.Tables.ICD10.Len() == 0:
		return nil, configError("empty ICD-10 mapping table")
	case cfg.Tables.CPT == nil || cfg.Tables.CPT.Len() == 0:
		return nil, configError("empty CPT mapping table")
	case cfg.Timeout < 0:
		return nil, configError("negative document timeout")
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = nlp.NewAnalyzer(nil)
	}
	if cfg.Assembler == nil {
		cfg.Assembler = assemble.New(cfg.Logger)
	}
	return &Pipeline{
		adapters:  cfg.Adapters,
		analyzer:  cfg.Analyzer,
		icd10:     terminology.NewStandardizer(cfg.Tables.ICD10),
		cpt:       terminology.NewStandardizer(cfg.Tables.CPT),
		assembler: cfg.Assembler,
		sink:      cfg.Sink,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}, nil
}

func configError(msg string) error {
	return clinical.NewError(clinical.KindConfiguration, "pipeline", errors.New(msg))
}

// run carries the state of one document through the stages.
type run struct {
	ctx    context.Context
	res    *Result
	logger zerolog.Logger
}

// enter checks the document context at a stage boundary.
func (r *run) enter(stage Stage) bool {
	if err := r.ctx.Err(); err != nil {
		r.interrupted(stage)
		return false
	}
	r.logger.Debug().Str("stage", string(stage)).Msg("stage started")
	return true
}

func (r *run) done(stage Stage) {
	r.res.State = stage
}

func (r *run) fail(stage Stage, kind clinical.ErrorKind, cause string) {
	r.res.State = StageFailed
	r.res.Record = nil
	r.res.Failure = &Failure{Stage: stage, Cause: cause, Kind: kind}
	r.logger.Warn().Str("stage", string(stage)).Str("kind", string(kind)).Str("cause", cause).Msg("document failed")
}

func (r *run) interrupted(stage Stage) {
	if errors.Is(r.ctx.Err(), context.DeadlineExceeded) {
		r.fail(stage, clinical.KindTimeout, causeTimeout)
		return
	}
	r.fail(stage, "", causeCanceled)
}

// stageError settles an error returned by runStage. An expired or canceled
// context wins over anything the stage reported; a recovered panic fails the
// document with kind.
func (r *run) stageError(stage Stage, kind clinical.ErrorKind, err error) {
	var pe *panicError
	if r.ctx.Err() == nil && errors.As(err, &pe) {
		r.fail(stage, kind, pe.Error())
		return
	}
	r.interrupted(stage)
}

func (r *run) warn(msg string) {
	r.res.Warnings = append(r.res.Warnings, msg)
	r.logger.Warn().Str("warning", msg).Msg("document warning")
}

// panicError carries a value recovered from a stage goroutine.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// runStage runs fn on its own goroutine so a deadline can abandon a stage
// that blocks in an external model. A panic in fn comes back as a
// *panicError.
func runStage[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- outcome{err: &panicError{value: v}}
			}
		}()
		v, err := fn(ctx)
		ch <- outcome{v, err}
	}()
	select {
	case o := <-ch:
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Process runs one document through the pipeline. Stage failures are
// reported in the result, never as a Go error.
func (p *Pipeline) Process(ctx context.Context, path string) Result {
	res := Result{
		FileName:   filepath.Base(path),
		FilePath:   path,
		DocumentID: uuid.New(),
		Warnings:   []string{},
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	r := &run{
		ctx: ctx,
		res: &res,
		logger: p.logger.With().
			Str("file", res.FileName).
			Str("document_id", res.DocumentID.String()).
			Logger(),
	}

	start := time.Now()
	p.process(r, path)
	r.logger.Debug().
		Str("state", string(res.State)).
		Dur("elapsed", time.Since(start)).
		Msg("document processed")
	return res
}

func (p *Pipeline) process(r *run, path string) {
	if !r.enter(StageDetected) {
		return
	}
	kind, err := detectFile(path)
	if err != nil {
		r.fail(StageDetected, kindOr(err, clinical.KindUnsupportedFormat), err.Error())
		return
	}
	r.res.DocumentType = kind
	r.done(StageDetected)

	if !r.enter(StageExtracted) {
		return
	}
	adapter, err := p.adapters.For(kind)
	if err != nil {
		r.fail(StageExtracted, kindOr(err, clinical.KindUnsupportedFormat), err.Error())
		return
	}
	raw, err := runStage(r.ctx, func(ctx context.Context) (clinical.RawExtraction, error) {
		return adapter.Extract(ctx, path), nil
	})
	if err != nil {
		r.stageError(StageExtracted, clinical.KindParseFailure, err)
		return
	}
	if raw.Failed() {
		r.fail(StageExtracted, raw.ErrorKind, *raw.Error)
		return
	}
	r.done(StageExtracted)

	if !r.enter(StageAnalyzed) {
		return
	}
	analysis, diagnoses, procedures, ok := p.analyze(r, raw)
	if !ok {
		return
	}
	r.done(StageAnalyzed)

	if !r.enter(StageStandardized) {
		return
	}
	diagnoses = dedup.Candidates(p.icd10.Standardize(terminology.Normalize(diagnoses)))
	procedures = dedup.Candidates(p.cpt.Standardize(terminology.Normalize(procedures)))
	r.done(StageStandardized)

	if !r.enter(StageAssembled) {
		return
	}
	rec, err := p.assembler.Assemble(assemble.Input{
		Raw:        raw,
		Analysis:   analysis,
		Diagnoses:  diagnoses,
		Procedures: procedures,
	})
	// A failed assembly still yields the empty record; the error travels as
	// a warning and the document goes on to persistence.
	if err != nil {
		r.warn(err.Error())
	}
	r.res.Record = &rec
	r.done(StageAssembled)

	if p.sink == nil {
		return
	}
	if !r.enter(StagePersisted) {
		return
	}
	saved := p.sink.Save(r.ctx, rec, record.Meta{
		DocumentID:   r.res.DocumentID,
		FileName:     r.res.FileName,
		DocumentType: kind,
	})
	r.res.Persistence = &saved
	if !saved.OK() {
		r.warn(saved.Message)
		return
	}
	r.done(StagePersisted)
}

// analyze produces the analysis and the uncoded candidates. Free-text kinds
// go through the analyzer and the label extractor; structured kinds carry
// their source codes into the candidates.
func (p *Pipeline) analyze(r *run, raw clinical.RawExtraction) (nlp.Analysis, []clinical.CandidateEntry, []clinical.CandidateEntry, bool) {
	switch raw.DocumentType {
	case clinical.DocumentText, clinical.DocumentPDF:
		text := raw.Text()
		analysis, err := runStage(r.ctx, func(ctx context.Context) (nlp.Analysis, error) {
			return p.analyzer.Analyze(ctx, text)
		})
		var pe *panicError
		if r.ctx.Err() != nil || errors.As(err, &pe) {
			r.stageError(StageAnalyzed, clinical.KindExternalModelFailure, err)
			return nlp.Analysis{}, nil, nil, false
		}
		if err != nil {
			r.warn(err.Error())
		}
		entities := nlp.ExtractEntities(text)
		return analysis, entities.Diagnoses, entities.Procedures, true
	}

	analysis := nlp.Analysis{
		Entities: []clinical.EntitySpan{},
		Sections: clinical.Sections{},
		Terms:    []terminology.TermNormalization{},
	}
	diagnoses := make([]clinical.CandidateEntry, 0, len(raw.DiagnosesRaw))
	for _, d := range raw.DiagnosesRaw {
		diagnoses = append(diagnoses, clinical.CandidateEntry{Description: d.Description, Code: d.ICDCode})
	}
	procedures := make([]clinical.CandidateEntry, 0, len(raw.ProceduresRaw))
	for _, pr := range raw.ProceduresRaw {
		procedures = append(procedures, clinical.CandidateEntry{Description: pr.Description, Code: pr.CPTCode})
	}
	return analysis, diagnoses, procedures, true
}

func detectFile(path string) (clinical.DocumentType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", clinical.NewError(clinical.KindParseFailure, "detect", err)
	}
	defer f.Close()

	head := make([]byte, detect.SniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", clinical.NewError(clinical.KindParseFailure, "detect", err)
	}
	return detect.Detect(path, head[:n])
}

func kindOr(err error, fallback clinical.ErrorKind) clinical.ErrorKind {
	if k := clinical.KindOf(err); k != "" {
		return k
	}
	return fallback
}
