// Package assemble merges the outputs of the extraction and coding stages
// into one canonical clinical record.
package assemble

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/dedup"
	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/nlp"
)

// Input is everything the assembler needs for one document. Diagnoses and
// Procedures are the standardized candidates.
type Input struct {
	Raw        clinical.RawExtraction
	Analysis   nlp.Analysis
	Diagnoses  []clinical.CandidateEntry
	Procedures []clinical.CandidateEntry
}

var errFailedExtraction = errors.New("extraction carries an error")

// Assembler builds canonical records.
type Assembler struct {
	logger zerolog.Logger
}

// New creates an assembler.
func New(logger zerolog.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble builds the record. Any failure, including a panic, yields the
// empty record together with an AssemblyFailure.
func (a *Assembler) Assemble(in Input) (clinical.CanonicalClinicalRecord, error) {
	return a.safely(func() (clinical.CanonicalClinicalRecord, error) {
		return a.build(in)
	})
}

func (a *Assembler) safely(fn func() (clinical.CanonicalClinicalRecord, error)) (rec clinical.CanonicalClinicalRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("record assembly panicked")
			rec = clinical.EmptyRecord()
			err = clinical.NewError(clinical.KindAssemblyFailure, "assemble", fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}

func (a *Assembler) build(in Input) (clinical.CanonicalClinicalRecord, error) {
	if in.Raw.Failed() {
		return clinical.EmptyRecord(), clinical.NewError(clinical.KindAssemblyFailure, "assemble", errFailedExtraction)
	}

	rec := clinical.EmptyRecord()
	p := in.Raw.Patient
	rec.Patient = clinical.RecordPatient{
		Name:   strings.TrimSpace(p.FirstName + " " + p.LastName),
		MRN:    p.ID,
		DOB:    p.DateOfBirth,
		Gender: p.Gender,
	}
	rec.Visit.Date = visitDate(in.Raw)

	rec.Diagnoses = copyEntries(in.Diagnoses)
	rec.Procedures = copyEntries(in.Procedures)
	rec.Medications = listLines(in.Analysis.Sections[clinical.SectionMedications])
	rec.TreatmentPlan = listLines(in.Analysis.Sections[clinical.SectionPlan])

	rec = dedup.Record(rec)
	rec.Billing = BuildBilling(rec.Diagnoses, rec.Procedures)
	return rec, nil
}

// BuildBilling collects the distinct non-nil codes of diagnoses and
// procedures in first-seen order.
func BuildBilling(diagnoses, procedures []clinical.CandidateEntry) clinical.Billing {
	return clinical.Billing{
		ICD10Codes: codes(diagnoses),
		CPTCodes:   codes(procedures),
	}
}

func codes(entries []clinical.CandidateEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Code != nil {
			out = append(out, *e.Code)
		}
	}
	return dedup.Entries(out)
}

// visitDate is the first date carried by a raw diagnosis, then procedure.
func visitDate(raw clinical.RawExtraction) string {
	for _, d := range raw.DiagnosesRaw {
		if d.Date != "" {
			return d.Date
		}
	}
	for _, p := range raw.ProceduresRaw {
		if p.Date != "" {
			return p.Date
		}
	}
	return ""
}

func copyEntries(in []clinical.CandidateEntry) []clinical.CandidateEntry {
	out := make([]clinical.CandidateEntry, len(in))
	copy(out, in)
	return out
}

var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)

// listLines splits a section block into its non-empty lines, with list
// numbering and bullets removed.
func listLines(block string) []string {
	out := []string{}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
