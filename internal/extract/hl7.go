package extract

import (
	"context"
	"errors"

	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/platform/hl7v2"
)

// HL7Adapter extracts demographics, diagnoses and procedures from an HL7v2
// message.
type HL7Adapter struct {
	MaxFileSize int64
}

var errMissingPID = errors.New("message has no PID segment")

// Extract implements Adapter.
func (a *HL7Adapter) Extract(_ context.Context, path string) clinical.RawExtraction {
	data, err := readFile(path, a.MaxFileSize)
	if err != nil {
		return hl7Failure(err)
	}
	msg, err := hl7v2.Parse(data)
	if err != nil {
		return hl7Failure(err)
	}
	pid, ok := msg.Patient()
	if !ok {
		return hl7Failure(errMissingPID)
	}

	out := clinical.RawExtraction{
		DocumentType: clinical.DocumentHL7,
		Patient: clinical.PatientDemographics{
			ID:          pid.ID,
			FirstName:   pid.GivenName,
			LastName:    pid.FamilyName,
			DateOfBirth: pid.DateOfBirth,
			Gender:      pid.Sex,
		},
		DiagnosesRaw:  []clinical.RawDiagnosis{},
		ProceduresRaw: []clinical.RawProcedure{},
	}
	for _, dg := range msg.Diagnoses() {
		out.DiagnosesRaw = append(out.DiagnosesRaw, clinical.RawDiagnosis{
			ICDCode:     clinical.OptionalStr(dg.Code),
			Description: describe(dg),
			Date:        dg.Date,
		})
	}
	for _, pr := range msg.Procedures() {
		out.ProceduresRaw = append(out.ProceduresRaw, clinical.RawProcedure{
			CPTCode:     clinical.OptionalStr(pr.Code),
			Description: describe(pr),
			Date:        pr.Date,
		})
	}
	return out
}

// describe prefers the free-text description field and falls back to the
// coded element's text component.
func describe(e hl7v2.CodedEntry) string {
	if e.Description != "" {
		return e.Description
	}
	return e.CodeText
}

func hl7Failure(err error) clinical.RawExtraction {
	return clinical.FailedExtraction(clinical.DocumentHL7, clinical.KindParseFailure,
		"Failed to extract data from HL7 file: "+err.Error())
}
