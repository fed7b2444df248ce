package extract

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/platform/fhir"
)

// FHIRAdapter extracts data from a Patient, Condition or Procedure resource,
// or from a Bundle of them.
type FHIRAdapter struct {
	MaxFileSize int64
	Logger      zerolog.Logger
}

// Extract implements Adapter.
func (a *FHIRAdapter) Extract(_ context.Context, path string) clinical.RawExtraction {
	data, err := readFile(path, a.MaxFileSize)
	if err != nil {
		return fhirFailure(err)
	}
	rtype, err := fhir.ResourceType(data)
	if err != nil {
		return fhirFailure(err)
	}

	out := clinical.RawExtraction{
		DocumentType:  clinical.DocumentFHIR,
		DiagnosesRaw:  []clinical.RawDiagnosis{},
		ProceduresRaw: []clinical.RawProcedure{},
	}

	if rtype != fhir.TypeBundle {
		if !supported(rtype) {
			return unsupportedResource(rtype)
		}
		if err := merge(&out, rtype, data); err != nil {
			return fhirFailure(err)
		}
		return out
	}

	bundle, err := fhir.Decode[fhir.Bundle](data, fhir.TypeBundle)
	if err != nil {
		return fhirFailure(err)
	}
	merged, skipped := 0, 0
	for i, entry := range bundle.Entry {
		etype, err := fhir.ResourceType(entry.Resource)
		if err != nil || !supported(etype) {
			skipped++
			continue
		}
		if err := merge(&out, etype, entry.Resource); err != nil {
			return fhirFailure(err)
		}
		merged++
		a.Logger.Debug().Int("entry", i).Str("resource_type", etype).Msg("merged bundle entry")
	}
	if skipped > 0 {
		a.Logger.Warn().Int("skipped", skipped).Int("merged", merged).Msg("bundle contains unsupported entries")
	}
	if merged == 0 {
		return unsupportedResource(fhir.TypeBundle)
	}
	return out
}

func supported(rtype string) bool {
	switch rtype {
	case fhir.TypePatient, fhir.TypeCondition, fhir.TypeProcedure:
		return true
	}
	return false
}

// merge decodes one supported resource into out. Later resources overwrite
// earlier demographics only where they carry a value.
func merge(out *clinical.RawExtraction, rtype string, data []byte) error {
	switch rtype {
	case fhir.TypePatient:
		p, err := fhir.Decode[fhir.Patient](data, rtype)
		if err != nil {
			return err
		}
		var given, family string
		if len(p.Name) > 0 {
			family = p.Name[0].Family
			if len(p.Name[0].Given) > 0 {
				given = p.Name[0].Given[0]
			}
		}
		mergeDemographics(&out.Patient, clinical.PatientDemographics{
			ID:          p.ID,
			FirstName:   given,
			LastName:    family,
			DateOfBirth: p.BirthDate,
			Gender:      p.Gender,
		})

	case fhir.TypeCondition:
		c, err := fhir.Decode[fhir.Condition](data, rtype)
		if err != nil {
			return err
		}
		mergeDemographics(&out.Patient, clinical.PatientDemographics{ID: c.Subject.ID()})
		out.DiagnosesRaw = append(out.DiagnosesRaw, clinical.RawDiagnosis{
			ICDCode:     clinical.OptionalStr(c.Code.FirstCode()),
			Description: conceptText(c.Code),
			Date:        c.OnsetDateTime,
		})

	case fhir.TypeProcedure:
		p, err := fhir.Decode[fhir.Procedure](data, rtype)
		if err != nil {
			return err
		}
		mergeDemographics(&out.Patient, clinical.PatientDemographics{ID: p.Subject.ID()})
		out.ProceduresRaw = append(out.ProceduresRaw, clinical.RawProcedure{
			CPTCode:     clinical.OptionalStr(p.Code.FirstCode()),
			Description: conceptText(p.Code),
			Date:        p.PerformedDateTime,
		})
	}
	return nil
}

func conceptText(c *fhir.CodeableConcept) string {
	if c == nil {
		return ""
	}
	return c.Text
}

// mergeDemographics fills dst with the non-empty fields of src, so later
// bundle entries refine earlier ones.
func mergeDemographics(dst *clinical.PatientDemographics, src clinical.PatientDemographics) {
	if src.IsZero() {
		return
	}
	if src.ID != "" {
		dst.ID = src.ID
	}
	if src.FirstName != "" {
		dst.FirstName = src.FirstName
	}
	if src.LastName != "" {
		dst.LastName = src.LastName
	}
	if src.DateOfBirth != "" {
		dst.DateOfBirth = src.DateOfBirth
	}
	if src.Gender != "" {
		dst.Gender = src.Gender
	}
}

func unsupportedResource(rtype string) clinical.RawExtraction {
	return clinical.FailedExtraction(clinical.DocumentFHIR, clinical.KindUnsupportedResourceType,
		"Unsupported FHIR resource type: "+rtype)
}

func fhirFailure(err error) clinical.RawExtraction {
	return clinical.FailedExtraction(clinical.DocumentFHIR, clinical.KindParseFailure,
		"Failed to extract data from FHIR file: "+err.Error())
}
