package clinical

// DocumentType is the closed set of document kinds the intake pipeline accepts.
type DocumentType string

const (
	DocumentHL7  DocumentType = "HL7"
	DocumentFHIR DocumentType = "FHIR"
	DocumentPDF  DocumentType = "PDF"
	DocumentText DocumentType = "TEXT"
)

// Valid reports whether t is one of the supported document kinds.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentHL7, DocumentFHIR, DocumentPDF, DocumentText:
		return true
	}
	return false
}

// PatientDemographics holds partial demographics pulled from a source document.
// Any field may be empty.
type PatientDemographics struct {
	ID          string `json:"patient_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
}

// IsZero reports whether no demographic field is populated.
func (p PatientDemographics) IsZero() bool {
	return p == PatientDemographics{}
}

// RawDiagnosis is a diagnosis as it appears in a structured source document.
type RawDiagnosis struct {
	ICDCode     *string `json:"icd_code"`
	Description string  `json:"description"`
	Date        string  `json:"diagnosis_date,omitempty"`
}

// RawProcedure is a procedure as it appears in a structured source document.
type RawProcedure struct {
	CPTCode     *string `json:"cpt_code"`
	Description string  `json:"description"`
	Date        string  `json:"procedure_date,omitempty"`
}

// RawExtraction is the output of an extraction adapter. It is created once per
// document and treated as immutable by every later stage. When Error is set all
// other fields except DocumentType and ErrorKind are left at their zero value.
type RawExtraction struct {
	DocumentType  DocumentType        `json:"document_type"`
	Patient       PatientDemographics `json:"patient"`
	DiagnosesRaw  []RawDiagnosis      `json:"diagnoses"`
	ProceduresRaw []RawProcedure      `json:"procedures"`
	Content       *string             `json:"content,omitempty"`
	Error         *string             `json:"error,omitempty"`
	ErrorKind     ErrorKind           `json:"error_kind,omitempty"`
}

// FailedExtraction returns an extraction carrying only its kind and error.
func FailedExtraction(doc DocumentType, kind ErrorKind, msg string) RawExtraction {
	return RawExtraction{DocumentType: doc, Error: &msg, ErrorKind: kind}
}

// Failed reports whether the adapter captured an error.
func (r RawExtraction) Failed() bool {
	return r.Error != nil
}

// Text returns the free-text content, or "" when the document carried none.
func (r RawExtraction) Text() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// EntitySpan is a labeled span produced by the named-entity model. Start and
// End are character offsets into the analyzed text.
type EntitySpan struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SectionName identifies one of the fixed clinical note sections.
type SectionName string

const (
	SectionHistoryOfPresentIllness SectionName = "history_of_present_illness"
	SectionPastMedicalHistory      SectionName = "past_medical_history"
	SectionMedications             SectionName = "medications"
	SectionAssessment              SectionName = "assessment"
	SectionPlan                    SectionName = "plan"
)

// SectionNames lists the section names in their evaluation order.
var SectionNames = []SectionName{
	SectionHistoryOfPresentIllness,
	SectionPastMedicalHistory,
	SectionMedications,
	SectionAssessment,
	SectionPlan,
}

// Sections maps a section name to the first captured block for that header.
// A name is absent when its header was not found.
type Sections map[SectionName]string

// CandidateEntry is a diagnosis or procedure flowing through extraction,
// normalization and code standardization.
type CandidateEntry struct {
	Description string  `json:"description"`
	Code        *string `json:"code"`
}

// CodeValue returns the code or "" when the entry is uncoded.
func (c CandidateEntry) CodeValue() string {
	if c.Code == nil {
		return ""
	}
	return *c.Code
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}

// OptionalStr returns nil for the empty string and a pointer to s otherwise.
func OptionalStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
