package clinical

// CanonicalClinicalRecord is the single structured output produced for one
// document.
type CanonicalClinicalRecord struct {
	Patient           RecordPatient     `json:"patient"`
	Visit             Visit             `json:"visit"`
	Diagnoses         []CandidateEntry  `json:"diagnoses"`
	Procedures        []CandidateEntry  `json:"procedures"`
	Medications       []string          `json:"medications"`
	DiagnosticStudies map[string]string `json:"diagnostic_studies"`
	TreatmentPlan     []string          `json:"treatment_plan"`
	Billing           Billing           `json:"billing"`
	Signature         Signature         `json:"signature"`
}

// RecordPatient is the patient block of the canonical record.
type RecordPatient struct {
	Name   string `json:"name"`
	MRN    string `json:"mrn"`
	DOB    string `json:"dob"`
	Gender string `json:"gender"`
}

// Visit describes the encounter the document belongs to.
type Visit struct {
	Date     string   `json:"date"`
	Provider Provider `json:"provider"`
}

// Provider identifies the treating clinician.
type Provider struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	License   string `json:"license"`
}

// Billing aggregates the unique codes of a record in first-seen order.
type Billing struct {
	ICD10Codes []string `json:"icd_10_codes"`
	CPTCodes   []string `json:"cpt_codes"`
}

// Signature records who signed the document and when.
type Signature struct {
	Provider   string `json:"provider"`
	DateSigned string `json:"date_signed"`
}

// EmptyRecord returns the zero-value record with every collection
// initialized, so it serializes with [] and {} instead of null.
func EmptyRecord() CanonicalClinicalRecord {
	return CanonicalClinicalRecord{
		Diagnoses:         []CandidateEntry{},
		Procedures:        []CandidateEntry{},
		Medications:       []string{},
		DiagnosticStudies: map[string]string{},
		TreatmentPlan:     []string{},
		Billing: Billing{
			ICD10Codes: []string{},
			CPTCodes:   []string{},
		},
	}
}
