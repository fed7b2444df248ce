package terminology

import "github.com/ehr/intake/internal/domain/clinical"

// Standardizer assigns codes from one mapping table.
type Standardizer struct {
	table *MappingTable
}

// NewStandardizer creates a standardizer over table.
func NewStandardizer(table *MappingTable) *Standardizer {
	return &Standardizer{table: table}
}

// Table returns the standardizer's mapping table.
func (s *Standardizer) Table() *MappingTable { return s.table }

// Standardize returns a copy of entries with codes assigned. An entry whose
// description matches no term keeps the code it already had.
func (s *Standardizer) Standardize(entries []clinical.CandidateEntry) []clinical.CandidateEntry {
	out := make([]clinical.CandidateEntry, len(entries))
	for i, e := range entries {
		out[i] = clinical.CandidateEntry{Description: e.Description, Code: e.Code}
		if code, ok := s.table.Lookup(e.Description); ok {
			out[i].Code = clinical.StrPtr(code)
		}
	}
	return out
}

// Normalize returns a copy of entries with abbreviations in each description
// expanded. Codes are kept.
func Normalize(entries []clinical.CandidateEntry) []clinical.CandidateEntry {
	out := make([]clinical.CandidateEntry, len(entries))
	for i, e := range entries {
		out[i] = clinical.CandidateEntry{Description: NormalizeText(e.Description), Code: e.Code}
	}
	return out
}
