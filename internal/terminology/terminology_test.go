package terminology

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ehr/intake/internal/domain/clinical"
)

// =========== Normalizer ===========

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Pt c/o chest pain. Dx: Acute coronary syndrome", "Patient complains of chest pain. Diagnosis: Acute coronary syndrome"},
		{"h/o HTN and dm", "history of Hypertension and Diabetes Mellitus"},
		{"65 yo male s/p MI", "65 year old male status post Myocardial Infarction"},
		{"b/l LBP", "bilateral Low Back Pain"},
		{"HTNX is not an abbreviation", "HTNX is not an abbreviation"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeText_DeclaredOrder(t *testing.T) {
	// "w/" is declared before "w/o" and consumes its prefix.
	if got := NormalizeText("w/o fever"); got != "witho fever" {
		t.Errorf("NormalizeText() = %q", got)
	}
	// "yo" does not match inside "y/o".
	if got := NormalizeText("45 y/o"); got != "45 year old" {
		t.Errorf("NormalizeText() = %q", got)
	}
}

func TestNormalizeTerms(t *testing.T) {
	got := NormalizeTerms([]string{"htn", "CHF", "Hx", "chest pain", "LBP "})
	want := []TermNormalization{
		{"htn", "Hypertension"},
		{"CHF", "Congestive Heart Failure"},
		{"Hx", "Hx"},
		{"chest pain", "chest pain"},
		{"LBP ", "LBP "},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeTerms()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// =========== Standardizer ===========

func TestStandardize_OfficeVisit(t *testing.T) {
	entry := []clinical.CandidateEntry{{Description: "Office visit with hypertension follow up"}}

	px := NewStandardizer(CPTTable()).Standardize(entry)
	if px[0].CodeValue() != "99213" {
		t.Errorf("expected CPT 99213, got %q", px[0].CodeValue())
	}
	dx := NewStandardizer(ICD10Table()).Standardize(entry)
	if dx[0].CodeValue() != "I10" {
		t.Errorf("expected ICD-10 I10, got %q", dx[0].CodeValue())
	}
	if entry[0].Code != nil {
		t.Error("input entry was modified")
	}
}

func TestStandardize_SingleTermMatchesItsCode(t *testing.T) {
	for _, table := range []*MappingTable{ICD10Table(), CPTTable()} {
		s := NewStandardizer(table)
		for _, e := range table.Entries() {
			got := s.Standardize([]clinical.CandidateEntry{{Description: "noted " + e.Term + " today"}})
			// A term may contain an earlier term ("diabetes mellitus" contains
			// "diabetes"); the earlier one wins and both share a code here.
			want, _ := table.Lookup(e.Term)
			if got[0].CodeValue() != want {
				t.Errorf("%s: term %q got %q, want %q", table.Name(), e.Term, got[0].CodeValue(), want)
			}
		}
	}
}

func TestStandardize_EarliestTableEntryWins(t *testing.T) {
	tests := []struct {
		table *MappingTable
		desc  string
		want  string
	}{
		// "asthma" precedes "depression" in the table, regardless of position in text.
		{ICD10Table(), "depression and asthma", "J45.909"},
		{ICD10Table(), "asthma and depression", "J45.909"},
		{ICD10Table(), "anxiety with GERD", "F41.9"},
		{CPTTable(), "lipid panel and CBC", "85025"},
		{CPTTable(), "colonoscopy after chest x-ray", "71045"},
	}
	for _, tt := range tests {
		got := NewStandardizer(tt.table).Standardize([]clinical.CandidateEntry{{Description: tt.desc}})
		if got[0].CodeValue() != tt.want {
			t.Errorf("%q: got %q, want %q", tt.desc, got[0].CodeValue(), tt.want)
		}
	}
}

func TestStandardize_KeepsExistingCode(t *testing.T) {
	in := []clinical.CandidateEntry{
		{Description: "Acute coronary syndrome", Code: clinical.StrPtr("I24.9")},
		{Description: "Acute coronary syndrome"},
	}
	got := NewStandardizer(ICD10Table()).Standardize(in)
	if got[0].CodeValue() != "I24.9" {
		t.Errorf("expected existing code kept, got %q", got[0].CodeValue())
	}
	if got[1].Code != nil {
		t.Errorf("expected nil code, got %q", got[1].CodeValue())
	}
}

func TestStandardize_Idempotent(t *testing.T) {
	in := []clinical.CandidateEntry{
		{Description: "Type 2 diabetes"},
		{Description: "Pneumonia, right lower lobe"},
		{Description: "sprained ankle"},
		{Description: "CHF exacerbation", Code: clinical.StrPtr("I50.9")},
	}
	s := NewStandardizer(ICD10Table())
	once := s.Standardize(in)
	twice := s.Standardize(once)
	for i := range once {
		if once[i].Description != twice[i].Description || once[i].CodeValue() != twice[i].CodeValue() {
			t.Errorf("entry %d changed: %+v -> %+v", i, once[i], twice[i])
		}
	}
}

func TestNormalize_Entries(t *testing.T) {
	in := []clinical.CandidateEntry{{Description: "h/o CHF", Code: clinical.StrPtr("I50.9")}}
	got := Normalize(in)
	if got[0].Description != "history of Congestive Heart Failure" || got[0].CodeValue() != "I50.9" {
		t.Errorf("unexpected entry %+v", got[0])
	}
	if in[0].Description != "h/o CHF" {
		t.Error("input entry was modified")
	}
}

// =========== Tables ===========

func TestDefaultTables(t *testing.T) {
	if ICD10Table().Len() != 18 {
		t.Errorf("expected 18 ICD-10 entries, got %d", ICD10Table().Len())
	}
	if CPTTable().Len() != 14 {
		t.Errorf("expected 14 CPT entries, got %d", CPTTable().Len())
	}
	first := ICD10Table().Entries()[0]
	if first.Term != "hypertension" || first.Code != "I10" {
		t.Errorf("unexpected first entry %+v", first)
	}
}

func TestMappingTable_EntriesIsCopy(t *testing.T) {
	entries := CPTTable().Entries()
	entries[0].Code = "00000"
	if code, _ := CPTTable().Lookup("office visit"); code != "99213" {
		t.Errorf("table was mutated through Entries(): %s", code)
	}
}

func TestNewMappingTable_Invalid(t *testing.T) {
	if _, err := NewMappingTable("empty", nil); !errors.Is(err, clinical.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if _, err := NewMappingTable("bad", []MappingEntry{{Term: "x"}}); !errors.Is(err, clinical.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

// =========== Loader ===========

func writeMappings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write mappings: %v", err)
	}
	return path
}

func TestLoadTables_Default(t *testing.T) {
	tables, err := LoadTables("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tables.ICD10 != ICD10Table() || tables.CPT != CPTTable() {
		t.Error("expected built-in tables")
	}
}

func TestLoadTables_Override(t *testing.T) {
	path := writeMappings(t, `
icd10:
  - term: Sprain
    code: S93.409A
  - term: ankle
    code: S99.919A
`)
	tables, err := LoadTables(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tables.ICD10.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", tables.ICD10.Len())
	}
	if code, _ := tables.ICD10.Lookup("Ankle sprain"); code != "S93.409A" {
		t.Errorf("expected first override entry to win, got %q", code)
	}
	if tables.CPT != CPTTable() {
		t.Error("expected CPT table left at default")
	}
}

func TestLoadTables_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty section", writeMappings(t, "cpt: []\n")},
		{"invalid yaml", writeMappings(t, "icd10: [\n")},
		{"missing file", filepath.Join(t.TempDir(), "none.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTables(tt.path)
			if !errors.Is(err, clinical.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
