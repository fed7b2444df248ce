package dedup

import (
	"reflect"
	"testing"

	"github.com/ehr/intake/internal/domain/clinical"
)

func TestEntries(t *testing.T) {
	got := Entries([]string{"b", "a", "b", "A", "c", "a"})
	want := []string{"b", "a", "A", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestEntries_Empty(t *testing.T) {
	got := Entries[string](nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestEntries_Idempotent(t *testing.T) {
	inputs := [][]string{
		{},
		{"x"},
		{"x", "x", "x"},
		{"lisinopril", "Lisinopril", "lisinopril", "metformin"},
	}
	for _, in := range inputs {
		once := Entries(in)
		twice := Entries(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("not idempotent for %v: %v then %v", in, once, twice)
		}
	}
}

func TestCandidates(t *testing.T) {
	in := []clinical.CandidateEntry{
		{Description: "Hypertension", Code: clinical.StrPtr("I10")},
		{Description: "Hypertension", Code: clinical.StrPtr("I10")},
		{Description: "hypertension", Code: clinical.StrPtr("I10")},
		{Description: "Hypertension"},
		{Description: "Hypertension"},
		{Description: "Hypertension", Code: clinical.StrPtr("I10.0")},
	}
	got := Candidates(in)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", len(got), got)
	}
	if got[0].CodeValue() != "I10" || got[1].Description != "hypertension" || got[2].Code != nil || got[3].CodeValue() != "I10.0" {
		t.Errorf("unexpected order %+v", got)
	}
	again := Candidates(got)
	if len(again) != len(got) {
		t.Errorf("not idempotent: %d then %d", len(got), len(again))
	}
}

func TestRecord(t *testing.T) {
	rec := clinical.EmptyRecord()
	rec.Diagnoses = []clinical.CandidateEntry{{Description: "Asthma"}, {Description: "Asthma"}}
	rec.Medications = []string{"albuterol", "albuterol"}
	rec.TreatmentPlan = []string{"inhaler", "follow up", "inhaler"}

	got := Record(rec)
	if len(got.Diagnoses) != 1 || len(got.Medications) != 1 || len(got.TreatmentPlan) != 2 {
		t.Errorf("unexpected record %+v", got)
	}
	if len(rec.Diagnoses) != 2 {
		t.Error("input record was modified")
	}
}
