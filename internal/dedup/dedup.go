// Package dedup removes exact duplicates from entry lists, keeping the first
// occurrence of each entry and the relative order of the rest.
package dedup

import "github.com/ehr/intake/internal/domain/clinical"

// Entries returns a new slice with repeated values removed.
func Entries[T comparable](in []T) []T {
	return By(in, func(v T) T { return v })
}

// By removes entries whose key was already seen. Use it for types that hold
// pointers, where == compares addresses rather than values.
func By[T any, K comparable](in []T, key func(T) K) []T {
	out := make([]T, 0, len(in))
	seen := make(map[K]struct{}, len(in))
	for _, v := range in {
		k := key(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

type candidateKey struct {
	description string
	code        string
	coded       bool
}

func keyOf(e clinical.CandidateEntry) candidateKey {
	if e.Code == nil {
		return candidateKey{description: e.Description}
	}
	return candidateKey{description: e.Description, code: *e.Code, coded: true}
}

// Candidates deduplicates by description and code value. Entries that differ
// only in case, or coded and uncoded copies of the same description, are
// kept.
func Candidates(in []clinical.CandidateEntry) []clinical.CandidateEntry {
	return By(in, keyOf)
}

// Record returns a copy of rec with duplicates removed from diagnoses,
// procedures, medications and treatment plan.
func Record(rec clinical.CanonicalClinicalRecord) clinical.CanonicalClinicalRecord {
	rec.Diagnoses = Candidates(rec.Diagnoses)
	rec.Procedures = Candidates(rec.Procedures)
	rec.Medications = Entries(rec.Medications)
	rec.TreatmentPlan = Entries(rec.TreatmentPlan)
	return rec
}
