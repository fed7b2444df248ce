// Package terminology expands clinical abbreviations and assigns ICD-10 and
// CPT codes to candidate descriptions through ordered substring tables.
package terminology

import (
	"regexp"
	"strings"
)

// Abbreviation pairs a short form with its expansion.
type Abbreviation struct {
	Short     string
	Expansion string
}

// Abbreviations is applied in declaration order, each pass seeing the output
// of the previous one. Reordering it changes results.
var Abbreviations = []Abbreviation{
	{"HTN", "Hypertension"},
	{"DM", "Diabetes Mellitus"},
	{"COPD", "Chronic Obstructive Pulmonary Disease"},
	{"CHF", "Congestive Heart Failure"},
	{"CAD", "Coronary Artery Disease"},
	{"MI", "Myocardial Infarction"},
	{"CVA", "Cerebrovascular Accident"},
	{"UTI", "Urinary Tract Infection"},
	{"URI", "Upper Respiratory Infection"},
	{"LBP", "Low Back Pain"},
	{"Hx", "History"},
	{"Dx", "Diagnosis"},
	{"Tx", "Treatment"},
	{"Fx", "Fracture"},
	{"Sx", "Symptoms"},
	{"Pt", "Patient"},
	{"yo", "year old"},
	{"y/o", "year old"},
	{"b/l", "bilateral"},
	{"w/", "with"},
	{"w/o", "without"},
	{"s/p", "status post"},
	{"c/o", "complains of"},
	{"h/o", "history of"},
}

// diseaseTerms is the first ten abbreviations, used for whole-term lookup.
var diseaseTerms = func() map[string]string {
	m := make(map[string]string, 10)
	for _, a := range Abbreviations[:10] {
		m[a.Short] = a.Expansion
	}
	return m
}()

type compiledAbbreviation struct {
	re        *regexp.Regexp
	expansion string
}

var abbreviationPatterns = func() []compiledAbbreviation {
	out := make([]compiledAbbreviation, len(Abbreviations))
	for i, a := range Abbreviations {
		out[i] = compiledAbbreviation{
			re:        regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(a.Short) + `\b`),
			expansion: a.Expansion,
		}
	}
	return out
}()

// NormalizeText replaces every case-insensitive whole-word occurrence of each
// abbreviation with its expansion.
func NormalizeText(text string) string {
	for _, p := range abbreviationPatterns {
		text = p.re.ReplaceAllLiteralString(text, p.expansion)
	}
	return text
}

// TermNormalization is the result of normalizing one discrete term.
type TermNormalization struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
}

// NormalizeTerms maps each term that is, as a whole, one of the disease
// abbreviations (in any case) to its expansion. Other terms are unchanged.
func NormalizeTerms(terms []string) []TermNormalization {
	out := make([]TermNormalization, 0, len(terms))
	for _, term := range terms {
		normalized := term
		if exp, ok := diseaseTerms[strings.ToUpper(term)]; ok {
			normalized = exp
		}
		out = append(out, TermNormalization{Original: term, Normalized: normalized})
	}
	return out
}
