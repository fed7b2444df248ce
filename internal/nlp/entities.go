package nlp

import (
	"regexp"
	"strings"

	"github.com/ehr/intake/internal/domain/clinical"
)

// labelPattern matches a label and captures the rest of its line. Whitespace
// after the label may run onto the next line.
func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `:?\s*(.*)`)
}

var (
	diagnosisPatterns = []*regexp.Regexp{
		labelPattern("diagnosis"),
		labelPattern("assessment"),
		labelPattern("impression"),
		labelPattern("dx"),
	}
	procedurePatterns = []*regexp.Regexp{
		labelPattern("procedure"),
		labelPattern("operation"),
		labelPattern("performed"),
	}
)

// Entities holds the uncoded candidates found in a text.
type Entities struct {
	Diagnoses  []clinical.CandidateEntry `json:"diagnoses"`
	Procedures []clinical.CandidateEntry `json:"procedures"`
}

// ExtractEntities finds every labeled diagnosis and procedure line. Results
// are ordered by pattern, then by position; the same phrase found by two
// patterns appears twice.
func ExtractEntities(text string) Entities {
	return Entities{
		Diagnoses:  findAll(diagnosisPatterns, text),
		Procedures: findAll(procedurePatterns, text),
	}
}

func findAll(patterns []*regexp.Regexp, text string) []clinical.CandidateEntry {
	out := []clinical.CandidateEntry{}
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, clinical.CandidateEntry{Description: strings.TrimSpace(m[1])})
		}
	}
	return out
}
