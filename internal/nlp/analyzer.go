// Package nlp segments clinical free text into sections, collects entity
// spans from the NER model and pulls diagnosis and procedure candidates out
// of labeled lines.
package nlp

import (
	"context"
	"regexp"
	"strings"

	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/platform/ner"
	"github.com/ehr/intake/internal/terminology"
)

// Analysis is the output of the text analyzer. Terms holds one entry per
// entity span, in span order.
type Analysis struct {
	Entities []clinical.EntitySpan           `json:"entities"`
	Sections clinical.Sections               `json:"sections"`
	Terms    []terminology.TermNormalization `json:"normalized_terms"`
}

type sectionPattern struct {
	name clinical.SectionName
	re   *regexp.Regexp
}

// sectionPatterns capture the block after a header: lazily, up to a blank
// line, a line starting with a capital letter, or the end of the text. Only
// the header itself is case-insensitive. Header text is the section name with
// spaces for underscores.
var sectionPatterns = func() []sectionPattern {
	out := make([]sectionPattern, len(clinical.SectionNames))
	for i, name := range clinical.SectionNames {
		out[i] = sectionPattern{name, sectionRegexp(strings.ReplaceAll(string(name), "_", " "))}
	}
	return out
}()

func sectionRegexp(header string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)(?i:` + regexp.QuoteMeta(header) + `):?(.*?)(?:\n\s*\n|\n\s*[A-Z]|\z)`)
}

// Analyzer runs section segmentation and entity recognition over a text.
type Analyzer struct {
	model ner.TextToSpans
}

// NewAnalyzer creates an analyzer backed by the given entity model. A nil
// model yields no entities.
func NewAnalyzer(model ner.TextToSpans) *Analyzer {
	if model == nil {
		model = ner.Nop
	}
	return &Analyzer{model: model}
}

// Analyze calls the entity model once over the full text and captures the
// fixed sections. A model failure is returned as an ExternalModelFailure
// alongside an analysis that still carries the sections.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	out := Analysis{
		Entities: []clinical.EntitySpan{},
		Sections: ExtractSections(text),
		Terms:    []terminology.TermNormalization{},
	}
	spans, err := a.model.Spans(ctx, text)
	if err != nil {
		return out, clinical.NewError(clinical.KindExternalModelFailure, "ner", err)
	}
	if spans != nil {
		out.Entities = spans
	}
	terms := make([]string, len(out.Entities))
	for i, span := range out.Entities {
		terms[i] = span.Text
	}
	out.Terms = terminology.NormalizeTerms(terms)
	return out, nil
}

// ExtractSections returns the first block found for each section header.
// Headers that do not occur are absent from the result.
func ExtractSections(text string) clinical.Sections {
	sections := clinical.Sections{}
	for _, p := range sectionPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		sections[p.name] = strings.TrimSpace(m[1])
	}
	return sections
}
