package terminology

import (
	"fmt"
	"strings"

	"github.com/ehr/intake/internal/domain/clinical"
)

// MappingEntry maps a description fragment to a code.
type MappingEntry struct {
	Term string `yaml:"term" json:"term"`
	Code string `yaml:"code" json:"code"`
}

// MappingTable is an ordered, read-only list of mapping entries. The first
// entry whose term occurs in a description wins, so order is significant.
type MappingTable struct {
	name    string
	entries []MappingEntry
}

// NewMappingTable copies entries into a table. Terms are lower-cased, since
// they are matched against lower-cased descriptions. An empty table, or an
// entry without a term or code, is a configuration error.
func NewMappingTable(name string, entries []MappingEntry) (*MappingTable, error) {
	if len(entries) == 0 {
		return nil, clinical.NewError(clinical.KindConfiguration, "mapping table "+name,
			fmt.Errorf("table is empty"))
	}
	cp := make([]MappingEntry, len(entries))
	for i, e := range entries {
		term := strings.ToLower(strings.TrimSpace(e.Term))
		code := strings.TrimSpace(e.Code)
		if term == "" || code == "" {
			return nil, clinical.NewError(clinical.KindConfiguration, "mapping table "+name,
				fmt.Errorf("entry %d needs both term and code", i))
		}
		cp[i] = MappingEntry{Term: term, Code: code}
	}
	return &MappingTable{name: name, entries: cp}, nil
}

func mustTable(name string, entries []MappingEntry) *MappingTable {
	t, err := NewMappingTable(name, entries)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table's name.
func (t *MappingTable) Name() string { return t.name }

// Len returns the number of entries.
func (t *MappingTable) Len() int { return len(t.entries) }

// Entries returns a copy of the entries in order.
func (t *MappingTable) Entries() []MappingEntry {
	return append([]MappingEntry(nil), t.entries...)
}

// Lookup returns the code of the first entry whose term is a substring of
// the lower-cased description.
func (t *MappingTable) Lookup(description string) (string, bool) {
	lower := strings.ToLower(description)
	for _, e := range t.entries {
		if strings.Contains(lower, e.Term) {
			return e.Code, true
		}
	}
	return "", false
}

var icd10Entries = []MappingEntry{
	{"hypertension", "I10"},
	{"diabetes", "E11.9"},
	{"diabetes mellitus", "E11.9"},
	{"type 2 diabetes", "E11.9"},
	{"asthma", "J45.909"},
	{"pneumonia", "J18.9"},
	{"urinary tract infection", "N39.0"},
	{"uti", "N39.0"},
	{"acute bronchitis", "J20.9"},
	{"bronchitis", "J20.9"},
	{"depression", "F32.9"},
	{"anxiety", "F41.9"},
	{"gerd", "K21.9"},
	{"gastroesophageal reflux disease", "K21.9"},
	{"congestive heart failure", "I50.9"},
	{"chf", "I50.9"},
	{"coronary artery disease", "I25.10"},
	{"cad", "I25.10"},
}

var cptEntries = []MappingEntry{
	{"office visit", "99213"},
	{"chest x-ray", "71045"},
	{"echocardiogram", "93306"},
	{"colonoscopy", "45378"},
	{"upper endoscopy", "43235"},
	{"mri brain", "70553"},
	{"ct scan abdomen", "74177"},
	{"complete blood count", "85025"},
	{"cbc", "85025"},
	{"comprehensive metabolic panel", "80053"},
	{"cmp", "80053"},
	{"lipid panel", "80061"},
	{"flu vaccine", "90688"},
	{"influenza vaccine", "90688"},
}

var (
	defaultICD10 = mustTable("icd10", icd10Entries)
	defaultCPT   = mustTable("cpt", cptEntries)
)

// ICD10Table returns the built-in diagnosis table.
func ICD10Table() *MappingTable { return defaultICD10 }

// CPTTable returns the built-in procedure table.
func CPTTable() *MappingTable { return defaultCPT }
