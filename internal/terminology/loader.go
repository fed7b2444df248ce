package terminology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ehr/intake/internal/domain/clinical"
)

// Tables holds the diagnosis and procedure mapping tables.
type Tables struct {
	ICD10 *MappingTable
	CPT   *MappingTable
}

// DefaultTables returns the built-in tables.
func DefaultTables() Tables {
	return Tables{ICD10: defaultICD10, CPT: defaultCPT}
}

// mappingsFile is the on-disk override format. Sequences keep the table order;
// a section left out keeps the built-in table.
type mappingsFile struct {
	ICD10 *[]MappingEntry `yaml:"icd10"`
	CPT   *[]MappingEntry `yaml:"cpt"`
}

// LoadTables reads mapping overrides from a YAML file. An empty path returns
// the built-in tables. A section that is present but empty is an error.
func LoadTables(path string) (Tables, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, clinical.NewError(clinical.KindConfiguration, "load mappings", err)
	}
	var f mappingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Tables{}, clinical.NewError(clinical.KindConfiguration, "load mappings",
			fmt.Errorf("parse %s: %w", path, err))
	}

	if f.ICD10 != nil {
		if tables.ICD10, err = NewMappingTable("icd10", *f.ICD10); err != nil {
			return Tables{}, err
		}
	}
	if f.CPT != nil {
		if tables.CPT, err = NewMappingTable("cpt", *f.CPT); err != nil {
			return Tables{}, err
		}
	}
	return tables, nil
}
