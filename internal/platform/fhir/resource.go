// Package fhir decodes the subset of FHIR R4 resources the intake pipeline
// reads: Patient, Condition, Procedure and Bundles containing them.
package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Resource type discriminators.
const (
	TypePatient   = "Patient"
	TypeCondition = "Condition"
	TypeProcedure = "Procedure"
	TypeBundle    = "Bundle"
)

// HumanName is a FHIR HumanName.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Coding is a FHIR Coding.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a FHIR CodeableConcept.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// FirstCode returns the code of the first coding, or "".
func (c *CodeableConcept) FirstCode() string {
	if c == nil || len(c.Coding) == 0 {
		return ""
	}
	return c.Coding[0].Code
}

// Reference is a FHIR Reference.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// ID returns the trailing id segment of the reference ("Patient/123" -> "123").
func (r *Reference) ID() string {
	if r == nil || r.Reference == "" {
		return ""
	}
	parts := strings.Split(r.Reference, "/")
	return parts[len(parts)-1]
}

// Patient is a FHIR Patient resource.
type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"`
	Gender       string      `json:"gender,omitempty"`
}

// Condition is a FHIR Condition resource.
type Condition struct {
	ResourceType  string           `json:"resourceType"`
	ID            string           `json:"id,omitempty"`
	Subject       *Reference       `json:"subject,omitempty"`
	Code          *CodeableConcept `json:"code,omitempty"`
	OnsetDateTime string           `json:"onsetDateTime,omitempty"`
}

// Procedure is a FHIR Procedure resource.
type Procedure struct {
	ResourceType      string           `json:"resourceType"`
	ID                string           `json:"id,omitempty"`
	Subject           *Reference       `json:"subject,omitempty"`
	Code              *CodeableConcept `json:"code,omitempty"`
	PerformedDateTime string           `json:"performedDateTime,omitempty"`
}

// Bundle is a FHIR Bundle with raw entry resources.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleEntry holds one undecoded bundle resource.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// ResourceType reads the resourceType discriminator of a JSON document
// without decoding the rest of it.
func ResourceType(data []byte) (string, error) {
	var head struct {
		ResourceType *string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("fhir: decode resource: %w", err)
	}
	if head.ResourceType == nil {
		return "", fmt.Errorf("fhir: resourceType is missing")
	}
	return *head.ResourceType, nil
}

// Decode unmarshals data into a resource of the given type, validating that
// its discriminator matches.
func Decode[T any](data []byte, want string) (*T, error) {
	got, err := ResourceType(data)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("fhir: expected resourceType %q, got %q", want, got)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("fhir: decode %s: %w", want, err)
	}
	return &out, nil
}
