package hl7v2

// Patient holds the PID fields the intake pipeline reads.
type Patient struct {
	ID          string // PID-3.1
	FamilyName  string // PID-5.1
	GivenName   string // PID-5.2
	DateOfBirth string // PID-7
	Sex         string // PID-8
}

// CodedEntry is a DG1 or PR1 segment reduced to code, description and date.
type CodedEntry struct {
	Code        string
	CodeText    string // component 2 of the coded element
	Description string
	Date        string
}

// Patient returns PID demographics and whether a PID segment was present.
func (m *Message) Patient() (Patient, bool) {
	pid := m.Segment("PID")
	if pid == nil {
		return Patient{}, false
	}
	return Patient{
		ID:          pid.Component(3, 1),
		FamilyName:  pid.Component(5, 1),
		GivenName:   pid.Component(5, 2),
		DateOfBirth: pid.Field(7),
		Sex:         pid.Field(8),
	}, true
}

// Diagnoses returns every DG1 segment in message order.
// DG1-3 is the diagnosis code, DG1-4 the description, DG1-5 the date.
func (m *Message) Diagnoses() []CodedEntry {
	return m.codedEntries("DG1")
}

// Procedures returns every PR1 segment in message order.
// PR1-3 is the procedure code, PR1-4 the description, PR1-5 the date.
func (m *Message) Procedures() []CodedEntry {
	return m.codedEntries("PR1")
}

func (m *Message) codedEntries(name string) []CodedEntry {
	segs := m.SegmentsNamed(name)
	if len(segs) == 0 {
		return nil
	}
	out := make([]CodedEntry, 0, len(segs))
	for i := range segs {
		s := &segs[i]
		out = append(out, CodedEntry{
			Code:        s.Component(3, 1),
			CodeText:    s.Component(3, 2),
			Description: s.Field(4),
			Date:        s.Field(5),
		})
	}
	return out
}
