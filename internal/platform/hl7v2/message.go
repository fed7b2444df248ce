package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Message represents a parsed HL7v2 message.
type Message struct {
	Type      string    // MSH-9 message type (e.g. "ADT^A08")
	ControlID string    // MSH-10
	Version   string    // MSH-12
	Timestamp time.Time // MSH-7
	Segments  []Segment

	enc Encoding
}

// Encoding holds the delimiters declared in MSH-1 and MSH-2.
type Encoding struct {
	Field      byte
	Component  byte
	Repetition byte
	Escape     byte
	Subcomp    byte
}

// DefaultEncoding is the encoding used when MSH-2 is missing or short.
var DefaultEncoding = Encoding{Field: '|', Component: '^', Repetition: '~', Escape: '\\', Subcomp: '&'}

// Segment is a single HL7v2 segment.
type Segment struct {
	Name   string
	Fields []Field
}

// Field holds the raw value of a field plus its repetitions split into
// components.
type Field struct {
	Value   string
	Repeats [][]string
}

// Parse parses raw HL7v2 bytes into a Message. Segments may be separated by
// \r, \n or \r\n.
func Parse(raw []byte) (*Message, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("hl7v2: message is empty")
	}

	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	header := lines[0]
	if !strings.HasPrefix(header, "MSH") || len(header) < 8 {
		return nil, fmt.Errorf("hl7v2: first segment must be a MSH header, got %q", header[:min(3, len(header))])
	}

	msg := &Message{enc: parseEncoding(header)}
	for i, line := range lines {
		seg, err := msg.parseSegment(line)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: segment %d: %w", i+1, err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	msh := &msg.Segments[0]
	msg.Type = msh.Field(9)
	msg.ControlID = msh.Field(10)
	msg.Version = msh.Field(12)
	if ts, err := ParseTimestamp(msh.Field(7)); err == nil {
		msg.Timestamp = ts
	}

	return msg, nil
}

func parseEncoding(header string) Encoding {
	enc := DefaultEncoding
	enc.Field = header[3]
	chars := header[4:]
	if i := strings.IndexByte(chars, enc.Field); i >= 0 {
		chars = chars[:i]
	}
	targets := []*byte{&enc.Component, &enc.Repetition, &enc.Escape, &enc.Subcomp}
	for i := 0; i < len(chars) && i < len(targets); i++ {
		*targets[i] = chars[i]
	}
	return enc
}

func (m *Message) parseSegment(line string) (Segment, error) {
	if len(line) < 3 {
		return Segment{}, fmt.Errorf("segment too short: %q", line)
	}
	name := line[:3]
	for _, r := range name {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return Segment{}, fmt.Errorf("invalid segment name %q", name)
		}
	}
	if len(line) > 3 && line[3] != m.enc.Field {
		return Segment{}, fmt.Errorf("segment %s: expected field separator after name", name)
	}

	seg := Segment{Name: name}
	if name == "MSH" {
		// MSH-1 is the field separator itself and MSH-2 is taken verbatim.
		seg.Fields = append(seg.Fields, Field{Value: string(m.enc.Field)})
		parts := strings.Split(line[4:], string(m.enc.Field))
		seg.Fields = append(seg.Fields, Field{Value: parts[0]})
		for _, p := range parts[1:] {
			seg.Fields = append(seg.Fields, m.parseField(p))
		}
		return seg, nil
	}

	if len(line) > 4 {
		for _, p := range strings.Split(line[4:], string(m.enc.Field)) {
			seg.Fields = append(seg.Fields, m.parseField(p))
		}
	}
	return seg, nil
}

func (m *Message) parseField(raw string) Field {
	f := Field{Value: m.unescape(raw)}
	for _, rep := range strings.Split(raw, string(m.enc.Repetition)) {
		comps := strings.Split(rep, string(m.enc.Component))
		for i := range comps {
			comps[i] = m.unescape(comps[i])
		}
		f.Repeats = append(f.Repeats, comps)
	}
	return f
}

// unescape resolves the standard delimiter escapes (\F\ \S\ \T\ \R\ \E\).
func (m *Message) unescape(s string) string {
	esc := m.enc.Escape
	if strings.IndexByte(s, esc) < 0 {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == esc && i+2 < len(s) && s[i+2] == esc {
			switch s[i+1] {
			case 'F':
				sb.WriteByte(m.enc.Field)
			case 'S':
				sb.WriteByte(m.enc.Component)
			case 'T':
				sb.WriteByte(m.enc.Subcomp)
			case 'R':
				sb.WriteByte(m.enc.Repetition)
			case 'E':
				sb.WriteByte(esc)
			default:
				sb.WriteString(s[i : i+3])
			}
			i += 2
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// ParseTimestamp parses an HL7v2 DTM value (YYYYMMDD[HHMM[SS]]).
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp format: %q", s)
	}
}

// Segment returns the first segment with the given name, or nil.
func (m *Message) Segment(name string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			return &m.Segments[i]
		}
	}
	return nil
}

// SegmentsNamed returns every segment with the given name in message order.
func (m *Message) SegmentsNamed(name string) []Segment {
	var out []Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			out = append(out, seg)
		}
	}
	return out
}

// Field returns the value of the 1-based field index. For MSH, index 1 is
// the field separator, matching HL7 numbering.
func (s *Segment) Field(index int) string {
	if index < 1 || index > len(s.Fields) {
		return ""
	}
	return s.Fields[index-1].Value
}

// Component returns a 1-based component of the first repetition of a field.
func (s *Segment) Component(fieldIdx, compIdx int) string {
	if fieldIdx < 1 || fieldIdx > len(s.Fields) {
		return ""
	}
	reps := s.Fields[fieldIdx-1].Repeats
	if len(reps) == 0 {
		if compIdx == 1 {
			return s.Fields[fieldIdx-1].Value
		}
		return ""
	}
	if compIdx < 1 || compIdx > len(reps[0]) {
		return ""
	}
	return reps[0][compIdx-1]
}
