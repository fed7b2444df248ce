// Package detect classifies a raw document into one of the supported kinds
// from its extension and leading bytes.
package detect

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ehr/intake/internal/domain/clinical"
)

// SniffLen is the number of leading bytes Detect looks at.
const SniffLen = 512

var magics = []struct {
	prefix []byte
	kind   clinical.DocumentType
}{
	{[]byte("%PDF-"), clinical.DocumentPDF},
	{[]byte("\x89PNG\r\n\x1a\n"), clinical.DocumentPDF},
	{[]byte("\xff\xd8\xff"), clinical.DocumentPDF},
	{[]byte("II*\x00"), clinical.DocumentPDF},
	{[]byte("MM\x00*"), clinical.DocumentPDF},
	{[]byte("BM"), clinical.DocumentPDF},
}

var extensions = map[string]clinical.DocumentType{
	".hl7":   clinical.DocumentHL7,
	".hl7v2": clinical.DocumentHL7,
	".json":  clinical.DocumentFHIR,
	".fhir":  clinical.DocumentFHIR,
	".pdf":   clinical.DocumentPDF,
	".png":   clinical.DocumentPDF,
	".jpg":   clinical.DocumentPDF,
	".jpeg":  clinical.DocumentPDF,
	".tif":   clinical.DocumentPDF,
	".tiff":  clinical.DocumentPDF,
	".bmp":   clinical.DocumentPDF,
	".txt":   clinical.DocumentText,
	".text":  clinical.DocumentText,
	".note":  clinical.DocumentText,
}

// Detect returns the document kind for a file path and its first bytes.
// It has no side effects; callers read the head themselves.
func Detect(path string, head []byte) (clinical.DocumentType, error) {
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	ext := strings.ToLower(filepath.Ext(path))

	for _, m := range magics {
		if !bytes.HasPrefix(head, m.prefix) {
			continue
		}
		// "BM" is too short to trust without a matching extension.
		if m.prefix[0] == 'B' && ext != ".bmp" {
			continue
		}
		return m.kind, nil
	}

	trimmed := bytes.TrimLeft(head, " \t\r\n\ufeff")
	isHL7 := bytes.HasPrefix(trimmed, []byte("MSH|"))

	if kind, ok := extensions[ext]; ok {
		if kind == clinical.DocumentText && isHL7 {
			return clinical.DocumentHL7, nil
		}
		return kind, nil
	}

	if ext == "" {
		switch {
		case isHL7:
			return clinical.DocumentHL7, nil
		case bytes.HasPrefix(trimmed, []byte("{")) && bytes.Contains(head, []byte(`"resourceType"`)):
			return clinical.DocumentFHIR, nil
		case looksLikeText(head):
			return clinical.DocumentText, nil
		}
	}

	return "", clinical.NewError(clinical.KindUnsupportedFormat, "detect",
		fmt.Errorf("cannot classify %q (extension %q)", filepath.Base(path), ext))
}

// looksLikeText reports whether head is UTF-8 without NUL bytes. A multi-byte
// rune cut at the sniff boundary is tolerated.
func looksLikeText(head []byte) bool {
	if len(head) == 0 || bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for i := 0; i < len(head); {
		r, size := utf8.DecodeRune(head[i:])
		if r == utf8.RuneError && size == 1 {
			return len(head)-i < utf8.UTFMax && !utf8.FullRune(head[i:])
		}
		i += size
	}
	return true
}
