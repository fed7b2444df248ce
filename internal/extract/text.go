package extract

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/ehr/intake/internal/domain/clinical"
)

// TextAdapter returns a plain-text note verbatim.
type TextAdapter struct {
	MaxFileSize int64
}

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Extract implements Adapter.
func (a *TextAdapter) Extract(_ context.Context, path string) clinical.RawExtraction {
	data, err := readFile(path, a.MaxFileSize)
	if err != nil {
		return textFailure(err)
	}
	if !utf8.Valid(data) {
		return textFailure(errInvalidUTF8)
	}
	content := string(data)
	return clinical.RawExtraction{
		DocumentType:  clinical.DocumentText,
		DiagnosesRaw:  []clinical.RawDiagnosis{},
		ProceduresRaw: []clinical.RawProcedure{},
		Content:       &content,
	}
}

func textFailure(err error) clinical.RawExtraction {
	return clinical.FailedExtraction(clinical.DocumentText, clinical.KindParseFailure,
		"Failed to extract data from text file: "+err.Error())
}
