// Package extract turns a document file into a RawExtraction. There is one
// adapter per document kind; adapters never return a Go error and instead
// record the failure in the extraction itself.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/platform/ocr"
)

// DefaultMaxFileSize bounds how much of a document is read.
const DefaultMaxFileSize int64 = 100 << 20

// Adapter extracts raw clinical data from one document kind.
type Adapter interface {
	Extract(ctx context.Context, path string) clinical.RawExtraction
}

// Options configures the adapters.
type Options struct {
	OCR         ocr.ImageToText
	MaxFileSize int64
	Logger      zerolog.Logger
}

// Adapters holds one adapter per document kind.
type Adapters struct {
	hl7   *HL7Adapter
	fhir  *FHIRAdapter
	image *DocumentImageAdapter
	text  *TextAdapter
}

// New builds the adapter set.
func New(opts Options) *Adapters {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.OCR == nil {
		opts.OCR = ocr.Unavailable
	}
	return &Adapters{
		hl7:   &HL7Adapter{MaxFileSize: opts.MaxFileSize},
		fhir:  &FHIRAdapter{MaxFileSize: opts.MaxFileSize, Logger: opts.Logger},
		image: &DocumentImageAdapter{OCR: opts.OCR, MaxFileSize: opts.MaxFileSize, Logger: opts.Logger},
		text:  &TextAdapter{MaxFileSize: opts.MaxFileSize},
	}
}

// For returns the adapter for a detected document kind.
func (a *Adapters) For(kind clinical.DocumentType) (Adapter, error) {
	if !kind.Valid() {
		return nil, clinical.NewError(clinical.KindUnsupportedFormat, "extract",
			fmt.Errorf("no adapter for document type %q", kind))
	}
	switch kind {
	case clinical.DocumentHL7:
		return a.hl7, nil
	case clinical.DocumentFHIR:
		return a.fhir, nil
	case clinical.DocumentPDF:
		return a.image, nil
	}
	return a.text, nil
}

var utf8BOM = []byte("\xef\xbb\xbf")

// readFile reads a whole document, refusing directories and files larger
// than limit. A leading UTF-8 byte order mark is dropped.
func readFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("file size %d exceeds limit of %d bytes", info.Size(), limit)
	}
	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.TrimPrefix(data, utf8BOM), nil
}
