package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/clinical"
	"github.com/ehr/intake/internal/platform/ocr"
	"github.com/ehr/intake/internal/platform/pdftext"
)

// DocumentImageAdapter extracts text from PDFs and scanned images. A PDF with
// a usable text layer is read directly; everything else goes through OCR.
type DocumentImageAdapter struct {
	OCR         ocr.ImageToText
	MaxFileSize int64
	Logger      zerolog.Logger
}

// Extract implements Adapter.
func (a *DocumentImageAdapter) Extract(ctx context.Context, path string) clinical.RawExtraction {
	data, err := readFile(path, a.MaxFileSize)
	if err != nil {
		return pdfFailure(clinical.KindParseFailure, err)
	}

	media := ocr.MediaTypeOf(path, data)
	if media == ocr.MediaPDF {
		res, err := pdftext.Extract(data)
		switch {
		case err != nil:
			a.Logger.Debug().Err(err).Str("file", path).Msg("pdf text layer unreadable, using ocr")
		case res.NeedsOCR():
			a.Logger.Debug().Str("file", path).Int("pages", res.PageCount).Msg("pdf text layer too thin, using ocr")
		default:
			return pdfContent(res.Text)
		}
	}

	img, err := ocr.Normalize(ocr.Image{Data: data, MediaType: media})
	if err != nil {
		return pdfFailure(clinical.KindParseFailure, err)
	}
	text, err := a.OCR.Text(ctx, img)
	if err != nil {
		return pdfFailure(clinical.KindExternalModelFailure, err)
	}
	if strings.TrimSpace(text) == "" {
		return pdfFailure(clinical.KindExternalModelFailure, ocr.ErrEmptyText)
	}
	return pdfContent(text)
}

func pdfContent(text string) clinical.RawExtraction {
	return clinical.RawExtraction{
		DocumentType:  clinical.DocumentPDF,
		DiagnosesRaw:  []clinical.RawDiagnosis{},
		ProceduresRaw: []clinical.RawProcedure{},
		Content:       &text,
	}
}

func pdfFailure(kind clinical.ErrorKind, err error) clinical.RawExtraction {
	return clinical.FailedExtraction(clinical.DocumentPDF, kind,
		"Failed to extract data from PDF file: "+err.Error())
}
