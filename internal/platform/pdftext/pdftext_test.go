package pdftext

import (
	"io"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func TestTextFromStream(t *testing.T) {
	stream := strings.Join([]string{
		"BT",
		"/F1 12 Tf",
		"72 720 Td",
		"(Assessment:) Tj",
		"0 -14 Td",
		"[(Hyper) -20 (tension)] TJ",
		"T*",
		"(Plan: follow up) Tj",
		"(in 3 weeks) '",
		"ET",
	}, "\n")

	got := textFromStream([]byte(stream))
	want := "Assessment:\nHypertension\nPlan: follow up\nin 3 weeks"
	if got != want {
		t.Errorf("textFromStream() =\n%q\nwant\n%q", got, want)
	}
}

func TestDecodeLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\(b\)`, "a(b)"},
		{`tab\tsep`, "tab\tsep"},
		{`oct\101\102`, "octAB"},
		{`sp\040ace`, "sp ace"},
		{`back\\slash`, `back\slash`},
		{`trailing\`, `trailing\`},
	}
	for _, tt := range tests {
		if got := decodeLiteral([]byte(tt.in)); got != tt.want {
			t.Errorf("decodeLiteral(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	got := cleanText("  Dx:   chest\tpain \n\n  Plan:\x01 rest  ")
	want := "Dx: chest pain\n\nPlan: rest"
	if got != want {
		t.Errorf("cleanText() = %q, want %q", got, want)
	}
}

func TestResult_NeedsOCR(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want bool
	}{
		{"empty text", Result{PageCount: 1}, true},
		{"dense text", Result{Text: strings.Repeat("word ", 40), PageCount: 1, HasImages: true}, false},
		{"thin text with images", Result{Text: "Page 1", PageCount: 1, HasImages: true}, true},
		{"thin text without images", Result{Text: "Page 1", PageCount: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.NeedsOCR(); got != tt.want {
				t.Errorf("NeedsOCR() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract_InvalidPDF(t *testing.T) {
	if _, err := Extract([]byte("this is not a pdf")); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestExtract_RecoversReaderPanic(t *testing.T) {
	orig := readContext
	readContext = func(io.ReadSeeker, *model.Configuration) (*model.Context, error) {
		panic("runtime error: invalid memory address or nil pointer dereference")
	}
	defer func() { readContext = orig }()

	res, err := Extract([]byte("%PDF-1.4\n%broken xref"))
	if err == nil {
		t.Fatal("expected error from panicking reader")
	}
	if !strings.HasPrefix(err.Error(), "pdftext: read: panic: ") {
		t.Errorf("unexpected error %q", err)
	}
	if res.PageCount != 0 || res.Text != "" {
		t.Errorf("expected zero result, got %+v", res)
	}
}
