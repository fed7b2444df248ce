// Package pdftext reads the text layer of PDF documents with pdfcpu and
// reports whether a document needs OCR instead.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// minCharsPerPage is the text density below which an image-bearing PDF is
// treated as a scan.
const minCharsPerPage = 50

// Result is the text layer of a PDF.
type Result struct {
	Text      string
	PageCount int
	HasImages bool
}

// NeedsOCR reports whether the text layer is too thin to be the document's
// real content.
func (r Result) NeedsOCR() bool {
	if strings.TrimSpace(r.Text) == "" {
		return true
	}
	if r.PageCount == 0 {
		return false
	}
	perPage := len([]rune(r.Text)) / r.PageCount
	return r.HasImages && perPage < minCharsPerPage
}

// readContext parses and validates a PDF. pdfcpu panics on some malformed
// cross-reference tables.
var readContext = api.ReadValidateAndOptimize

// Extract reads every page's content stream and returns the text found in
// its show-text operators, one page per line block. A panic inside pdfcpu is
// returned as a read error.
func Extract(data []byte) (res Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			res, err = Result{}, fmt.Errorf("pdftext: read: panic: %v", v)
		}
	}()

	conf := model.NewDefaultConfiguration()
	ctx, err := readContext(bytes.NewReader(data), conf)
	if err != nil {
		return Result{}, fmt.Errorf("pdftext: read: %w", err)
	}

	res = Result{PageCount: ctx.PageCount, HasImages: hasImages(ctx)}
	var pages []string
	for nr := 1; nr <= ctx.PageCount; nr++ {
		if text := pageText(ctx, nr); text != "" {
			pages = append(pages, text)
		}
	}
	res.Text = strings.Join(pages, "\n\n")
	return res, nil
}

func pageText(ctx *model.Context, nr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, nr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return textFromStream(data)
}

func hasImages(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for nr := 1; nr <= ctx.PageCount; nr++ {
			if len(pdfcpu.ImageObjNrs(ctx, nr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if st, found := sd.Find("Subtype"); found {
			if name, ok := st.(types.Name); ok && name == "Image" {
				return true
			}
		}
	}
	return false
}

var literalRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromStream walks content-stream lines and keeps the literals of Tj, TJ
// and ' operators. Line-moving operators (T*, Td, TD, ') become newlines so
// the section patterns downstream still see line structure.
func textFromStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case len(line) == 0:
			continue
		case bytes.Equal(line, []byte("T*")):
			newline()
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			newline()
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			newline()
			writeLiterals(&sb, line)
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			writeLiterals(&sb, line)
		}
	}
	return cleanText(sb.String())
}

func writeLiterals(sb *strings.Builder, line []byte) {
	for _, m := range literalRe.FindAllSubmatch(line, -1) {
		sb.WriteString(decodeLiteral(m[1]))
	}
}

// decodeLiteral resolves PDF string escapes (\n \r \t \\ \( \) and octal).
func decodeLiteral(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := 0
			for n := 0; n < 3 && i < len(raw) && raw[i] >= '0' && raw[i] <= '7'; n++ {
				val = val*8 + int(raw[i]-'0')
				i++
			}
			i--
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// cleanText collapses runs of horizontal whitespace, drops non-printable
// runes and keeps line breaks.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		var sb strings.Builder
		space := false
		for _, r := range line {
			switch {
			case unicode.IsSpace(r):
				space = sb.Len() > 0
			case unicode.IsPrint(r):
				if space {
					sb.WriteByte(' ')
					space = false
				}
				sb.WriteRune(r)
			}
		}
		out = append(out, sb.String())
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
