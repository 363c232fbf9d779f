package parser

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

	"github.com/selmo/docstill/internal/doctree"
)

// PDFLayoutAdapter reads a PDF through pdfcpu: page count, an image
// object census per page, and text pulled from the raw content
// streams. Its image counts drive scan detection even when the text
// layer adapter wins on quality.
type PDFLayoutAdapter struct{}

func (p *PDFLayoutAdapter) ID() string { return "pdflayout" }

func (p *PDFLayoutAdapter) Parse(src Source) (*Result, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(src.Data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	b := &builder{}
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		if pageText := extractPageText(ctx, pageNr); pageText != "" {
			b.para(pageText)
		}
	}

	return b.result(doctree.Hints{
		Title:  TitleFromFilename(src.Name),
		Pages:  ctx.PageCount,
		Images: countImageObjects(ctx),
	}), nil
}

// countImageObjects counts image XObjects across the file, preferring
// per-page reference data when optimization populated it.
func countImageObjects(ctx *model.Context) int {
	if ctx.Optimize != nil {
		total := 0
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			total += len(pdfcpu.ImageObjNrs(ctx, pageNr))
		}
		return total
	}
	// Fallback: census of image stream dicts in the xref table.
	total := 0
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				total++
			}
		}
	}
	return total
}

// extractPageText extracts text from a single page's content stream.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses.
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream scans content stream operators for shown text:
// Tj, TJ, and the ' next-line form, with Td/TD/T* as separators.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		}
	}

	return cleanStreamText(sb.String())
}

// decodePDFString handles basic PDF escape sequences, including octal.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
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
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}

// cleanStreamText collapses whitespace runs in stream-derived text.
func cleanStreamText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
