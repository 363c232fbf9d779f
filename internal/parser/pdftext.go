package parser

import (
	"bytes"
	"fmt"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/selmo/docstill/internal/doctree"
)

// PDFTextAdapter extracts the embedded text layer of a PDF. Fast and
// faithful when a text layer exists; yields near-empty output for
// scanned documents, which is exactly what scan detection keys on.
type PDFTextAdapter struct{}

func (p *PDFTextAdapter) ID() string { return "pdftext" }

func (p *PDFTextAdapter) Parse(src Source) (*Result, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	b := &builder{}
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.para(normalizeNewlines(text))
	}

	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	return b.result(doctree.Hints{
		Title: TitleFromFilename(src.Name),
		Pages: numPages,
	}), nil
}
