package parser

import (
	"strings"

	"github.com/selmo/docstill/internal/doctree"
)

// TextAdapter handles plain text. It recovers no headings; blank lines
// delimit paragraphs. Also the lowest-priority fallback for formats
// whose richer adapters fail.
type TextAdapter struct{}

func (p *TextAdapter) ID() string { return "text" }

func (p *TextAdapter) Parse(src Source) (*Result, error) {
	b := &builder{}
	var para []string

	flush := func() {
		if len(para) > 0 {
			b.para(strings.Join(para, "\n"))
			para = para[:0]
		}
	}

	for _, line := range strings.Split(normalizeNewlines(string(src.Data)), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()

	return b.result(doctree.Hints{Title: TitleFromFilename(src.Name)}), nil
}
