package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/selmo/docstill/internal/doctree"
)

// DocxAdapter handles .docx via go-docx. Paragraphs styled Heading1-6
// become structural hints.
type DocxAdapter struct{}

func (p *DocxAdapter) ID() string { return "docx" }

func (p *DocxAdapter) Parse(src Source) (*Result, error) {
	doc, err := docx.Parse(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	b := &builder{}
	hints := doctree.Hints{Title: TitleFromFilename(src.Name)}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			if _, isTable := item.(*docx.Table); isTable {
				hints.Tables++
			}
			continue
		}

		level := docxStyleLevel(para)
		text := docxParagraphText(para)

		if level > 0 && text != "" {
			if len(b.headings) == 0 && level == 1 {
				hints.Title = text
			}
			b.heading(level, text)
		} else if text != "" {
			b.para(text)
		}
	}

	return b.result(hints), nil
}

func docxStyleLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if strings.HasPrefix(style, "heading") {
		rest := style[len("heading"):]
		if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
			return int(rest[0] - '0')
		}
	}
	return 0
}

// docxParagraphText joins the text runs of a paragraph in order.
func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		if run, ok := child.(*docx.Run); ok {
			writeRunText(&buf, run)
		}
	}
	return strings.TrimSpace(buf.String())
}

func writeRunText(buf *strings.Builder, run *docx.Run) {
	for _, rc := range run.Children {
		if t, ok := rc.(*docx.Text); ok {
			buf.WriteString(t.Text)
		}
	}
}
