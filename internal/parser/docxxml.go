package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/selmo/docstill/internal/doctree"
)

// DocxXMLAdapter is the fallback .docx engine: it reads
// word/document.xml straight out of the archive and walks the XML
// tokens. Survives files that trip the full parser, and recognizes
// localized heading style names.
type DocxXMLAdapter struct{}

func (p *DocxXMLAdapter) ID() string { return "docxxml" }

func (p *DocxXMLAdapter) Parse(src Source) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	b := &builder{}
	hints := doctree.Hints{Title: TitleFromFilename(src.Name)}

	decoder := xml.NewDecoder(rc)
	var currentText strings.Builder
	var inParagraph, inRunText bool
	var paragraphStyle string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				currentText.Reset()
				paragraphStyle = ""
			case "pStyle":
				if inParagraph {
					for _, attr := range t.Attr {
						if attr.Name.Local == "val" {
							paragraphStyle = attr.Value
						}
					}
				}
			case "t":
				inRunText = inParagraph
			case "tbl":
				hints.Tables++
			case "drawing", "pict":
				hints.Images++
			}

		case xml.CharData:
			if inRunText {
				currentText.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRunText = false
			case "p":
				if !inParagraph {
					continue
				}
				inParagraph = false
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}
				if level := styleHeadingLevel(paragraphStyle); level > 0 {
					if len(b.headings) == 0 && level == 1 {
						hints.Title = text
					}
					b.heading(level, text)
				} else {
					b.para(text)
				}
			}
		}
	}

	res := b.result(hints)
	if res.Text == "" {
		return nil, fmt.Errorf("no text content in document.xml")
	}
	return res, nil
}

// styleHeadingLevel maps a paragraph style name to a heading level.
// "Heading1" -> 1, "Title" -> 1, localized prefixes included.
func styleHeadingLevel(style string) int {
	lower := strings.ToLower(style)

	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}

	for _, prefix := range []string{"heading", "titre", "überschrift", "제목"} {
		if strings.HasPrefix(lower, prefix) {
			rest := strings.TrimSpace(lower[len(prefix):])
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
