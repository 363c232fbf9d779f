package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/selmo/docstill/internal/doctree"
)

// sampleRunes is how much text an adapter exposes as its scoring sample.
const sampleRunes = 10000

// Source is one document handed to an adapter. Data is read once by the
// caller so that every adapter for the file sees identical bytes.
type Source struct {
	Name string // original filename, used for titles and extension checks
	Data []byte
}

// Result is one adapter's output: the extracted text, the structural
// hints that index into it, and a bounded sample for quality scoring.
type Result struct {
	Text   string
	Hints  doctree.Hints
	Sample string
}

// Adapter wraps one concrete parsing engine. Implementations return an
// error for unreadable input; they never panic on malformed bytes (the
// caller still guards with a recover boundary).
type Adapter interface {
	ID() string
	Parse(src Source) (*Result, error)
}

// SupportedExtensions lists file extensions this pipeline can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the adapters registered for a filename, in fixed
// priority order. The order breaks score ties during arbitration.
func ForFile(filename string) ([]Adapter, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return []Adapter{&TextAdapter{}}, nil
	case ".md", ".markdown":
		return []Adapter{&MarkdownAdapter{}, &TextAdapter{}}, nil
	case ".csv":
		return []Adapter{&CSVAdapter{}, &TextAdapter{}}, nil
	case ".html", ".htm":
		return []Adapter{&HTMLAdapter{}, &HTMLMarkdownAdapter{}}, nil
	case ".pdf":
		return []Adapter{&PDFTextAdapter{}, &PDFLayoutAdapter{}}, nil
	case ".docx":
		return []Adapter{&DocxAdapter{}, &DocxXMLAdapter{}}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// TitleFromFilename strips the directory and extension for use as a
// fallback document title.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// builder accumulates the text an adapter emits block by block,
// recording heading offsets as it writes them. Hints built this way
// always index into the final text.
type builder struct {
	sb       strings.Builder
	headings []doctree.Heading
}

func (b *builder) para(text string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteString("\n\n")
	}
	b.sb.WriteString(t)
}

func (b *builder) heading(level int, title string) {
	t := strings.TrimSpace(title)
	if t == "" {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteString("\n\n")
	}
	b.headings = append(b.headings, doctree.Heading{
		Level:  level,
		Title:  t,
		Offset: b.sb.Len(),
	})
	b.sb.WriteString(t)
}

func (b *builder) result(hints doctree.Hints) *Result {
	text := b.sb.String()
	hints.Headings = b.headings
	return &Result{Text: text, Hints: hints, Sample: sampleOf(text)}
}

// sampleOf returns the first sampleRunes runes of text.
func sampleOf(text string) string {
	if len(text) <= sampleRunes {
		return text
	}
	runes := 0
	for i := range text {
		if runes == sampleRunes {
			return text[:i]
		}
		runes++
	}
	return text
}

// normalizeNewlines converts CRLF and bare CR line endings to LF.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
