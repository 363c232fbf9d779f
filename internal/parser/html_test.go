package parser

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestHTMLAdapter_HeadingsAndCensus(t *testing.T) {
	input := `<html><head><title>Report 2026</title></head><body>
<h1>Overview</h1>
<p>Opening paragraph.</p>
<img src="a.png"><img src="b.png">
<h2>Details</h2>
<table><tr><td>cell one</td><td>cell two</td></tr></table>
<p>Closing paragraph.</p>
<script>ignore();</script>
</body></html>`

	p := &HTMLAdapter{}
	res, err := p.Parse(Source{Name: "report.html", Data: []byte(input)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Hints.Title != "Report 2026" {
		t.Errorf("title = %q, want %q", res.Hints.Title, "Report 2026")
	}
	if res.Hints.Images != 2 {
		t.Errorf("images = %d, want 2", res.Hints.Images)
	}
	if res.Hints.Tables != 1 {
		t.Errorf("tables = %d, want 1", res.Hints.Tables)
	}
	if len(res.Hints.Headings) != 2 {
		t.Fatalf("headings = %d, want 2", len(res.Hints.Headings))
	}
	if res.Hints.Headings[0].Title != "Overview" || res.Hints.Headings[0].Level != 1 {
		t.Errorf("heading[0] = %+v", res.Hints.Headings[0])
	}
	if res.Hints.Headings[1].Title != "Details" || res.Hints.Headings[1].Level != 2 {
		t.Errorf("heading[1] = %+v", res.Hints.Headings[1])
	}
	if strings.Contains(res.Text, "ignore()") {
		t.Error("script content leaked into text")
	}
	if !strings.Contains(res.Text, "cell one") {
		t.Error("table text missing")
	}
	for _, h := range res.Hints.Headings {
		if !strings.HasPrefix(res.Text[h.Offset:], h.Title) {
			t.Errorf("offset %d does not point at %q", h.Offset, h.Title)
		}
	}
}

func TestHTMLAdapter_BareTextFallback(t *testing.T) {
	input := `<html><body><div>loose text in a div</div></body></html>`
	p := &HTMLAdapter{}
	res, err := p.Parse(Source{Name: "bare.html", Data: []byte(input)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Text, "loose text in a div") {
		t.Errorf("fallback text missing: %q", res.Text)
	}
}

func TestHTMLMarkdownAdapter_HeadingsFromMarkdown(t *testing.T) {
	input := `<html><body>
<h1>Guide</h1>
<p>Intro paragraph with <b>bold</b> text.</p>
<h2>Setup</h2>
<p>Install the thing.</p>
</body></html>`

	p := &HTMLMarkdownAdapter{}
	res, err := p.Parse(Source{Name: "guide.html", Data: []byte(input)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Hints.Headings) != 2 {
		t.Fatalf("headings = %d, want 2: %+v", len(res.Hints.Headings), res.Hints.Headings)
	}
	if res.Hints.Headings[0].Title != "Guide" || res.Hints.Headings[0].Level != 1 {
		t.Errorf("heading[0] = %+v", res.Hints.Headings[0])
	}
	if res.Hints.Title != "Guide" {
		t.Errorf("title = %q, want leading h1", res.Hints.Title)
	}
	if !strings.Contains(res.Text, "Intro paragraph") {
		t.Errorf("paragraph text missing: %q", res.Text)
	}
}

func TestScanATXHeadings_SkipsFencedCode(t *testing.T) {
	md := "# Real\n\n```\n# not a heading\n```\n\n## Also real\n"
	hs := scanATXHeadings(md)
	if len(hs) != 2 {
		t.Fatalf("headings = %d, want 2: %+v", len(hs), hs)
	}
	if hs[0].Title != "Real" || hs[1].Title != "Also real" {
		t.Errorf("headings = %+v", hs)
	}
	for _, h := range hs {
		if !strings.HasPrefix(md[h.Offset:], strings.Repeat("#", h.Level)) {
			t.Errorf("offset %d does not point at heading marker", h.Offset)
		}
	}
}

func TestAtxHeading(t *testing.T) {
	cases := []struct {
		line  string
		level int
		title string
		ok    bool
	}{
		{"# Title", 1, "Title", true},
		{"### Deep ###", 3, "Deep", true},
		{"## Learn C#", 2, "Learn C#", true},
		{"####### Seven", 0, "", false},
		{"#NoSpace", 0, "", false},
		{"plain", 0, "", false},
	}
	for _, c := range cases {
		level, title, ok := atxHeading(c.line)
		if level != c.level || title != c.title || ok != c.ok {
			t.Errorf("atxHeading(%q) = (%d, %q, %v), want (%d, %q, %v)",
				c.line, level, title, ok, c.level, c.title, c.ok)
		}
	}
}

// docxArchive builds a minimal .docx (a zip with word/document.xml).
func docxArchive(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDocxXMLAdapter_HeadingsAndParagraphs(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Introduction</w:t></w:r></w:p>
    <w:p><w:r><w:t>First body paragraph.</w:t></w:r></w:p>
    <w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Scope</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second body </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
  </w:body>
</w:document>`

	p := &DocxXMLAdapter{}
	res, err := p.Parse(Source{Name: "spec.docx", Data: docxArchive(t, doc)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Hints.Title != "Introduction" {
		t.Errorf("title = %q, want %q", res.Hints.Title, "Introduction")
	}
	if len(res.Hints.Headings) != 2 {
		t.Fatalf("headings = %d, want 2: %+v", len(res.Hints.Headings), res.Hints.Headings)
	}
	if res.Hints.Headings[1].Title != "Scope" || res.Hints.Headings[1].Level != 2 {
		t.Errorf("heading[1] = %+v", res.Hints.Headings[1])
	}
	if res.Hints.Tables != 1 {
		t.Errorf("tables = %d, want 1", res.Hints.Tables)
	}
	if !strings.Contains(res.Text, "Second body paragraph.") {
		t.Errorf("split runs not joined: %q", res.Text)
	}
}

func TestDocxXMLAdapter_MissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("other.xml")
	w.Write([]byte("<x/>"))
	zw.Close()

	p := &DocxXMLAdapter{}
	if _, err := p.Parse(Source{Name: "bad.docx", Data: buf.Bytes()}); err == nil {
		t.Fatal("expected error for archive without word/document.xml")
	}
}

func TestStyleHeadingLevel(t *testing.T) {
	cases := []struct {
		style string
		want  int
	}{
		{"Heading1", 1},
		{"heading3", 3},
		{"Title", 1},
		{"Subtitle", 2},
		{"Titre2", 2},
		{"제목1", 1},
		{"BodyText", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := styleHeadingLevel(c.style); got != c.want {
			t.Errorf("styleHeadingLevel(%q) = %d, want %d", c.style, got, c.want)
		}
	}
}

func TestCSVAdapter_BatchesRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("name,city\n")
	for i := 0; i < 45; i++ {
		sb.WriteString("person,seoul\n")
	}

	p := &CSVAdapter{}
	res, err := p.Parse(Source{Name: "people.csv", Data: []byte(sb.String())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 45 rows in batches of 20 -> 3 sections.
	if len(res.Hints.Headings) != 3 {
		t.Fatalf("headings = %d, want 3: %+v", len(res.Hints.Headings), res.Hints.Headings)
	}
	if res.Hints.Headings[0].Title != "Rows 2-21" {
		t.Errorf("heading[0] = %q", res.Hints.Headings[0].Title)
	}
	if res.Hints.Headings[2].Title != "Rows 42-46" {
		t.Errorf("heading[2] = %q", res.Hints.Headings[2].Title)
	}
	if !strings.Contains(res.Text, "name: person, city: seoul") {
		t.Errorf("labeled row missing: %q", res.Text)
	}
	if res.Hints.Tables != 1 {
		t.Errorf("tables = %d, want 1", res.Hints.Tables)
	}
}
