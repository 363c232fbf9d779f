package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/selmo/docstill/internal/doctree"
)

// MarkdownAdapter handles Markdown using goldmark. Headings become
// structural hints; all other top-level blocks become paragraphs.
type MarkdownAdapter struct{}

func (p *MarkdownAdapter) ID() string { return "markdown" }

func (p *MarkdownAdapter) Parse(src Source) (*Result, error) {
	md := goldmark.New()
	reader := text.NewReader(src.Data)
	doc := md.Parser().Parse(reader)

	b := &builder{}
	hints := doctree.Hints{Title: TitleFromFilename(src.Name)}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := string(node.Text(src.Data))
			// A leading h1 doubles as the document title.
			if node.Level == 1 && len(b.headings) == 0 {
				if t := strings.TrimSpace(title); t != "" {
					hints.Title = t
				}
			}
			b.heading(node.Level, title)
		case *ast.Image:
			hints.Images++
		default:
			if _, ok := n.(*ast.ThematicBreak); ok {
				continue
			}
			hints.Images += countInlineImages(n)
			b.para(blockText(n, src.Data))
		}
	}

	return b.result(hints), nil
}

// blockText gets the text content of a goldmark AST node. Blocks that
// carry source lines are read from the source directly; container
// blocks (lists, quotes) recurse until a lined block is found.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				buf.Write(lines.At(i).Value(src))
			}
			if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
				buf.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func countInlineImages(n ast.Node) int {
	count := 0
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*ast.Image); ok {
			count++
		}
		count += countInlineImages(c)
	}
	return count
}
