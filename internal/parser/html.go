package parser

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/selmo/docstill/internal/doctree"
)

// HTMLAdapter handles HTML via the DOM. Heading tags become structural
// hints; img and table tags are counted for scan detection.
type HTMLAdapter struct{}

func (p *HTMLAdapter) ID() string { return "html" }

func (p *HTMLAdapter) Parse(src Source) (*Result, error) {
	doc, err := html.Parse(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	hints := doctree.Hints{
		Title:  TitleFromFilename(src.Name),
		Images: countTags(doc, "img"),
		Tables: countTags(doc, "table"),
	}
	if tn := findElement(doc, "title"); tn != nil {
		if t := textContent(tn); t != "" {
			hints.Title = t
		}
	}

	b := &builder{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				b.heading(level, textContent(n))
				return
			}

			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "header":
				return
			case "p", "li", "blockquote", "pre", "table":
				b.para(textContent(n))
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	root := doc
	if body := findElement(doc, "body"); body != nil {
		root = body
	}
	walk(root)

	res := b.result(hints)
	if res.Text == "" {
		// Markup without block elements still has text worth keeping.
		fb := &builder{}
		fb.para(textContent(doc))
		res = fb.result(hints)
	}
	return res, nil
}

// headingLevel returns 1-6 for the h1-h6 tags and 0 for anything else.
func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// nonContentTag reports subtrees whose text never belongs in the body.
func nonContentTag(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

// textContent joins the trimmed text nodes under n with single spaces,
// skipping script and style subtrees.
func textContent(n *html.Node) string {
	var parts []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		case n.Type == html.ElementNode && nonContentTag(n.Data):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.Join(parts, " ")
}

// findElement returns the first element with the given tag in document
// order, or nil.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func countTags(n *html.Node, tag string) int {
	count := 0
	if n.Type == html.ElementNode && n.Data == tag {
		count++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countTags(c, tag)
	}
	return count
}
