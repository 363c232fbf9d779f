package parser

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/selmo/docstill/internal/doctree"
)

// HTMLMarkdownAdapter is the second HTML engine: sanitize the markup,
// convert it to markdown, and derive hints from the markdown itself.
// Tends to preserve tables and inline structure the DOM walk flattens.
type HTMLMarkdownAdapter struct {
	conv   *converter.Converter
	policy *bluemonday.Policy
}

func (p *HTMLMarkdownAdapter) ID() string { return "htmlmd" }

func (p *HTMLMarkdownAdapter) Parse(src Source) (*Result, error) {
	if p.conv == nil {
		p.conv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	}
	if p.policy == nil {
		p.policy = bluemonday.UGCPolicy()
	}

	clean := p.policy.SanitizeBytes(src.Data)
	md, err := p.conv.ConvertString(string(clean))
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}
	md = strings.TrimSpace(normalizeNewlines(md))
	if md == "" {
		return nil, fmt.Errorf("html conversion produced no text")
	}

	hints := doctree.Hints{Title: TitleFromFilename(src.Name)}
	hints.Headings = scanATXHeadings(md)
	hints.Images = strings.Count(md, "![")
	hints.Tables = countMarkdownTables(md)
	if len(hints.Headings) > 0 && hints.Headings[0].Level == 1 {
		hints.Title = hints.Headings[0].Title
	}

	return &Result{Text: md, Hints: hints, Sample: sampleOf(md)}, nil
}

// scanATXHeadings walks markdown line by line recording # headings with
// their byte offsets. Fenced code blocks are skipped so a commented
// shell line is not mistaken for a heading.
func scanATXHeadings(md string) []doctree.Heading {
	var headings []doctree.Heading
	offset := 0
	inFence := false
	for _, line := range strings.SplitAfter(md, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		} else if !inFence {
			if level, title, ok := atxHeading(trimmed); ok {
				headings = append(headings, doctree.Heading{
					Level:  level,
					Title:  title,
					Offset: offset,
				})
			}
		}
		offset += len(line)
	}
	return headings
}

func atxHeading(line string) (level int, title string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i == len(line) || line[i] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[i+1:])
	// Closing hashes are decorative only when space-separated.
	if k := strings.TrimRight(title, "#"); k != title && strings.HasSuffix(k, " ") {
		title = strings.TrimSpace(k)
	}
	if title == "" {
		return 0, "", false
	}
	return i, title, true
}

func countMarkdownTables(md string) int {
	count := 0
	prevPipe := false
	for _, line := range strings.Split(md, "\n") {
		t := strings.TrimSpace(line)
		isSep := strings.HasPrefix(t, "|") && strings.Contains(t, "---")
		if isSep && prevPipe {
			count++
		}
		prevPipe = strings.HasPrefix(t, "|")
	}
	return count
}
