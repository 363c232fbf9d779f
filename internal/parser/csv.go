package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/selmo/docstill/internal/doctree"
)

// csvBatchRows groups CSV rows into sections of manageable size.
const csvBatchRows = 20

// CSVAdapter renders CSV as labeled text: a header echo plus one
// "column: value" line per row, batched into sections so large files
// chunk along row-group boundaries.
type CSVAdapter struct{}

func (p *CSVAdapter) ID() string { return "csv" }

func (p *CSVAdapter) Parse(src Source) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(src.Data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	b := &builder{}
	hints := doctree.Hints{Title: TitleFromFilename(src.Name), Tables: 1}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}

	headers := records[0]
	dataRows := records[1:]

	for i := 0; i < len(dataRows); i += csvBatchRows {
		end := i + csvBatchRows
		if end > len(dataRows) {
			end = len(dataRows)
		}

		// 1-indexed row numbers, counting the header line.
		b.heading(1, fmt.Sprintf("Rows %d-%d", i+2, end+1))

		var text strings.Builder
		text.WriteString("Headers: " + strings.Join(headers, ", "))
		for _, row := range dataRows[i:end] {
			text.WriteString("\n")
			for j, cell := range row {
				if j > 0 {
					text.WriteString(", ")
				}
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
			}
		}
		b.para(text.String())
	}

	if len(dataRows) == 0 {
		b.para("Headers: " + strings.Join(headers, ", "))
	}

	return b.result(hints), nil
}
