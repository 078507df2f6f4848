// Package ingest turns uploaded CSV files into embedded chunks.
//
// The pipeline is: load (one logical record per CSV data row) → split
// (overlapping character chunks) → index (content-addressed chunk rows
// with embeddings, via the knowledge store).
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoRecords indicates the CSV contained a header but no data rows,
// or no usable text at all.
var ErrNoRecords = errors.New("csv contains no records")

// Record is one CSV data row rendered as retrievable text.
type Record struct {
	Row  int    // 1-based data row number (header excluded)
	Text string // "header: value" lines, one per column
}

// LoadCSV parses CSV content into one record per data row.
// Each record's text is the row's cells prefixed with their column
// headers, so retrieved chunks stay self-describing.
//
// Rows with a different cell count than the header are tolerated: missing
// cells are dropped, extra cells get a positional header.
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	records := make([]Record, 0)
	row := 0
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row+1, err)
		}
		row++

		text := renderRow(header, cells)
		if text == "" {
			continue // fully empty row
		}
		records = append(records, Record{Row: row, Text: text})
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// renderRow formats one data row as "header: value" lines.
func renderRow(header, cells []string) string {
	var b strings.Builder
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		name := fmt.Sprintf("column_%d", i+1)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			name = strings.TrimSpace(header[i])
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(cell)
	}
	return b.String()
}
