package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

// UTF8BOM prefixes CSV output so Excel detects UTF-8 instead of showing
// Chinese headers as mojibake.
var UTF8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset is a table addressed by header: each row maps header text to the
// cell value, and missing keys render as blank cells.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		record[i] = row[header]
	}
	return record
}

// CSVExporter renders a Dataset as CSV meant to be opened in spreadsheet
// software: BOM-prefixed UTF-8 with CRLF line endings.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces the CSV bytes for the dataset, header row first.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("csv export needs at least one column")
	}
	buf := bytes.NewBuffer(append([]byte(nil), UTF8BOM...))
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true

	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range data.Rows {
		if err := writer.Write(data.record(row)); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
