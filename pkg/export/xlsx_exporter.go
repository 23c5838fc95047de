package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExporter renders a dataset into a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes headers and rows to sheet as text cells.
func (e *XLSXExporter) Render(data Dataset, sheet string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if sheet == "" {
		sheet = "Sheet1"
	} else if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name xlsx sheet: %w", err)
	}

	writeRow := func(n int, values []string) error {
		cellRef, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cellRef, &row)
	}

	if err := writeRow(1, data.Headers); err != nil {
		return nil, fmt.Errorf("write xlsx headers: %w", err)
	}
	for i, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for j, header := range data.Headers {
			record[j] = row[header]
		}
		if err := writeRow(i+2, record); err != nil {
			return nil, fmt.Errorf("write xlsx row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
