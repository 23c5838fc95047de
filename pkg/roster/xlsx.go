package roster

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSX returns the displayed text of every cell in sheet. excelize trims
// trailing empty cells, so rows may be shorter than the header.
func readXLSX(content []byte, sheet string) ([][]string, bool, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, false, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close() //nolint:errcheck

	found := false
	for _, name := range f.GetSheetList() {
		if name == sheet {
			found = true
			break
		}
	}
	if !found {
		return nil, false, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, true, fmt.Errorf("read sheet rows: %w", err)
	}
	return rows, true, nil
}
