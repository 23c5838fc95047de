// Package roster turns makeup exam roster workbooks into MakeupExam records.
//
// Workbooks must contain the sheet named by TargetSheet whose first row holds
// the column headers. Every cell is read as its displayed text, so IDs keep
// leading zeros and dates keep whatever wording the school used.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fhsh/makeup-exam-api/internal/models"
)

// TargetSheet is the only sheet read from an uploaded workbook.
const TargetSheet = "應到考名單 (班級座號序)"

// Column headers of the roster template.
const (
	ColumnStudentID    = "學號"
	ColumnName         = "姓名1"
	ColumnNameFallback = "姓名"
	ColumnClass        = "班級"
	ColumnSubject      = "補考科目"
	ColumnExamDate     = "補考日期"
	ColumnExamTime     = "補考時間"
	ColumnLocation     = "補考教室"
)

// RequiredColumns lists the headers every roster must carry, in report order.
var RequiredColumns = []string{ColumnStudentID, ColumnSubject, ColumnExamDate, ColumnExamTime, ColumnLocation}

// Parse failure reasons.
const (
	ReasonUnreadable     = "unreadable workbook"
	ReasonMissingSheet   = "missing target sheet"
	ReasonMissingColumns = "missing columns"
	ReasonIncompleteRow  = "incomplete rows"
)

var (
	zipSignature = []byte("PK\x03\x04")
	oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// ParseError reports a structural problem with an uploaded workbook.
type ParseError struct {
	Reason string
	// Sheet names the worksheet that could not be found.
	Sheet   string
	Missing []string
	Rows    []RowError
	Err     error
}

// RowError names the blank required cells of one data row. Row is the
// 1-based sheet row number as shown by spreadsheet software.
type RowError struct {
	Row     int      `json:"row"`
	Columns []string `json:"columns"`
}

func (e *ParseError) Error() string {
	switch {
	case e.Sheet != "":
		return fmt.Sprintf("%s: %s", e.Reason, e.Sheet)
	case len(e.Missing) > 0:
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Missing, ", "))
	case len(e.Rows) > 0:
		parts := make([]string, 0, len(e.Rows))
		for _, r := range e.Rows {
			parts = append(parts, fmt.Sprintf("row %d (%s)", r.Row, strings.Join(r.Columns, ", ")))
		}
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(parts, "; "))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// AsParseError extracts a *ParseError from err.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// sheetReader extracts the rows of one named sheet. found is false when the
// workbook has no sheet with that exact name.
type sheetReader func(content []byte, sheet string) (rows [][]string, found bool, err error)

// rowValues carries the trimmed cells of one data row for validation.
type rowValues struct {
	StudentID string `column:"學號" validate:"required"`
	Subject   string `column:"補考科目" validate:"required"`
	ExamDate  string `column:"補考日期" validate:"required"`
	ExamTime  string `column:"補考時間" validate:"required"`
	Location  string `column:"補考教室" validate:"required"`
}

// Parser converts roster workbooks into records. It holds no per-call state
// and is safe for concurrent use.
type Parser struct {
	validate *validator.Validate
}

// NewParser constructs a Parser.
func NewParser() *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("column")
	})
	return &Parser{validate: v}
}

// Parse reads the roster sheet of an .xlsx or .xls workbook. Rows without a
// student ID are skipped. An empty result is not an error.
func (p *Parser) Parse(content []byte) ([]models.MakeupExam, error) {
	var read sheetReader
	switch {
	case bytes.HasPrefix(content, zipSignature):
		read = readXLSX
	case bytes.HasPrefix(content, oleSignature):
		read = readXLS
	default:
		return nil, &ParseError{Reason: ReasonUnreadable}
	}

	rows, found, err := read(content, TargetSheet)
	if err != nil {
		return nil, &ParseError{Reason: ReasonUnreadable, Err: err}
	}
	if !found {
		return nil, &ParseError{Reason: ReasonMissingSheet, Sheet: TargetSheet}
	}
	return p.parseRows(rows)
}

func (p *Parser) parseRows(rows [][]string) ([]models.MakeupExam, error) {
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}
	index := headerIndex(header)

	missing := make([]string, 0, len(RequiredColumns))
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Reason: ReasonMissingColumns, Missing: missing}
	}

	nameCol := -1
	if i, ok := index[ColumnName]; ok {
		nameCol = i
	} else if i, ok := index[ColumnNameFallback]; ok {
		nameCol = i
	}
	classCol := -1
	if i, ok := index[ColumnClass]; ok {
		classCol = i
	}

	exams := make([]models.MakeupExam, 0, len(rows))
	var incomplete []RowError
	for n := 1; n < len(rows); n++ {
		row := rows[n]
		values := rowValues{
			StudentID: cell(row, index[ColumnStudentID]),
			Subject:   cell(row, index[ColumnSubject]),
			ExamDate:  cell(row, index[ColumnExamDate]),
			ExamTime:  cell(row, index[ColumnExamTime]),
			Location:  cell(row, index[ColumnLocation]),
		}
		if values.StudentID == "" {
			continue
		}
		if err := p.validate.Struct(values); err != nil {
			incomplete = append(incomplete, RowError{Row: n + 1, Columns: blankColumns(err)})
			continue
		}
		exams = append(exams, models.MakeupExam{
			StudentID:   values.StudentID,
			StudentName: optional(cell(row, nameCol)),
			ClassName:   optional(cell(row, classCol)),
			Subject:     values.Subject,
			ExamDate:    values.ExamDate,
			ExamTime:    values.ExamTime,
			Location:    values.Location,
		})
	}
	if len(incomplete) > 0 {
		return nil, &ParseError{Reason: ReasonIncompleteRow, Rows: incomplete}
	}
	return exams, nil
}

// headerIndex maps trimmed header text to its column; the first occurrence of
// a duplicated header wins.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	return index
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func blankColumns(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	cols := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		cols = append(cols, fe.Field())
	}
	return cols
}
