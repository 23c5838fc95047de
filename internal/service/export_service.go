package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fhsh/makeup-exam-api/internal/models"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
	"github.com/fhsh/makeup-exam-api/pkg/export"
	"github.com/fhsh/makeup-exam-api/pkg/roster"
)

// Export formats accepted by ExportService.
const (
	ExportFormatCSV  = "csv"
	ExportFormatPDF  = "pdf"
	ExportFormatXLSX = "xlsx"
)

type rosterLister interface {
	ListAll(ctx context.Context) ([]models.MakeupExam, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

// ExportResult is a rendered roster file.
type ExportResult struct {
	Filename string
	MimeType string
	Content  []byte
}

// ExportService renders the full unmasked roster for administrators. The XLSX
// output uses the upload template so it can be uploaded again unchanged.
type ExportService struct {
	repo   rosterLister
	csv    csvRenderer
	pdf    pdfRenderer
	xlsx   xlsxRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the defaults; the default PDF renderer has no font and refuses to render.
func NewExportService(repo rosterLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, xlsx xlsxRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{repo: repo, csv: csv, pdf: pdf, xlsx: xlsx, logger: logger, now: time.Now}
}

// Export renders the stored roster in format.
func (s *ExportService) Export(ctx context.Context, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF && format != ExportFormatXLSX {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidInput, "unsupported export format", map[string]interface{}{
			"format":  format,
			"allowed": []string{ExportFormatCSV, ExportFormatPDF, ExportFormatXLSX},
		})
	}

	exams, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.Error("roster export load failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	dataset := buildRosterDataset(exams)
	filename := fmt.Sprintf("makeup-exams-%s.%s", s.now().Format("20060102-150405"), format)

	var (
		payload  []byte
		mimeType string
	)
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		mimeType = "text/csv; charset=utf-8"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "補考名單")
		mimeType = "application/pdf"
	case ExportFormatXLSX:
		payload, err = s.xlsx.Render(dataset, roster.TargetSheet)
		mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		if errors.Is(err, export.ErrFontRequired) {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "pdf export is not configured")
		}
		s.logger.Error("roster export render failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	return &ExportResult{Filename: filename, MimeType: mimeType, Content: payload}, nil
}

var rosterExportHeaders = []string{
	roster.ColumnStudentID,
	roster.ColumnName,
	roster.ColumnClass,
	roster.ColumnSubject,
	roster.ColumnExamDate,
	roster.ColumnExamTime,
	roster.ColumnLocation,
}

func buildRosterDataset(exams []models.MakeupExam) export.Dataset {
	rows := make([]map[string]string, 0, len(exams))
	for _, exam := range exams {
		rows = append(rows, map[string]string{
			roster.ColumnStudentID: exam.StudentID,
			roster.ColumnName:      deref(exam.StudentName),
			roster.ColumnClass:     deref(exam.ClassName),
			roster.ColumnSubject:   exam.Subject,
			roster.ColumnExamDate:  exam.ExamDate,
			roster.ColumnExamTime:  exam.ExamTime,
			roster.ColumnLocation:  exam.Location,
		})
	}
	return export.Dataset{Headers: rosterExportHeaders, Rows: rows}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
