package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fhsh/makeup-exam-api/internal/middleware"
	"github.com/fhsh/makeup-exam-api/internal/models"
	"github.com/fhsh/makeup-exam-api/internal/service"
	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
	"github.com/fhsh/makeup-exam-api/pkg/response"
)

const (
	// uploadField is the multipart field carrying the workbook.
	uploadField = "file"
	// multipartOverhead allows for boundaries and part headers on top of the
	// file itself.
	multipartOverhead = 64 << 10
)

type rosterIngester interface {
	Ingest(ctx context.Context, upload service.RosterUpload, token string) (*models.IngestResult, error)
}

type rosterSummaryProvider interface {
	Summary(ctx context.Context) (*models.RosterSummary, error)
}

type rosterExporter interface {
	Export(ctx context.Context, format string) (*service.ExportResult, error)
}

// UploadResponse is returned after a successful roster upload.
type UploadResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// AdminHandler exposes roster administration endpoints.
type AdminHandler struct {
	ingest      rosterIngester
	roster      rosterSummaryProvider
	exporter    rosterExporter
	maxFileSize int64
}

// NewAdminHandler constructs an AdminHandler. maxFileSize bounds how much of
// an upload is read; larger request bodies are refused unread.
func NewAdminHandler(ingest rosterIngester, roster rosterSummaryProvider, exporter rosterExporter, maxFileSize int64) *AdminHandler {
	return &AdminHandler{ingest: ingest, roster: roster, exporter: exporter, maxFileSize: maxFileSize}
}

// Upload godoc
// @Summary Replace the makeup exam roster
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Param X-Admin-Token header string true "Admin secret"
// @Param file formData file true "Roster workbook (.xlsx or .xls)"
// @Success 200 {object} handler.UploadResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 500 {object} response.ErrorBody
// @Router /admin/upload [post]
func (h *AdminHandler) Upload(c *gin.Context) {
	upload, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), upload, c.GetHeader(middleware.AdminTokenHeader))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, UploadResponse{Success: result.Success, Count: result.Count, Message: result.Message})
}

// readUpload loads the multipart file. A request without a file yields an
// empty upload so the token is still checked before the file is rejected.
func (h *AdminHandler) readUpload(c *gin.Context) (service.RosterUpload, error) {
	if h.maxFileSize > 0 {
		limit := h.maxFileSize + multipartOverhead
		if c.Request.ContentLength > limit {
			return service.RosterUpload{}, h.tooLarge()
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return service.RosterUpload{}, h.tooLarge()
		}
		return service.RosterUpload{}, nil
	}
	file, err := header.Open()
	if err != nil {
		return service.RosterUpload{}, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "failed to read uploaded file")
	}
	defer file.Close() //nolint:errcheck

	var reader io.Reader = file
	if h.maxFileSize > 0 {
		// One extra byte lets the service see the limit was exceeded.
		reader = io.LimitReader(file, h.maxFileSize+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return service.RosterUpload{}, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "failed to read uploaded file")
	}
	return service.RosterUpload{Filename: header.Filename, Size: header.Size, Content: content}, nil
}

func (h *AdminHandler) tooLarge() error {
	return appErrors.WithDetails(appErrors.ErrInvalidInput, fmt.Sprintf("file exceeds %d bytes limit", h.maxFileSize), map[string]interface{}{
		"reason": "file too large",
	})
}

// Summary godoc
// @Summary Describe the stored roster
// @Tags Admin
// @Produce json
// @Param X-Admin-Token header string true "Admin secret"
// @Success 200 {object} models.RosterSummary
// @Failure 401 {object} response.ErrorBody
// @Router /admin/roster [get]
func (h *AdminHandler) Summary(c *gin.Context) {
	summary, err := h.roster.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Export godoc
// @Summary Download the full roster
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param X-Admin-Token header string true "Admin secret"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Router /admin/roster/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	result, err := h.exporter.Export(c.Request.Context(), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.MimeType, result.Content)
}
