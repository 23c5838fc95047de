package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fhsh/makeup-exam-api/internal/models"
	"github.com/fhsh/makeup-exam-api/pkg/response"
)

type examLookup interface {
	Lookup(ctx context.Context, studentID string) ([]models.ExamView, error)
}

// ExamHandler serves public exam lookups.
type ExamHandler struct {
	lookup examLookup
}

// NewExamHandler constructs an ExamHandler.
func NewExamHandler(lookup examLookup) *ExamHandler {
	return &ExamHandler{lookup: lookup}
}

// ListByStudent godoc
// @Summary List makeup exams of a student
// @Tags Exams
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {array} models.ExamView
// @Router /api/exams/{studentId} [get]
func (h *ExamHandler) ListByStudent(c *gin.Context) {
	views, err := h.lookup.Lookup(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views)
}
