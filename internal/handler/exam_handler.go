package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-ops-api/internal/conflict"
	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/pkg/response"
)

type examService interface {
	CreateExam(ctx context.Context, actor models.Actor, req dto.CreateExamRequest) (*models.Exam, error)
	UpdateExam(ctx context.Context, actor models.Actor, id string, req dto.UpdateExamRequest) (*models.Exam, error)
	DeleteExam(ctx context.Context, actor models.Actor, id string, expectedVersion int) error
	PublishExamResults(ctx context.Context, actor models.Actor, id string, req dto.PublishExamResultsRequest) (*models.Exam, error)
	ListExams(ctx context.Context, actor models.Actor, query dto.ExamQuery) ([]models.Exam, *models.Pagination, error)
	GetExam(ctx context.Context, actor models.Actor, id string) (*models.Exam, error)
	PreviewExamConflicts(ctx context.Context, actor models.Actor, req dto.ConflictPreviewRequest) (*dto.ConflictPreviewResponse, error)
}

// ExamHandler exposes exam scheduling endpoints.
type ExamHandler struct {
	service examService
}

// NewExamHandler builds a new handler.
func NewExamHandler(service examService) *ExamHandler {
	return &ExamHandler{service: service}
}

// List godoc
// @Summary List exams visible to the caller
// @Tags Exams
// @Produce json
// @Param status query []string false "Status filter"
// @Param date query string false "Scheduled date (YYYY-MM-DD)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.ExamQuery{ScheduledDate: strings.TrimSpace(c.Query("date")), Limit: limit, Offset: offset}
	for _, s := range queryList(c, "status") {
		query.Status = append(query.Status, models.ExamStatus(s))
	}
	exams, pagination, err := h.service.ListExams(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// Get godoc
// @Summary Get an exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	exam, err := h.service.GetExam(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Create godoc
// @Summary Schedule an exam
// @Description Conflicts are returned on the exam and never block creation.
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body dto.CreateExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req dto.CreateExamRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	exam, err := h.service.CreateExam(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam, conflictMeta(exam))
}

// Update godoc
// @Summary Patch an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body dto.UpdateExamRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	var req dto.UpdateExamRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	exam, err := h.service.UpdateExam(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil, conflictMeta(exam))
}

// Delete godoc
// @Summary Delete a draft exam
// @Tags Exams
// @Param id path string true "Exam ID"
// @Param expectedVersion query int false "Optimistic version guard"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	version, err := queryInt(c, "expectedVersion")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.DeleteExam(c.Request.Context(), actorFromContext(c), c.Param("id"), version); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish results of a completed exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body dto.PublishExamResultsRequest false "Version guard"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /exams/{id}/publish [post]
func (h *ExamHandler) Publish(c *gin.Context) {
	var req dto.PublishExamResultsRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			response.Error(c, err)
			return
		}
	}
	exam, err := h.service.PublishExamResults(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// PreviewConflicts godoc
// @Summary Run the conflict detector without saving
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body dto.ConflictPreviewRequest true "Candidate schedule"
// @Success 200 {object} response.Envelope
// @Router /exams/conflicts/preview [post]
func (h *ExamHandler) PreviewConflicts(c *gin.Context) {
	var req dto.ConflictPreviewRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	preview, err := h.service.PreviewExamConflicts(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

func conflictMeta(exam *models.Exam) map[string]interface{} {
	if exam == nil || len(exam.Conflicts) == 0 {
		return nil
	}
	return map[string]interface{}{
		"conflictCount": len(exam.Conflicts),
		"hasErrors":     conflict.HasErrors(exam.Conflicts),
	}
}
