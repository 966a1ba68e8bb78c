package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-ops-api/internal/dto"
	"github.com/noah-isme/campus-ops-api/internal/models"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
	"github.com/noah-isme/campus-ops-api/pkg/export"
	"github.com/noah-isme/campus-ops-api/pkg/response"
)

type auditService interface {
	FetchRecent(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditLogEntry, error)
	Export(ctx context.Context, actor models.Actor, query dto.AuditQuery, format export.Format) (*dto.AuditExport, error)
}

// AuditHandler serves audit history.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary Recent audit entries, newest first
// @Tags Audit
// @Produce json
// @Param entityId query string false "Restrict to one entity"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	query, err := auditQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.FetchRecent(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil, map[string]interface{}{"count": len(entries)})
}

// Export godoc
// @Summary Download audit entries
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param entityId query string false "Restrict to one entity"
// @Param limit query int false "Maximum entries"
// @Success 200 {file} file
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.InvalidArgument("format", err.Error()))
		return
	}
	query, err := auditQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.service.Export(c.Request.Context(), actorFromContext(c), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, out.Filename, out.ContentType, out.Body)
}

func auditQuery(c *gin.Context) (dto.AuditQuery, error) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return dto.AuditQuery{}, err
	}
	return dto.AuditQuery{EntityID: strings.TrimSpace(c.Query("entityId")), Limit: limit}, nil
}
