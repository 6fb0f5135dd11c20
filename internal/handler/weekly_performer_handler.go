package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
	"github.com/noah-isme/batch-admin-api/pkg/export"
	"github.com/noah-isme/batch-admin-api/pkg/response"
)

type weeklyPerformerService interface {
	SaveAndReset(ctx context.Context, batchID, actor string) (*models.WeeklySnapshotResult, error)
	SaveManual(ctx context.Context, batchID string, req dto.ManualWeeklyPerformerRequest, actor string) (*models.WeeklyBestPerformer, error)
	List(ctx context.Context, filter models.WeeklyPerformerFilter) ([]models.WeeklyBestPerformer, *models.Pagination, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, batchID, format string) (*export.File, error)
}

// WeeklyPerformerHandler exposes weekly best performer snapshots.
type WeeklyPerformerHandler struct {
	service weeklyPerformerService
}

// NewWeeklyPerformerHandler creates a new handler.
func NewWeeklyPerformerHandler(svc weeklyPerformerService) *WeeklyPerformerHandler {
	return &WeeklyPerformerHandler{service: svc}
}

// SaveAndReset godoc
// @Summary Snapshot this week's winner and reset points
// @Description 409 PARTIAL_APPLY carries the stored snapshot when the reset failed.
// @Tags Weekly Performers
// @Produce json
// @Param id path string true "Batch ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches/{id}/weekly-performers [post]
func (h *WeeklyPerformerHandler) SaveAndReset(c *gin.Context) {
	res, err := h.service.SaveAndReset(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		if res != nil {
			response.ErrorWithData(c, err, res)
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// SaveManual godoc
// @Summary Record a weekly winner by hand
// @Tags Weekly Performers
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.ManualWeeklyPerformerRequest true "Manual winner"
// @Success 201 {object} response.Envelope
// @Router /batches/{id}/weekly-performers/manual [post]
func (h *WeeklyPerformerHandler) SaveManual(c *gin.Context) {
	var req dto.ManualWeeklyPerformerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid weekly performer payload"))
		return
	}
	snapshot, err := h.service.SaveManual(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot)
}

// List godoc
// @Summary List weekly performers
// @Tags Weekly Performers
// @Produce json
// @Param id path string true "Batch ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/weekly-performers [get]
func (h *WeeklyPerformerHandler) List(c *gin.Context) {
	filter := models.WeeklyPerformerFilter{
		BatchID:  c.Param("id"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	snapshots, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, pagination)
}

// Export godoc
// @Summary Download weekly performers
// @Tags Weekly Performers
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /batches/{id}/weekly-performers/export [get]
func (h *WeeklyPerformerHandler) Export(c *gin.Context) {
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Delete godoc
// @Summary Delete a weekly performer snapshot
// @Tags Weekly Performers
// @Param id path string true "Snapshot ID"
// @Success 204
// @Router /weekly-performers/{id} [delete]
func (h *WeeklyPerformerHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
