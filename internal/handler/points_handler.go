package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/middleware"
	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
	"github.com/noah-isme/batch-admin-api/pkg/export"
	"github.com/noah-isme/batch-admin-api/pkg/response"
)

type pointsService interface {
	RecordChange(ctx context.Context, batchID string, req dto.RecordPointChangeRequest, actor string) (*models.PointChangeResult, error)
	History(ctx context.Context, filter models.PointUpdateFilter) ([]models.PointUpdate, *models.Pagination, error)
	Aggregates(ctx context.Context, batchID, studentID string) (*models.StudentAggregate, error)
	Leaderboard(ctx context.Context, batchID string) (*dto.LeaderboardResponse, bool, error)
	LeaderboardExport(ctx context.Context, batchID, format string) (*export.File, error)
	Reset(ctx context.Context, batchID, actor string) (*models.LedgerRepairResult, error)
	Restore(ctx context.Context, batchID, actor string) (*models.LedgerRepairResult, error)
}

// PointsHandler exposes the points ledger.
type PointsHandler struct {
	service pointsService
}

// NewPointsHandler creates a new handler.
func NewPointsHandler(svc pointsService) *PointsHandler {
	return &PointsHandler{service: svc}
}

// Record godoc
// @Summary Record a point change
// @Description 201 when the balance was updated, 202 when only the ledger entry landed.
// @Tags Points
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.RecordPointChangeRequest true "Point change"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id}/points [post]
func (h *PointsHandler) Record(c *gin.Context) {
	var req dto.RecordPointChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid point change payload"))
		return
	}
	res, err := h.service.RecordChange(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Status == models.PointChangePartial {
		middleware.SetMeta(c, "reconciliation_required", true)
		middleware.SetMeta(c, "detail", res.Detail)
		response.Accepted(c, res, middleware.ExtractMeta(c))
		return
	}
	response.Created(c, res)
}

// History godoc
// @Summary List point changes
// @Tags Points
// @Produce json
// @Param id path string true "Batch ID"
// @Param student_id query string false "Student ID"
// @Param date_from query string false "From date"
// @Param date_to query string false "To date"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/points [get]
func (h *PointsHandler) History(c *gin.Context) {
	filter := models.PointUpdateFilter{
		BatchID:   c.Param("id"),
		StudentID: c.Query("student_id"),
		DateFrom:  c.Query("date_from"),
		DateTo:    c.Query("date_to"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
	}
	events, pagination, err := h.service.History(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Aggregates godoc
// @Summary Student point aggregates
// @Tags Points
// @Produce json
// @Param id path string true "Batch ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/students/{studentId}/aggregates [get]
func (h *PointsHandler) Aggregates(c *gin.Context) {
	agg, err := h.service.Aggregates(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agg, nil)
}

// Leaderboard godoc
// @Summary Ranked leaderboard
// @Tags Points
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/leaderboard [get]
func (h *PointsHandler) Leaderboard(c *gin.Context) {
	board, hit, err := h.service.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}

// ExportLeaderboard godoc
// @Summary Download leaderboard
// @Tags Points
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /batches/{id}/leaderboard/export [get]
func (h *PointsHandler) ExportLeaderboard(c *gin.Context) {
	file, err := h.service.LeaderboardExport(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Reset godoc
// @Summary Reset every balance to the baseline
// @Tags Points
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/points/reset [post]
func (h *PointsHandler) Reset(c *gin.Context) {
	res, err := h.service.Reset(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Restore godoc
// @Summary Rebuild balances from the ledger
// @Tags Points
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/points/restore [post]
func (h *PointsHandler) Restore(c *gin.Context) {
	res, err := h.service.Restore(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
