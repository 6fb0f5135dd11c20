package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
	"github.com/noah-isme/batch-admin-api/pkg/response"
)

const watchKeepAlive = 25 * time.Second

type batchService interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, req dto.CreateBatchRequest) (*models.Batch, error)
	Update(ctx context.Context, id string, req dto.UpdateBatchRequest) (*models.Batch, error)
	Delete(ctx context.Context, id string) error
	AddStudent(ctx context.Context, batchID string, req dto.StudentInput) (*models.Student, error)
	UpdateStudent(ctx context.Context, batchID, studentID string, req dto.UpdateStudentRequest) (*models.Student, error)
	DeleteStudent(ctx context.Context, batchID, studentID string) error
	Watch(ctx context.Context, batchID string) (<-chan *models.Batch, error)
}

// BatchHandler exposes batch and roster endpoints.
type BatchHandler struct {
	service batchService
}

// NewBatchHandler creates a new handler.
func NewBatchHandler(svc batchService) *BatchHandler {
	return &BatchHandler{service: svc}
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param search query string false "Code or group search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := models.BatchFilter{
		Search:   c.Query("search"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	batches, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get batch with roster
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Create godoc
// @Summary Create batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	batch, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Update godoc
// @Summary Update batch metadata
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.UpdateBatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	var req dto.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	batch, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Delete godoc
// @Summary Delete batch
// @Tags Batches
// @Param id path string true "Batch ID"
// @Success 204
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddStudent godoc
// @Summary Add student to roster
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.StudentInput true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /batches/{id}/students [post]
func (h *BatchHandler) AddStudent(c *gin.Context) {
	var req dto.StudentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.AddStudent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// UpdateStudent godoc
// @Summary Update roster entry
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param studentId path string true "Student ID"
// @Param payload body dto.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/students/{studentId} [put]
func (h *BatchHandler) UpdateStudent(c *gin.Context) {
	var req dto.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.UpdateStudent(c.Request.Context(), c.Param("id"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// DeleteStudent godoc
// @Summary Remove roster entry
// @Tags Batches
// @Param id path string true "Batch ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /batches/{id}/students/{studentId} [delete]
func (h *BatchHandler) DeleteStudent(c *gin.Context) {
	if err := h.service.DeleteStudent(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Watch godoc
// @Summary Stream batch changes
// @Description Server-sent events; emits the current batch, then every change.
// @Tags Batches
// @Produce text/event-stream
// @Param id path string true "Batch ID"
// @Success 200
// @Router /batches/{id}/watch [get]
func (h *BatchHandler) Watch(c *gin.Context) {
	updates, err := h.service.Watch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(watchKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case batch, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("batch", batch)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
