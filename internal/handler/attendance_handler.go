package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/internal/service"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
	"github.com/noah-isme/batch-admin-api/pkg/response"
)

const defaultMaxUploadBytes int64 = 5 << 20

type attendanceService interface {
	Preview(ctx context.Context, req dto.AttendanceUploadRequest) (*dto.AttendancePreviewResponse, error)
	Apply(ctx context.Context, req dto.AttendanceUploadRequest, actor string) (*dto.AttendanceApplyResponse, error)
	List(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSession, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.AttendanceSession, error)
	Source(ctx context.Context, id string) (*service.AttendanceSource, error)
}

// AttendanceHandler turns uploaded meeting exports into attendance sessions.
type AttendanceHandler struct {
	service        attendanceService
	maxUploadBytes int64
}

// NewAttendanceHandler constructs the handler. maxUploadBytes <= 0 uses 5 MiB.
func NewAttendanceHandler(svc attendanceService, maxUploadBytes int64) *AttendanceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &AttendanceHandler{service: svc, maxUploadBytes: maxUploadBytes}
}

// Preview godoc
// @Summary Preview attendance from a meeting export
// @Description Matches the export against the roster without storing anything.
// @Tags Attendance
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param file formData file true "Participant CSV"
// @Param session_date formData string false "Session date (YYYY-MM-DD)"
// @Param window_start formData string false "On-time window start (HH:MM)"
// @Param window_end formData string false "On-time window end (HH:MM)"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/attendance/preview [post]
func (h *AttendanceHandler) Preview(c *gin.Context) {
	req, err := h.uploadRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Apply godoc
// @Summary Store attendance from a meeting export
// @Tags Attendance
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Batch ID"
// @Param file formData file true "Participant CSV"
// @Param session_date formData string false "Session date (YYYY-MM-DD)"
// @Param window_start formData string false "On-time window start (HH:MM)"
// @Param window_end formData string false "On-time window end (HH:MM)"
// @Success 201 {object} response.Envelope
// @Router /batches/{id}/attendance [post]
func (h *AttendanceHandler) Apply(c *gin.Context) {
	req, err := h.uploadRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Apply(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List attendance sessions
// @Tags Attendance
// @Produce json
// @Param id path string true "Batch ID"
// @Param date_from query string false "From date"
// @Param date_to query string false "To date"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter := models.AttendanceSessionFilter{
		BatchID:  c.Param("id"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	sessions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get attendance session with records
// @Tags Attendance
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{sessionId} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Source godoc
// @Summary Download the meeting export a session was built from
// @Tags Attendance
// @Produce text/csv
// @Param sessionId path string true "Session ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /attendance/{sessionId}/source [get]
func (h *AttendanceHandler) Source(c *gin.Context) {
	src, err := h.service.Source(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer src.Body.Close()

	c.DataFromReader(http.StatusOK, src.Size, src.ContentType, src.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=\"%s\"", src.Name),
	})
}

func (h *AttendanceHandler) uploadRequest(c *gin.Context) (dto.AttendanceUploadRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<16))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dto.AttendanceUploadRequest{}, h.tooLarge()
		}
		return dto.AttendanceUploadRequest{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > h.maxUploadBytes {
		return dto.AttendanceUploadRequest{}, h.tooLarge()
	}

	src, err := fileHeader.Open()
	if err != nil {
		return dto.AttendanceUploadRequest{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		return dto.AttendanceUploadRequest{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	if int64(len(data)) > h.maxUploadBytes {
		return dto.AttendanceUploadRequest{}, h.tooLarge()
	}

	return dto.AttendanceUploadRequest{
		BatchID:     c.Param("id"),
		SessionDate: c.PostForm("session_date"),
		WindowStart: c.PostForm("window_start"),
		WindowEnd:   c.PostForm("window_end"),
		FileName:    fileHeader.Filename,
		Data:        data,
	}, nil
}

func (h *AttendanceHandler) tooLarge() error {
	return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
}
