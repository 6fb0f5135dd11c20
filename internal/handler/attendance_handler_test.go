package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/internal/service"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

type attendanceServiceMock struct {
	lastRequest   dto.AttendanceUploadRequest
	lastActor     string
	previewCalled bool
	applyCalled   bool
	lastFilter    models.AttendanceSessionFilter
}

func (m *attendanceServiceMock) Preview(ctx context.Context, req dto.AttendanceUploadRequest) (*dto.AttendancePreviewResponse, error) {
	m.previewCalled = true
	m.lastRequest = req
	return &dto.AttendancePreviewResponse{BatchID: req.BatchID}, nil
}

func (m *attendanceServiceMock) Apply(ctx context.Context, req dto.AttendanceUploadRequest, actor string) (*dto.AttendanceApplyResponse, error) {
	m.applyCalled = true
	m.lastRequest = req
	m.lastActor = actor
	return &dto.AttendanceApplyResponse{Session: models.AttendanceSession{ID: "sess-1", BatchID: req.BatchID}}, nil
}

func (m *attendanceServiceMock) List(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSession, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.AttendanceSession{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *attendanceServiceMock) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
}

func (m *attendanceServiceMock) Source(ctx context.Context, id string) (*service.AttendanceSource, error) {
	if id != "sess-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting export was not archived")
	}
	return &service.AttendanceSource{
		Name:        "participants.csv",
		ContentType: "text/csv",
		Size:        int64(len(participantsCSV)),
		Body:        io.NopCloser(strings.NewReader(participantsCSV)),
	}, nil
}

func multipartUpload(t *testing.T, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if content != "" {
		part, err := writer.CreateFormFile("file", "participants.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

const participantsCSV = "Name (Original Name),Join Time\nJane Doe,03/06/2024 10:05:00 AM\n"

func TestAttendanceHandlerPreviewPassesUploadAndWindow(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc, 1024)

	body, contentType := multipartUpload(t, participantsCSV, map[string]string{
		"session_date": "2024-03-06",
		"window_start": "09:00",
		"window_end":   "09:15",
	})
	c, w := newTestContext(http.MethodPost, "/batches/b-1/attendance/preview", body, contentType)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	h.Preview(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, svc.previewCalled)
	assert.Equal(t, "b-1", svc.lastRequest.BatchID)
	assert.Equal(t, "2024-03-06", svc.lastRequest.SessionDate)
	assert.Equal(t, "09:00", svc.lastRequest.WindowStart)
	assert.Equal(t, "09:15", svc.lastRequest.WindowEnd)
	assert.Equal(t, "participants.csv", svc.lastRequest.FileName)
	assert.Equal(t, participantsCSV, string(svc.lastRequest.Data))
}

func TestAttendanceHandlerApplyRecordsActor(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc, 0)

	body, contentType := multipartUpload(t, participantsCSV, nil)
	c, w := newTestContext(http.MethodPost, "/batches/b-1/attendance", body, contentType)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	h.Apply(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, svc.applyCalled)
	assert.Equal(t, "coord@example.com", svc.lastActor)
	assert.Contains(t, w.Body.String(), `"id":"sess-1"`)
}

func TestAttendanceHandlerRequiresFile(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc, 1024)

	body, contentType := multipartUpload(t, "", map[string]string{"session_date": "2024-03-06"})
	c, w := newTestContext(http.MethodPost, "/batches/b-1/attendance/preview", body, contentType)
	h.Preview(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.previewCalled)
}

func TestAttendanceHandlerRejectsOversizedUpload(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc, 64)

	body, contentType := multipartUpload(t, participantsCSV+strings.Repeat("x,10:00\n", 20), nil)
	c, w := newTestContext(http.MethodPost, "/batches/b-1/attendance/preview", body, contentType)
	h.Preview(c)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, svc.previewCalled)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, decodeEnvelope(t, w).Error.Code)
}

func TestAttendanceHandlerListAndGet(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc, 0)

	c, w := newTestContext(http.MethodGet, "/batches/b-1/attendance?date_from=2024-03-01&page=2", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b-1", svc.lastFilter.BatchID)
	assert.Equal(t, "2024-03-01", svc.lastFilter.DateFrom)
	assert.Equal(t, 2, svc.lastFilter.Page)

	c, w = newTestContext(http.MethodGet, "/attendance/nope", nil, "")
	c.Params = gin.Params{{Key: "sessionId", Value: "nope"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandlerSourceDownload(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{}, 0)

	c, w := newTestContext(http.MethodGet, "/attendance/sess-1/source", nil, "")
	c.Params = gin.Params{{Key: "sessionId", Value: "sess-1"}}
	h.Source(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="participants.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, participantsCSV, w.Body.String())

	c, w = newTestContext(http.MethodGet, "/attendance/other/source", nil, "")
	c.Params = gin.Params{{Key: "sessionId", Value: "other"}}
	h.Source(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
