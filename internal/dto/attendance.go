package dto

import "github.com/noah-isme/batch-admin-api/internal/models"

// AttendanceUploadRequest carries an uploaded meeting export and its classification window.
type AttendanceUploadRequest struct {
	BatchID     string `validate:"required"`
	SessionDate string `validate:"omitempty,datetime=2006-01-02"`
	WindowStart string `validate:"omitempty,datetime=15:04"`
	WindowEnd   string `validate:"omitempty,datetime=15:04"`
	FileName    string
	Data        []byte
}

// AttendanceWindow echoes the window used to classify participants.
type AttendanceWindow struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// AttendancePreviewResponse is returned by the preview route; nothing is persisted.
type AttendancePreviewResponse struct {
	BatchID     string                       `json:"batch_id"`
	BatchCode   string                       `json:"batch_code"`
	SessionDate string                       `json:"session_date"`
	Window      AttendanceWindow             `json:"window"`
	Result      models.AttendanceMatchResult `json:"result"`
}

// AttendanceApplyResponse is returned once a session has been stored.
type AttendanceApplyResponse struct {
	Session models.AttendanceSession     `json:"session"`
	Result  models.AttendanceMatchResult `json:"result"`
}
