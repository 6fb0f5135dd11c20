package dto

import "github.com/noah-isme/batch-admin-api/internal/models"

// RecordPointChangeRequest captures POST /batches/:id/points payload.
type RecordPointChangeRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	PointsChange int    `json:"points_change" validate:"required"`
	Reason       string `json:"reason" validate:"required,nonblank"`
	Date         string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// LeaderboardResponse lists ranked students with their ledger aggregates.
type LeaderboardResponse struct {
	BatchID   string                    `json:"batch_id"`
	BatchCode string                    `json:"batch_code"`
	Baseline  int                       `json:"baseline"`
	Entries   []models.StudentAggregate `json:"entries"`
}
