package models

import "time"

// WeeklyBestPerformer is a persisted snapshot of one week's winner.
type WeeklyBestPerformer struct {
	ID            string    `db:"id" json:"id"`
	BatchID       string    `db:"batch_id" json:"batch_id"`
	BatchCode     string    `db:"batch_code" json:"batch_code"`
	StudentID     string    `db:"student_id" json:"student_id"`
	StudentName   string    `db:"student_name" json:"student_name"`
	WeekNumber    int       `db:"week_number" json:"week_number"`
	WeekStartDate string    `db:"week_start_date" json:"week_start_date"`
	WeekEndDate   string    `db:"week_end_date" json:"week_end_date"`
	FinalPoints   int       `db:"final_points" json:"final_points"`
	PointsEarned  int       `db:"points_earned" json:"points_earned"`
	PointsLost    int       `db:"points_lost" json:"points_lost"`
	TotalStudents int       `db:"total_students" json:"total_students"`
	AveragePoints float64   `db:"average_points" json:"average_points"`
	Manual        bool      `db:"manual" json:"manual"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// WeeklySnapshotResult is returned by save-and-reset.
type WeeklySnapshotResult struct {
	Snapshot WeeklyBestPerformer `json:"snapshot"`
	Reset    bool                `json:"reset"`
}

// WeeklyPerformerFilter scopes weekly performer listing.
type WeeklyPerformerFilter struct {
	BatchID  string
	Page     int
	PageSize int
}
