package dto

// ManualWeeklyPerformerRequest captures POST /batches/:id/weekly-performers/manual payload.
type ManualWeeklyPerformerRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	WeekNumber    int    `json:"week_number" validate:"required,min=1,max=53"`
	WeekStartDate string `json:"week_start_date" validate:"omitempty,datetime=2006-01-02"`
}
