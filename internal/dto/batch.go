package dto

// StudentInput is a roster entry in batch create and student add payloads.
type StudentInput struct {
	ID     string  `json:"id"`
	Name   string  `json:"name" validate:"required,nonblank"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone  *string `json:"phone,omitempty"`
	Points *int    `json:"points,omitempty" validate:"omitempty,min=0"`
}

// CreateBatchRequest captures POST /batches payload.
type CreateBatchRequest struct {
	Code         string         `json:"code" validate:"required,nonblank"`
	GroupName    *string        `json:"group_name,omitempty"`
	Trainers     []string       `json:"trainers" validate:"dive,email"`
	Coordinators []string       `json:"coordinators" validate:"dive,email"`
	Students     []StudentInput `json:"students" validate:"dive"`
}

// UpdateBatchRequest captures PUT /batches/:id payload. Roster changes go through the student routes.
type UpdateBatchRequest struct {
	Code         string   `json:"code" validate:"required,nonblank"`
	GroupName    *string  `json:"group_name,omitempty"`
	Trainers     []string `json:"trainers" validate:"dive,email"`
	Coordinators []string `json:"coordinators" validate:"dive,email"`
}

// UpdateStudentRequest captures PUT /batches/:id/students/:studentId payload.
// Points are owned by the ledger and cannot be edited here.
type UpdateStudentRequest struct {
	Name  string  `json:"name" validate:"required,nonblank"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
}
