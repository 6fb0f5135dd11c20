package models

import (
	"time"

	"github.com/lib/pq"
)

// DefaultPoints is the balance assumed for a student whose points were never set.
const DefaultPoints = 100

// Batch is a training cohort with its roster and staff.
type Batch struct {
	ID           string         `db:"id" json:"id"`
	Code         string         `db:"code" json:"code"`
	GroupName    *string        `db:"group_name" json:"group_name,omitempty"`
	Trainers     pq.StringArray `db:"trainers" json:"trainers"`
	Coordinators pq.StringArray `db:"coordinators" json:"coordinators"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
	Students     []Student      `db:"-" json:"students"`
}

// Student is a roster entry. Points is a cache over the point_updates log and may be NULL.
type Student struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Points    *int      `db:"points" json:"points"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CurrentPoints returns the cached balance, or baseline when unset.
func (s Student) CurrentPoints(baseline int) int {
	if s.Points == nil {
		return baseline
	}
	return *s.Points
}

// FindStudent returns the roster entry with the given id.
func (b *Batch) FindStudent(id string) (*Student, bool) {
	for i := range b.Students {
		if b.Students[i].ID == id {
			return &b.Students[i], true
		}
	}
	return nil, false
}

// BatchFilter encapsulates allowed search parameters for listing batches.
type BatchFilter struct {
	Search   string
	Page     int
	PageSize int
}
