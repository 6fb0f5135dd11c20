package models

import "time"

// PointUpdate is one immutable entry of the points ledger.
type PointUpdate struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	StudentName  string    `db:"student_name" json:"student_name"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	BatchCode    string    `db:"batch_code" json:"batch_code"`
	PointsChange int       `db:"points_change" json:"points_change"`
	Reason       string    `db:"reason" json:"reason"`
	UpdatedBy    string    `db:"updated_by" json:"updated_by"`
	Date         string    `db:"date" json:"date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PointUpdateFilter scopes ledger listing.
type PointUpdateFilter struct {
	BatchID   string
	StudentID string
	DateFrom  string
	DateTo    string
	Page      int
	PageSize  int
}

// PointChangeStatus tells whether both halves of a point change landed.
type PointChangeStatus string

const (
	// PointChangeApplied means the event was appended and the cached balance updated.
	PointChangeApplied PointChangeStatus = "applied"
	// PointChangePartial means the event was appended but the cached balance was not;
	// a restore from history brings the cache back in line.
	PointChangePartial PointChangeStatus = "partial"
)

// PointChangeResult reports the outcome of recording a point change.
type PointChangeResult struct {
	Event                  PointUpdate       `json:"event"`
	Status                 PointChangeStatus `json:"status"`
	PreviousPoints         int               `json:"previous_points"`
	NewPoints              int               `json:"new_points"`
	ReconciliationRequired bool              `json:"reconciliation_required"`
	Detail                 string            `json:"detail,omitempty"`
}

// StudentAggregate summarises a student's ledger against the cached balance.
type StudentAggregate struct {
	StudentID     string `json:"student_id"`
	StudentName   string `json:"student_name"`
	CurrentPoints int    `json:"current_points"`
	Earned        int    `json:"earned"`
	Lost          int    `json:"lost"`
	Net           int    `json:"net"`
	// Drift is CurrentPoints minus (baseline + Net); non-zero means the cache needs a restore.
	Drift int `json:"drift"`
	Rank  int `json:"rank"`
}

// StudentPoints is a single balance write produced by reset or restore.
type StudentPoints struct {
	StudentID string `db:"id" json:"student_id"`
	Points    int    `db:"points" json:"points"`
}

// LedgerRepairResult reports what a reset or restore wrote.
type LedgerRepairResult struct {
	BatchID  string          `json:"batch_id"`
	Students []StudentPoints `json:"students"`
}
