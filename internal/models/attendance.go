package models

import (
	"time"

	"github.com/noah-isme/batch-admin-api/pkg/namematch"
)

// AttendanceStatus classifies a roster student for one session.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceLate, AttendanceAbsent:
		return true
	default:
		return false
	}
}

// Participant is one row of a meeting export. It is never persisted as-is.
type Participant struct {
	FullName  string `json:"full_name"`
	FirstSeen string `json:"first_seen"`
}

// ParticipantMatch pairs a participant with the roster student it resolved to.
type ParticipantMatch struct {
	Participant Participant         `json:"participant"`
	StudentID   string              `json:"student_id"`
	StudentName string              `json:"student_name"`
	Confidence  float64             `json:"confidence"`
	MatchType   namematch.MatchType `json:"match_type"`
	Status      AttendanceStatus    `json:"status"`
}

// AttendanceMatchResult is the outcome of matching an export against a roster.
type AttendanceMatchResult struct {
	Matched               []ParticipantMatch `json:"matched"`
	UnmatchedParticipants []Participant      `json:"unmatched_participants"`
	UnmatchedStudents     []Student          `json:"unmatched_students"`
	Present               []string           `json:"present"`
	Late                  []string           `json:"late"`
	Absent                []string           `json:"absent"`
	FilteredCount         int                `json:"filtered_count"`
}

// AttendanceSession is a persisted attendance run for one batch and day.
type AttendanceSession struct {
	ID             string             `db:"id" json:"id"`
	BatchID        string             `db:"batch_id" json:"batch_id"`
	SessionDate    string             `db:"session_date" json:"session_date"`
	WindowStart    string             `db:"window_start" json:"window_start"`
	WindowEnd      string             `db:"window_end" json:"window_end"`
	SourceFile     string             `db:"source_file" json:"source_file"`
	PresentCount   int                `db:"present_count" json:"present_count"`
	LateCount      int                `db:"late_count" json:"late_count"`
	AbsentCount    int                `db:"absent_count" json:"absent_count"`
	UnmatchedCount int                `db:"unmatched_count" json:"unmatched_count"`
	CreatedBy      string             `db:"created_by" json:"created_by"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	Records        []AttendanceRecord `db:"-" json:"records,omitempty"`
}

// AttendanceRecord is the per-student outcome of a session.
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	SessionID   string           `db:"session_id" json:"session_id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Status      AttendanceStatus `db:"status" json:"status"`
	MatchedName *string          `db:"matched_name" json:"matched_name,omitempty"`
	Confidence  *float64         `db:"confidence" json:"confidence,omitempty"`
	MatchType   *string          `db:"match_type" json:"match_type,omitempty"`
	FirstSeen   *string          `db:"first_seen" json:"first_seen,omitempty"`
}

// AttendanceSessionFilter scopes session listing.
type AttendanceSessionFilter struct {
	BatchID  string
	DateFrom string
	DateTo   string
	Page     int
	PageSize int
}
