package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

const attendanceSessionColumns = `id, batch_id, to_char(session_date, 'YYYY-MM-DD') AS session_date, window_start, window_end, source_file,
        present_count, late_count, absent_count, unmatched_count, created_by, created_at`

// AttendanceRepository persists applied attendance sessions.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateSession stores a session and all of its records atomically.
func (r *AttendanceRepository) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance session: %w", err)
	}
	defer tx.Rollback()

	const sessionQuery = `INSERT INTO attendance_sessions (id, batch_id, session_date, window_start, window_end, source_file,
        present_count, late_count, absent_count, unmatched_count, created_by, created_at)
        VALUES (:id, :batch_id, :session_date, :window_start, :window_end, :source_file,
        :present_count, :late_count, :absent_count, :unmatched_count, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, sessionQuery, session); err != nil {
		return fmt.Errorf("create attendance session: %w", err)
	}

	const recordQuery = `INSERT INTO attendance_records (id, session_id, student_id, student_name, status, matched_name, confidence, match_type, first_seen)
        VALUES (:id, :session_id, :student_id, :student_name, :status, :matched_name, :confidence, :match_type, :first_seen)`
	for i := range session.Records {
		rec := &session.Records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.SessionID = session.ID
		if _, err := tx.NamedExecContext(ctx, recordQuery, rec); err != nil {
			return fmt.Errorf("create attendance record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance session: %w", err)
	}
	return nil
}

// ListSessions returns a page of sessions for a batch, newest first.
func (r *AttendanceRepository) ListSessions(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSession, int, error) {
	conditions := []string{"batch_id = $1"}
	args := []interface{}{filter.BatchID}
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
	}
	base := "FROM attendance_sessions WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY session_date DESC, created_at DESC LIMIT %d OFFSET %d", attendanceSessionColumns, base, size, offset)
	sessions := make([]models.AttendanceSession, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance sessions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance sessions: %w", err)
	}
	return sessions, total, nil
}

// FindSession loads a session with its records.
func (r *AttendanceRepository) FindSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, "SELECT "+attendanceSessionColumns+" FROM attendance_sessions WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance session: %w", err)
	}
	const recordsQuery = `SELECT id, session_id, student_id, student_name, status, matched_name, confidence, match_type, first_seen
        FROM attendance_records WHERE session_id = $1 ORDER BY status, student_name`
	records := make([]models.AttendanceRecord, 0)
	if err := r.db.SelectContext(ctx, &records, recordsQuery, id); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	session.Records = records
	return &session, nil
}
