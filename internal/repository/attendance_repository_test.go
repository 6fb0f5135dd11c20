package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

func TestAttendanceRepositoryCreateSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	session := &models.AttendanceSession{
		BatchID:     "b1",
		SessionDate: "2024-03-04",
		WindowStart: "10:00",
		WindowEnd:   "10:10",
		CreatedBy:   "coord@example.com",
		Records: []models.AttendanceRecord{
			{StudentID: "s1", StudentName: "Jane", Status: models.AttendancePresent},
			{StudentID: "s2", StudentName: "Ravi", Status: models.AttendanceAbsent},
		},
	}
	require.NoError(t, repo.CreateSession(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	for _, rec := range session.Records {
		assert.Equal(t, session.ID, rec.SessionID)
		assert.NotEmpty(t, rec.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE id = $1")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "batch_id", "session_date", "window_start", "window_end", "source_file", "present_count", "late_count", "absent_count", "unmatched_count", "created_by", "created_at"}).
			AddRow("sess-1", "b1", "2024-03-04", "10:00", "10:10", "meeting.csv", 1, 0, 1, 0, "coord@example.com", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE session_id = $1")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "student_id", "student_name", "status", "matched_name", "confidence", "match_type", "first_seen"}).
			AddRow("r1", "sess-1", "s1", "Jane", "present", "Jane Doe", 1.0, "exact", "10:02 AM").
			AddRow("r2", "sess-1", "s2", "Ravi", "absent", nil, nil, nil, nil))

	session, err := repo.FindSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, session.Records, 2)
	assert.Equal(t, "Jane Doe", *session.Records[0].MatchedName)
	assert.Nil(t, session.Records[1].Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}
