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

var pointUpdateRowColumns = []string{"id", "student_id", "student_name", "batch_id", "batch_code", "points_change", "reason", "updated_by", "date", "created_at"}

func TestPointUpdateRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPointUpdateRepository(db)

	mock.ExpectExec("INSERT INTO point_updates").WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.PointUpdate{StudentID: "s1", StudentName: "Jane", BatchID: "b1", BatchCode: "BCR69", PointsChange: 10, Reason: "quiz", UpdatedBy: "coord@example.com", Date: "2024-03-04"}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointUpdateRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPointUpdateRepository(db)

	now := time.Now()
	base := "FROM point_updates WHERE batch_id = $1 AND student_id = $2 AND date >= $3"
	mock.ExpectQuery(regexp.QuoteMeta(base + " ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 10")).
		WithArgs("b1", "s1", "2024-03-01").
		WillReturnRows(sqlmock.NewRows(pointUpdateRowColumns).
			AddRow("e1", "s1", "Jane", "b1", "BCR69", -5, "late", "coord@example.com", "2024-03-04", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) " + base)).
		WithArgs("b1", "s1", "2024-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	events, total, err := repo.List(context.Background(), models.PointUpdateFilter{BatchID: "b1", StudentID: "s1", DateFrom: "2024-03-01", Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, -5, events[0].PointsChange)
	assert.Equal(t, "2024-03-04", events[0].Date)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointUpdateRepositoryListByBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPointUpdateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM point_updates WHERE batch_id = $1 ORDER BY created_at ASC, id ASC")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(pointUpdateRowColumns).
			AddRow("e1", "s1", "Jane", "b1", "BCR69", 10, "quiz", "c", "2024-03-04", now).
			AddRow("e2", "s1", "Jane", "b1", "BCR69", -5, "late", "c", "2024-03-05", now))

	events, err := repo.ListByBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
