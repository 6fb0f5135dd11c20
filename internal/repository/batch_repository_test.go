package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

var studentRowColumns = []string{"id", "batch_id", "name", "email", "phone", "points", "created_at", "updated_at"}

func TestBatchRepositoryFindByIDLoadsRoster(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, group_name, trainers, coordinators, created_at, updated_at FROM batches WHERE id = $1")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "group_name", "trainers", "coordinators", "created_at", "updated_at"}).
			AddRow("b1", "BCR69", nil, "{t1@example.com}", "{c1@example.com,c2@example.com}", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_students WHERE batch_id = $1 ORDER BY position")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow("s1", "b1", "Jane Doe", "jane@example.com", nil, 120, now, now).
			AddRow("s2", "b1", "Ravi Kumar", nil, nil, nil, now, now))

	batch, err := repo.FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "BCR69", batch.Code)
	assert.Equal(t, []string{"c1@example.com", "c2@example.com"}, []string(batch.Coordinators))
	require.Len(t, batch.Students, 2)
	assert.Equal(t, 120, *batch.Students[0].Points)
	assert.Nil(t, batch.Students[1].Points)
	assert.Equal(t, 100, batch.Students[1].CurrentPoints(models.DefaultPoints))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryCreateWritesRosterInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO batches").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO batch_students").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO batch_students").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	batch := &models.Batch{Code: "BCR69", Students: []models.Student{{Name: "Jane"}, {Name: "Ravi"}}}
	err := repo.Create(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert batch student")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM batches WHERE LOWER(code) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("BCR69", "b1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByCode(context.Background(), "BCR69", "b1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryApplyPointChange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE batch_students SET points = COALESCE(points, $3) + $4")).
		WithArgs("b1", "s1", 100, -5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(95))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE batch_students SET points = COALESCE(points, $3) + $4")).
		WithArgs("b1", "gone", 100, 5, sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	points, err := repo.ApplyPointChange(context.Background(), "b1", "s1", -5, 100)
	require.NoError(t, err)
	assert.Equal(t, 95, points)

	_, err = repo.ApplyPointChange(context.Background(), "b1", "gone", 5, 100)
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryResetPoints(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_students SET points = $2, updated_at = $3 WHERE batch_id = $1")).
		WithArgs("b1", 100, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.ResetPoints(context.Background(), "b1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositorySetPointsIsAllOrNothing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	update := regexp.QuoteMeta("UPDATE batch_students SET points = $3, updated_at = $4 WHERE batch_id = $1 AND id = $2")
	mock.ExpectBegin()
	mock.ExpectExec(update).WithArgs("b1", "s1", 105, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WithArgs("b1", "s2", 0, sqlmock.AnyArg()).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.SetPoints(context.Background(), "b1", []models.StudentPoints{{StudentID: "s1", Points: 105}, {StudentID: "s2", Points: 0}})
	require.Error(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(update).WithArgs("b1", "s1", 105, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.SetPoints(context.Background(), "b1", []models.StudentPoints{{StudentID: "s1", Points: 105}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryDeleteStudentNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM batch_students WHERE batch_id = $1 AND id = $2")).
		WithArgs("b1", "s9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteStudent(context.Background(), "b1", "s9")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
