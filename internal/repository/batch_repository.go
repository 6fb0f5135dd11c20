package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

const (
	batchColumns   = "id, code, group_name, trainers, coordinators, created_at, updated_at"
	studentColumns = "id, batch_id, name, email, phone, points, created_at, updated_at"
)

// BatchRepository manages batches and their rosters. It is the only writer of batch_students.points.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs a BatchRepository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches (without rosters) matching the filter.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	base := "FROM batches WHERE 1=1"
	var args []interface{}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(code) LIKE $%d OR LOWER(COALESCE(group_name, '')) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", batchColumns, base, size, offset)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// FindByID loads a batch together with its roster in insertion order.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, "SELECT "+batchColumns+" FROM batches WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find batch: %w", err)
	}
	students, err := r.ListStudents(ctx, id)
	if err != nil {
		return nil, err
	}
	batch.Students = students
	return &batch, nil
}

// ListStudents returns the roster of a batch in insertion order.
func (r *BatchRepository) ListStudents(ctx context.Context, batchID string) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM batch_students WHERE batch_id = $1 ORDER BY position"
	students := make([]models.Student, 0)
	if err := r.db.SelectContext(ctx, &students, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch students: %w", err)
	}
	return students, nil
}

// ExistsByCode checks whether a batch code is taken, optionally ignoring one batch.
func (r *BatchRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM batches WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check batch code: %w", err)
	}
	return true, nil
}

// Create inserts a batch and its initial roster in one transaction.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	normalizeStaff(batch)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create batch: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO batches (id, code, group_name, trainers, coordinators, created_at, updated_at)
        VALUES (:id, :code, :group_name, :trainers, :coordinators, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	for i := range batch.Students {
		st := &batch.Students[i]
		st.BatchID = batch.ID
		if err := r.insertStudent(ctx, tx, st, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create batch: %w", err)
	}
	return nil
}

// Update modifies batch metadata. The roster is left untouched.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	normalizeStaff(batch)
	const query = `UPDATE batches SET code = :code, group_name = :group_name, trainers = :trainers, coordinators = :coordinators, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// Delete removes a batch; rosters, ledgers and snapshots cascade.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM batches WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return requireAffected(res)
}

// AddStudent appends a student to a batch roster.
func (r *BatchRepository) AddStudent(ctx context.Context, student *models.Student) error {
	return r.insertStudent(ctx, r.db, student, time.Now().UTC())
}

func (r *BatchRepository) insertStudent(ctx context.Context, exec sqlx.ExtContext, student *models.Student, now time.Time) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO batch_students (id, batch_id, name, email, phone, points, created_at, updated_at)
        VALUES (:id, :batch_id, :name, :email, :phone, :points, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, student); err != nil {
		return fmt.Errorf("insert batch student: %w", err)
	}
	return nil
}

// UpdateStudent edits a roster entry's contact details. Points are not touched here.
func (r *BatchRepository) UpdateStudent(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batch_students SET name = :name, email = :email, phone = :phone, updated_at = :updated_at WHERE batch_id = :batch_id AND id = :id`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update batch student: %w", err)
	}
	return requireAffected(res)
}

// DeleteStudent removes a roster entry. Its ledger events stay.
func (r *BatchRepository) DeleteStudent(ctx context.Context, batchID, studentID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM batch_students WHERE batch_id = $1 AND id = $2", batchID, studentID)
	if err != nil {
		return fmt.Errorf("delete batch student: %w", err)
	}
	return requireAffected(res)
}

// ApplyPointChange adds change to the cached balance, treating NULL as baseline, and returns the new balance.
func (r *BatchRepository) ApplyPointChange(ctx context.Context, batchID, studentID string, change, baseline int) (int, error) {
	const query = `UPDATE batch_students SET points = COALESCE(points, $3) + $4, updated_at = $5
        WHERE batch_id = $1 AND id = $2 RETURNING points`
	var points int
	if err := r.db.GetContext(ctx, &points, query, batchID, studentID, baseline, change, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("apply point change: %w", err)
	}
	return points, nil
}

// ResetPoints sets every student of a batch to points.
func (r *BatchRepository) ResetPoints(ctx context.Context, batchID string, points int) (int64, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE batch_students SET points = $2, updated_at = $3 WHERE batch_id = $1", batchID, points, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset points: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset points: %w", err)
	}
	return affected, nil
}

// SetPoints writes each balance in one transaction; either all land or none do.
func (r *BatchRepository) SetPoints(ctx context.Context, batchID string, balances []models.StudentPoints) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set points: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	const query = `UPDATE batch_students SET points = $3, updated_at = $4 WHERE batch_id = $1 AND id = $2`
	for _, b := range balances {
		if _, err := tx.ExecContext(ctx, query, batchID, b.StudentID, b.Points, now); err != nil {
			return fmt.Errorf("set points for %s: %w", b.StudentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set points: %w", err)
	}
	return nil
}

func normalizeStaff(batch *models.Batch) {
	if batch.Trainers == nil {
		batch.Trainers = pq.StringArray{}
	}
	if batch.Coordinators == nil {
		batch.Coordinators = pq.StringArray{}
	}
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
