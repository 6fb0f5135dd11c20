package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

const pointUpdateColumns = "id, student_id, student_name, batch_id, batch_code, points_change, reason, updated_by, to_char(date, 'YYYY-MM-DD') AS date, created_at"

// PointUpdateRepository is the append-only store of point events. It never updates or deletes rows.
type PointUpdateRepository struct {
	db *sqlx.DB
}

// NewPointUpdateRepository constructs a PointUpdateRepository.
func NewPointUpdateRepository(db *sqlx.DB) *PointUpdateRepository {
	return &PointUpdateRepository{db: db}
}

// Create appends one event.
func (r *PointUpdateRepository) Create(ctx context.Context, event *models.PointUpdate) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO point_updates (id, student_id, student_name, batch_id, batch_code, points_change, reason, updated_by, date, created_at)
        VALUES (:id, :student_id, :student_name, :batch_id, :batch_code, :points_change, :reason, :updated_by, :date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create point update: %w", err)
	}
	return nil
}

// ListByBatch returns every event of a batch in the order they were appended.
func (r *PointUpdateRepository) ListByBatch(ctx context.Context, batchID string) ([]models.PointUpdate, error) {
	query := "SELECT " + pointUpdateColumns + " FROM point_updates WHERE batch_id = $1 ORDER BY created_at ASC, id ASC"
	events := make([]models.PointUpdate, 0)
	if err := r.db.SelectContext(ctx, &events, query, batchID); err != nil {
		return nil, fmt.Errorf("list point updates by batch: %w", err)
	}
	return events, nil
}

// List returns a page of events, newest first.
func (r *PointUpdateRepository) List(ctx context.Context, filter models.PointUpdateFilter) ([]models.PointUpdate, int, error) {
	conditions := []string{"batch_id = $1"}
	args := []interface{}{filter.BatchID}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
	}
	base := "FROM point_updates WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", pointUpdateColumns, base, size, offset)
	events := make([]models.PointUpdate, 0)
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list point updates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count point updates: %w", err)
	}
	return events, total, nil
}
