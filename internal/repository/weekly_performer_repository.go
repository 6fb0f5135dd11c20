package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

const weeklyPerformerColumns = `id, batch_id, batch_code, student_id, student_name, week_number,
        to_char(week_start_date, 'YYYY-MM-DD') AS week_start_date, to_char(week_end_date, 'YYYY-MM-DD') AS week_end_date,
        final_points, points_earned, points_lost, total_students, average_points, manual, created_by, created_at`

// WeeklyPerformerRepository stores weekly best performer snapshots. Rows are never updated.
type WeeklyPerformerRepository struct {
	db *sqlx.DB
}

// NewWeeklyPerformerRepository constructs a WeeklyPerformerRepository.
func NewWeeklyPerformerRepository(db *sqlx.DB) *WeeklyPerformerRepository {
	return &WeeklyPerformerRepository{db: db}
}

// Create persists a snapshot.
func (r *WeeklyPerformerRepository) Create(ctx context.Context, snapshot *models.WeeklyBestPerformer) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO weekly_best_performers (id, batch_id, batch_code, student_id, student_name, week_number, week_start_date, week_end_date,
        final_points, points_earned, points_lost, total_students, average_points, manual, created_by, created_at)
        VALUES (:id, :batch_id, :batch_code, :student_id, :student_name, :week_number, :week_start_date, :week_end_date,
        :final_points, :points_earned, :points_lost, :total_students, :average_points, :manual, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("create weekly performer: %w", err)
	}
	return nil
}

// List returns a page of snapshots for a batch, latest week first.
func (r *WeeklyPerformerRepository) List(ctx context.Context, filter models.WeeklyPerformerFilter) ([]models.WeeklyBestPerformer, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM weekly_best_performers WHERE batch_id = $1 ORDER BY week_start_date DESC, created_at DESC LIMIT %d OFFSET %d", weeklyPerformerColumns, size, offset)
	snapshots := make([]models.WeeklyBestPerformer, 0)
	if err := r.db.SelectContext(ctx, &snapshots, query, filter.BatchID); err != nil {
		return nil, 0, fmt.Errorf("list weekly performers: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM weekly_best_performers WHERE batch_id = $1", filter.BatchID); err != nil {
		return nil, 0, fmt.Errorf("count weekly performers: %w", err)
	}
	return snapshots, total, nil
}

// ListAll returns every snapshot of a batch, oldest week first, for exports.
func (r *WeeklyPerformerRepository) ListAll(ctx context.Context, batchID string) ([]models.WeeklyBestPerformer, error) {
	query := "SELECT " + weeklyPerformerColumns + " FROM weekly_best_performers WHERE batch_id = $1 ORDER BY week_start_date ASC, created_at ASC"
	snapshots := make([]models.WeeklyBestPerformer, 0)
	if err := r.db.SelectContext(ctx, &snapshots, query, batchID); err != nil {
		return nil, fmt.Errorf("list all weekly performers: %w", err)
	}
	return snapshots, nil
}

// FindByID fetches one snapshot.
func (r *WeeklyPerformerRepository) FindByID(ctx context.Context, id string) (*models.WeeklyBestPerformer, error) {
	var snapshot models.WeeklyBestPerformer
	if err := r.db.GetContext(ctx, &snapshot, "SELECT "+weeklyPerformerColumns+" FROM weekly_best_performers WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find weekly performer: %w", err)
	}
	return &snapshot, nil
}

// Delete removes a snapshot.
func (r *WeeklyPerformerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM weekly_best_performers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete weekly performer: %w", err)
	}
	return requireAffected(res)
}
