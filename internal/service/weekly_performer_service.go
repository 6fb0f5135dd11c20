package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
	"github.com/noah-isme/batch-admin-api/pkg/export"
)

type weeklyBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type weeklyEventReader interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.PointUpdate, error)
}

type weeklySnapshotRepository interface {
	Create(ctx context.Context, snapshot *models.WeeklyBestPerformer) error
	List(ctx context.Context, filter models.WeeklyPerformerFilter) ([]models.WeeklyBestPerformer, int, error)
	ListAll(ctx context.Context, batchID string) ([]models.WeeklyBestPerformer, error)
	FindByID(ctx context.Context, id string) (*models.WeeklyBestPerformer, error)
	Delete(ctx context.Context, id string) error
}

type pointsResetter interface {
	Reset(ctx context.Context, batchID, actor string) (*models.LedgerRepairResult, error)
}

type weeklyWinnerNotifier interface {
	WeeklyWinner(batch *models.Batch, snapshot models.WeeklyBestPerformer)
}

// WeeklyPerformerService snapshots each week's best performer.
type WeeklyPerformerService struct {
	batches   weeklyBatchReader
	events    weeklyEventReader
	snapshots weeklySnapshotRepository
	resetter  pointsResetter
	notifier  weeklyWinnerNotifier
	renderer  *export.Renderer
	validator *validator.Validate
	logger    *zap.Logger
	baseline  int
	loc       *time.Location
	now       func() time.Time
}

// NewWeeklyPerformerService constructs a WeeklyPerformerService.
func NewWeeklyPerformerService(batches weeklyBatchReader, events weeklyEventReader, snapshots weeklySnapshotRepository, resetter pointsResetter, notifier weeklyWinnerNotifier, renderer *export.Renderer, validate *validator.Validate, logger *zap.Logger, cfg PointsConfig) *WeeklyPerformerService {
	if validate == nil {
		validate = validator.New()
	}
	validate = withDomainValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	if cfg.Baseline <= 0 {
		cfg.Baseline = models.DefaultPoints
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &WeeklyPerformerService{
		batches:   batches,
		events:    events,
		snapshots: snapshots,
		resetter:  resetter,
		notifier:  notifier,
		renderer:  renderer,
		validator: validate,
		logger:    logger,
		baseline:  cfg.Baseline,
		loc:       cfg.Location,
		now:       time.Now,
	}
}

func (s *WeeklyPerformerService) loadBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Internal(err, "failed to load batch")
	}
	return batch, nil
}

// SaveAndReset stores the current week's best performer and then resets every balance.
// The two writes are not atomic: when the reset fails the saved snapshot is returned
// alongside a PARTIAL_APPLY error and the reset can be retried on its own.
func (s *WeeklyPerformerService) SaveAndReset(ctx context.Context, batchID, actor string) (*models.WeeklySnapshotResult, error) {
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	winner, ok := PickBestPerformer(batch.Students, s.baseline)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch has no students")
	}
	events, err := s.events.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load point history")
	}

	start, end := WeekWindow(s.now().In(s.loc))
	snapshot := BuildWeeklySnapshot(batch, winner, events, start, end, WeekNumber(start), s.baseline)
	snapshot.CreatedBy = actor
	if err := s.snapshots.Create(ctx, &snapshot); err != nil {
		return nil, appErrors.Internal(err, "failed to save weekly best performer")
	}
	s.logger.Info("weekly best performer saved",
		zap.String("batch_id", batch.ID),
		zap.String("student_id", snapshot.StudentID),
		zap.Int("week", snapshot.WeekNumber),
		zap.Int("final_points", snapshot.FinalPoints),
	)
	if s.notifier != nil {
		s.notifier.WeeklyWinner(batch, snapshot)
	}

	result := &models.WeeklySnapshotResult{Snapshot: snapshot}
	if _, err := s.resetter.Reset(ctx, batch.ID, actor); err != nil {
		s.logger.Error("points reset failed after weekly snapshot", zap.String("batch_id", batch.ID), zap.String("snapshot_id", snapshot.ID), zap.Error(err))
		return result, appErrors.Wrap(err, appErrors.ErrPartialApply.Code, appErrors.ErrPartialApply.Status, "weekly best performer saved but points reset failed; retry the reset")
	}
	result.Reset = true
	return result, nil
}

// SaveManual records an operator-chosen winner for a week without touching any balance.
func (s *WeeklyPerformerService) SaveManual(ctx context.Context, batchID string, req dto.ManualWeeklyPerformerRequest, actor string) (*models.WeeklyBestPerformer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weekly performer payload")
	}
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	student, ok := batch.FindStudent(req.StudentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in batch")
	}

	anchor := s.now().In(s.loc)
	if req.WeekStartDate != "" {
		anchor, err = time.ParseInLocation(isoDate, req.WeekStartDate, s.loc)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "week_start_date must be YYYY-MM-DD")
		}
	}
	events, err := s.events.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load point history")
	}

	start, end := WeekWindow(anchor)
	snapshot := BuildWeeklySnapshot(batch, *student, events, start, end, req.WeekNumber, s.baseline)
	snapshot.Manual = true
	snapshot.CreatedBy = actor
	if err := s.snapshots.Create(ctx, &snapshot); err != nil {
		return nil, appErrors.Internal(err, "failed to save weekly best performer")
	}
	if s.notifier != nil {
		s.notifier.WeeklyWinner(batch, snapshot)
	}
	return &snapshot, nil
}

// List returns snapshots of a batch, latest week first.
func (s *WeeklyPerformerService) List(ctx context.Context, filter models.WeeklyPerformerFilter) ([]models.WeeklyBestPerformer, *models.Pagination, error) {
	snapshots, total, err := s.snapshots.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list weekly best performers")
	}
	return snapshots, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Delete removes a snapshot.
func (s *WeeklyPerformerService) Delete(ctx context.Context, id string) error {
	if err := s.snapshots.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "weekly best performer not found")
		}
		return appErrors.Internal(err, "failed to delete weekly best performer")
	}
	return nil
}

var weeklyPerformerHeaders = []string{"Week", "From", "To", "Student", "Final Points", "Earned", "Lost", "Students", "Average", "Manual"}

// Export renders every snapshot of a batch as CSV or PDF, oldest week first.
func (s *WeeklyPerformerService) Export(ctx context.Context, batchID, format string) (*export.File, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.snapshots.ListAll(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list weekly best performers")
	}

	data := export.Dataset{Headers: weeklyPerformerHeaders, Rows: make([]map[string]string, 0, len(snapshots))}
	for _, sn := range snapshots {
		data.Rows = append(data.Rows, map[string]string{
			"Week":         strconv.Itoa(sn.WeekNumber),
			"From":         sn.WeekStartDate,
			"To":           sn.WeekEndDate,
			"Student":      sn.StudentName,
			"Final Points": strconv.Itoa(sn.FinalPoints),
			"Earned":       strconv.Itoa(sn.PointsEarned),
			"Lost":         strconv.Itoa(sn.PointsLost),
			"Students":     strconv.Itoa(sn.TotalStudents),
			"Average":      strconv.FormatFloat(sn.AveragePoints, 'f', 2, 64),
			"Manual":       strconv.FormatBool(sn.Manual),
		})
	}
	base := fmt.Sprintf("weekly-performers-%s", strings.ToLower(batch.Code))
	file, err := s.renderer.Render(f, data, base, batch.Code+" weekly best performers")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render weekly performer export")
	}
	return file, nil
}
