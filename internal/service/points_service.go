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

type pointsBatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	ApplyPointChange(ctx context.Context, batchID, studentID string, change, baseline int) (int, error)
	ResetPoints(ctx context.Context, batchID string, points int) (int64, error)
	SetPoints(ctx context.Context, batchID string, balances []models.StudentPoints) error
}

type pointEventRepository interface {
	Create(ctx context.Context, event *models.PointUpdate) error
	ListByBatch(ctx context.Context, batchID string) ([]models.PointUpdate, error)
	List(ctx context.Context, filter models.PointUpdateFilter) ([]models.PointUpdate, int, error)
}

type batchChangePublisher interface {
	Publish(ctx context.Context, batchID string) error
}

type pointChangeNotifier interface {
	PointChanged(batch *models.Batch, student models.Student, result models.PointChangeResult)
}

// PointsConfig tunes the points service.
type PointsConfig struct {
	Baseline int
	Location *time.Location
}

// PointsService orchestrates the points ledger: event appends, balance maintenance and leaderboards.
type PointsService struct {
	batches   pointsBatchRepository
	events    pointEventRepository
	feed      batchChangePublisher
	cache     *CacheService
	notifier  pointChangeNotifier
	renderer  *export.Renderer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	baseline  int
	loc       *time.Location
	now       func() time.Time
}

// NewPointsService constructs a PointsService.
func NewPointsService(batches pointsBatchRepository, events pointEventRepository, feed batchChangePublisher, cache *CacheService, notifier pointChangeNotifier, renderer *export.Renderer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PointsConfig) *PointsService {
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
	return &PointsService{
		batches:   batches,
		events:    events,
		feed:      feed,
		cache:     cache,
		notifier:  notifier,
		renderer:  renderer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		baseline:  cfg.Baseline,
		loc:       cfg.Location,
		now:       time.Now,
	}
}

func (s *PointsService) loadBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Internal(err, "failed to load batch")
	}
	return batch, nil
}

// RecordChange appends a point event and then moves the student's cached balance.
// An append failure writes nothing. A balance failure after a successful append is
// reported in the result as partial, not as an error; Restore repairs it.
func (s *PointsService) RecordChange(ctx context.Context, batchID string, req dto.RecordPointChangeRequest, actor string) (*models.PointChangeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid point change payload")
	}

	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	student, ok := batch.FindStudent(req.StudentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in batch")
	}

	date := req.Date
	if date == "" {
		date = s.now().In(s.loc).Format(isoDate)
	}
	event := &models.PointUpdate{
		StudentID:    student.ID,
		StudentName:  student.Name,
		BatchID:      batch.ID,
		BatchCode:    batch.Code,
		PointsChange: req.PointsChange,
		Reason:       strings.TrimSpace(req.Reason),
		UpdatedBy:    actor,
		Date:         date,
	}
	if err := s.events.Create(ctx, event); err != nil {
		s.metrics.RecordPointChange("failed")
		return nil, appErrors.Internal(err, "failed to record point change")
	}

	previous := student.CurrentPoints(s.baseline)
	result := &models.PointChangeResult{Event: *event, PreviousPoints: previous}
	updated, err := s.batches.ApplyPointChange(ctx, batch.ID, student.ID, req.PointsChange, s.baseline)
	if err != nil {
		result.Status = models.PointChangePartial
		result.NewPoints = previous
		result.ReconciliationRequired = true
		result.Detail = "point change recorded but balance not updated; restore points from history to reconcile"
		s.logger.Error("point balance update failed after event append",
			zap.String("batch_id", batch.ID),
			zap.String("student_id", student.ID),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	} else {
		result.Status = models.PointChangeApplied
		result.NewPoints = updated
	}
	s.metrics.RecordPointChange(string(result.Status))
	s.afterLedgerWrite(ctx, batch.ID)

	if result.Status == models.PointChangeApplied && s.notifier != nil {
		s.notifier.PointChanged(batch, *student, *result)
	}
	return result, nil
}

func (s *PointsService) afterLedgerWrite(ctx context.Context, batchID string) {
	s.cache.Invalidate(ctx, leaderboardCacheKey(batchID))
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, batchID); err != nil {
		s.logger.Warn("failed to publish batch change", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// History lists point events of a batch, newest first.
func (s *PointsService) History(ctx context.Context, filter models.PointUpdateFilter) ([]models.PointUpdate, *models.Pagination, error) {
	if _, err := s.loadBatch(ctx, filter.BatchID); err != nil {
		return nil, nil, err
	}
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list point history")
	}
	return events, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Aggregates reports a student's earned, lost, net and drift together with their leaderboard rank.
func (s *PointsService) Aggregates(ctx context.Context, batchID, studentID string) (*models.StudentAggregate, error) {
	board, _, err := s.Leaderboard(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for _, entry := range board.Entries {
		if entry.StudentID == studentID {
			agg := entry
			return &agg, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in batch")
}

// Leaderboard ranks the roster by current points and reports whether the cache served it.
// Results are cached until the next ledger or roster write.
func (s *PointsService) Leaderboard(ctx context.Context, batchID string) (*dto.LeaderboardResponse, bool, error) {
	var cached dto.LeaderboardResponse
	if s.cache.Get(ctx, leaderboardCacheKey(batchID), &cached) {
		return &cached, true, nil
	}

	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, false, err
	}
	events, err := s.events.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load point history")
	}
	resp := &dto.LeaderboardResponse{
		BatchID:   batch.ID,
		BatchCode: batch.Code,
		Baseline:  s.baseline,
		Entries:   BuildLeaderboard(batch.Students, events, s.baseline),
	}
	s.cache.Set(ctx, leaderboardCacheKey(batchID), resp)
	return resp, false, nil
}

// Reset puts every student of the batch back to the baseline. The ledger is not touched.
func (s *PointsService) Reset(ctx context.Context, batchID, actor string) (*models.LedgerRepairResult, error) {
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := s.resetBatch(ctx, batch); err != nil {
		return nil, appErrors.Internal(err, "failed to reset points")
	}
	s.logger.Info("points reset", zap.String("batch_id", batch.ID), zap.String("actor", actor), zap.Int("students", len(batch.Students)))
	return &models.LedgerRepairResult{BatchID: batch.ID, Students: ResetPlan(batch.Students, s.baseline)}, nil
}

func (s *PointsService) resetBatch(ctx context.Context, batch *models.Batch) error {
	_, err := s.batches.ResetPoints(ctx, batch.ID, s.baseline)
	s.metrics.RecordLedgerRepair("reset", err)
	if err != nil {
		return err
	}
	s.afterLedgerWrite(ctx, batch.ID)
	return nil
}

// Restore recomputes every balance from the full event log as max(0, baseline + sum of changes).
// All balances are written in one transaction.
func (s *PointsService) Restore(ctx context.Context, batchID, actor string) (*models.LedgerRepairResult, error) {
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load point history")
	}
	plan := RestorePlan(batch.Students, events, s.baseline)
	err = s.batches.SetPoints(ctx, batch.ID, plan)
	s.metrics.RecordLedgerRepair("restore", err)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to restore points")
	}
	s.afterLedgerWrite(ctx, batch.ID)
	s.logger.Info("points restored from history", zap.String("batch_id", batch.ID), zap.String("actor", actor), zap.Int("events", len(events)))
	return &models.LedgerRepairResult{BatchID: batch.ID, Students: plan}, nil
}

var leaderboardHeaders = []string{"Rank", "Student", "Points", "Earned", "Lost", "Net"}

// LeaderboardExport renders the leaderboard as CSV or PDF.
func (s *PointsService) LeaderboardExport(ctx context.Context, batchID, format string) (*export.File, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	board, _, err := s.Leaderboard(ctx, batchID)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: leaderboardHeaders, Rows: make([]map[string]string, 0, len(board.Entries))}
	for _, e := range board.Entries {
		data.Rows = append(data.Rows, map[string]string{
			"Rank":    strconv.Itoa(e.Rank),
			"Student": e.StudentName,
			"Points":  strconv.Itoa(e.CurrentPoints),
			"Earned":  strconv.Itoa(e.Earned),
			"Lost":    strconv.Itoa(e.Lost),
			"Net":     strconv.Itoa(e.Net),
		})
	}
	stamp := s.now().In(s.loc).Format("20060102")
	file, err := s.renderer.Render(f, data, fmt.Sprintf("leaderboard-%s-%s", strings.ToLower(board.BatchCode), stamp), board.BatchCode+" leaderboard")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render leaderboard export")
	}
	return file, nil
}
