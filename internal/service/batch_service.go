package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	Delete(ctx context.Context, id string) error
	AddStudent(ctx context.Context, student *models.Student) error
	UpdateStudent(ctx context.Context, student *models.Student) error
	DeleteStudent(ctx context.Context, batchID, studentID string) error
}

type batchFeed interface {
	Publish(ctx context.Context, batchID string) error
	Subscribe(ctx context.Context) (<-chan string, error)
}

// BatchService manages batches and rosters and streams batch snapshots to watchers.
type BatchService struct {
	repo      batchRepository
	feed      batchFeed
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs a BatchService.
func NewBatchService(repo batchRepository, feed batchFeed, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	validate = withDomainValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, feed: feed, cache: cache, validator: validate, logger: logger}
}

// List returns paginated batches without rosters.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a batch with its roster.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// Create adds a batch and its initial roster.
func (s *BatchService) Create(ctx context.Context, req dto.CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	code := strings.TrimSpace(req.Code)
	exists, err := s.repo.ExistsByCode(ctx, code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch code already exists")
	}

	batch := &models.Batch{
		Code:         code,
		GroupName:    req.GroupName,
		Trainers:     req.Trainers,
		Coordinators: req.Coordinators,
		Students:     make([]models.Student, 0, len(req.Students)),
	}
	seen := make(map[string]struct{}, len(req.Students))
	for _, in := range req.Students {
		st := studentFromInput(in)
		if st.ID != "" {
			if _, dup := seen[st.ID]; dup {
				return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student id "+st.ID)
			}
			seen[st.ID] = struct{}{}
		}
		batch.Students = append(batch.Students, st)
	}

	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.String("code", batch.Code), zap.Int("students", len(batch.Students)))
	return batch, nil
}

// Update changes batch metadata.
func (s *BatchService) Update(ctx context.Context, id string, req dto.UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.Code)
	exists, err := s.repo.ExistsByCode(ctx, code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check batch code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch code already exists")
	}

	batch.Code = code
	batch.GroupName = req.GroupName
	batch.Trainers = req.Trainers
	batch.Coordinators = req.Coordinators
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	s.changed(ctx, batch.ID)
	return batch, nil
}

// Delete removes a batch with its roster, ledger and snapshots.
func (s *BatchService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}
	s.changed(ctx, id)
	return nil
}

// AddStudent appends a student to the roster. Student ids are unique within a batch.
func (s *BatchService) AddStudent(ctx context.Context, batchID string, req dto.StudentInput) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	student := studentFromInput(req)
	if student.ID != "" {
		if _, taken := batch.FindStudent(student.ID); taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student id already exists in batch")
		}
	}
	student.BatchID = batch.ID
	if err := s.repo.AddStudent(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add student")
	}
	s.changed(ctx, batch.ID)
	return &student, nil
}

// UpdateStudent edits a student's contact details.
func (s *BatchService) UpdateStudent(ctx context.Context, batchID, studentID string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	student, ok := batch.FindStudent(studentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in batch")
	}
	student.Name = strings.TrimSpace(req.Name)
	student.Email = req.Email
	student.Phone = req.Phone
	if err := s.repo.UpdateStudent(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.changed(ctx, batch.ID)
	return student, nil
}

// DeleteStudent removes a student from the roster. Their ledger events are kept.
func (s *BatchService) DeleteStudent(ctx context.Context, batchID, studentID string) error {
	if err := s.repo.DeleteStudent(ctx, batchID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found in batch")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.changed(ctx, batchID)
	return nil
}

// Watch streams full snapshots of a batch: the current one first, then one per change.
// The channel closes when ctx ends or the batch is deleted.
func (s *BatchService) Watch(ctx context.Context, batchID string) (<-chan *models.Batch, error) {
	initial, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	changes, err := s.feed.Subscribe(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to batch changes")
	}

	out := make(chan *models.Batch, 1)
	out <- initial
	go func() {
		defer close(out)
		for id := range changes {
			if id != batchID {
				continue
			}
			batch, err := s.repo.FindByID(ctx, batchID)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
					s.logger.Warn("failed to reload watched batch", zap.String("batch_id", batchID), zap.Error(err))
					continue
				}
				return
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *BatchService) changed(ctx context.Context, batchID string) {
	s.cache.Invalidate(ctx, leaderboardCacheKey(batchID))
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, batchID); err != nil {
		s.logger.Warn("failed to publish batch change", zap.String("batch_id", batchID), zap.Error(err))
	}
}

func studentFromInput(in dto.StudentInput) models.Student {
	return models.Student{
		ID:     strings.TrimSpace(in.ID),
		Name:   strings.TrimSpace(in.Name),
		Email:  in.Email,
		Phone:  in.Phone,
		Points: in.Points,
	}
}
