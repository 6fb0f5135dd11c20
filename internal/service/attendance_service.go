package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/pkg/config"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

type attendanceBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type attendanceSessionRepository interface {
	CreateSession(ctx context.Context, session *models.AttendanceSession) error
	ListSessions(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSession, int, error)
	FindSession(ctx context.Context, id string) (*models.AttendanceSession, error)
}

type absenceNotifier interface {
	Absences(batch *models.Batch, session *models.AttendanceSession)
}

type uploadArchive interface {
	Save(key string, data []byte) (string, error)
	Open(key string) (io.ReadCloser, int64, error)
	Delete(key string) error
}

// AttendanceSource is an archived meeting export ready to stream back.
type AttendanceSource struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// AttendanceService runs meeting exports through the matcher and stores applied sessions.
type AttendanceService struct {
	batches   attendanceBatchReader
	sessions  attendanceSessionRepository
	matcher   *AttendanceMatcher
	notifier  absenceNotifier
	uploads   uploadArchive
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.AttendanceConfig
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service. A nil uploads archive keeps only the file name.
func NewAttendanceService(batches attendanceBatchReader, sessions attendanceSessionRepository, matcher *AttendanceMatcher, notifier absenceNotifier, uploads uploadArchive, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg config.AttendanceConfig) *AttendanceService {
	if matcher == nil {
		matcher = NewAttendanceMatcher(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	validate = withDomainValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		batches:   batches,
		sessions:  sessions,
		matcher:   matcher,
		notifier:  notifier,
		uploads:   uploads,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

type attendanceRun struct {
	batch  *models.Batch
	date   string
	window dto.AttendanceWindow
	result models.AttendanceMatchResult
}

func (s *AttendanceService) run(ctx context.Context, req dto.AttendanceUploadRequest) (*attendanceRun, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if len(req.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attendance file is empty")
	}

	loc := s.cfg.Location()
	start, end, err := s.resolveWindow(req)
	if err != nil {
		return nil, err
	}

	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Internal(err, "failed to load batch")
	}

	participants, err := ParseParticipants(req.FileName, req.Data)
	if err != nil {
		return nil, err
	}

	date := req.SessionDate
	if date == "" {
		date = s.now().In(loc).Format(isoDate)
	}
	opts := MatcherOptions{
		BatchCode:     batch.Code,
		Window:        AttendanceWindow{Start: start, End: end},
		Location:      loc,
		ExcludedTerms: s.cfg.ExcludedTerms,
	}
	return &attendanceRun{
		batch: batch,
		date:  date,
		window: dto.AttendanceWindow{
			Start:    start.String(),
			End:      end.String(),
			Timezone: loc.String(),
		},
		result: s.matcher.Match(participants, batch.Students, opts),
	}, nil
}

func (s *AttendanceService) resolveWindow(req dto.AttendanceUploadRequest) (ClockTime, ClockTime, error) {
	startRaw, endRaw := req.WindowStart, req.WindowEnd
	if startRaw == "" {
		startRaw = s.cfg.WindowStart
	}
	if endRaw == "" {
		endRaw = s.cfg.WindowEnd
	}
	start, err := ParseClock(startRaw)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid window start %q", startRaw))
	}
	end, err := ParseClock(endRaw)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid window end %q", endRaw))
	}
	if end <= start {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "window end must be after window start")
	}
	return start, end, nil
}

// Preview matches an export against the roster without storing anything.
func (s *AttendanceService) Preview(ctx context.Context, req dto.AttendanceUploadRequest) (*dto.AttendancePreviewResponse, error) {
	run, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttendanceRun("preview", run.result)
	return &dto.AttendancePreviewResponse{
		BatchID:     run.batch.ID,
		BatchCode:   run.batch.Code,
		SessionDate: run.date,
		Window:      run.window,
		Result:      run.result,
	}, nil
}

// Apply matches an export and stores the session with one record per roster student.
func (s *AttendanceService) Apply(ctx context.Context, req dto.AttendanceUploadRequest, actor string) (*dto.AttendanceApplyResponse, error) {
	run, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	session := buildAttendanceSession(run, req.FileName, actor)
	archived := false
	if s.uploads != nil {
		session.ID = uuid.NewString()
		key, err := s.uploads.Save(sourceKey(run.batch.ID, session.ID, req.FileName), req.Data)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to archive meeting export")
		}
		session.SourceFile = key
		archived = true
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		if archived {
			if derr := s.uploads.Delete(session.SourceFile); derr != nil {
				s.logger.Warn("orphaned meeting export", zap.String("key", session.SourceFile), zap.Error(derr))
			}
		}
		return nil, appErrors.Internal(err, "failed to store attendance session")
	}
	s.metrics.RecordAttendanceRun("apply", run.result)
	s.logger.Info("attendance applied",
		zap.String("batch_id", run.batch.ID),
		zap.String("session_id", session.ID),
		zap.Int("present", session.PresentCount),
		zap.Int("late", session.LateCount),
		zap.Int("absent", session.AbsentCount),
		zap.Int("filtered", run.result.FilteredCount),
	)
	if s.notifier != nil {
		s.notifier.Absences(run.batch, session)
	}
	return &dto.AttendanceApplyResponse{Session: *session, Result: run.result}, nil
}

func buildAttendanceSession(run *attendanceRun, fileName, actor string) *models.AttendanceSession {
	session := &models.AttendanceSession{
		BatchID:        run.batch.ID,
		SessionDate:    run.date,
		WindowStart:    run.window.Start,
		WindowEnd:      run.window.End,
		SourceFile:     fileName,
		PresentCount:   len(run.result.Present),
		LateCount:      len(run.result.Late),
		AbsentCount:    len(run.result.Absent),
		UnmatchedCount: len(run.result.UnmatchedParticipants),
		CreatedBy:      actor,
	}

	matches := make(map[string]models.ParticipantMatch, len(run.result.Matched))
	for _, m := range run.result.Matched {
		matches[m.StudentID] = m
	}
	records := make([]models.AttendanceRecord, 0, len(run.batch.Students))
	for _, st := range run.batch.Students {
		rec := models.AttendanceRecord{StudentID: st.ID, StudentName: st.Name, Status: models.AttendanceAbsent}
		if m, ok := matches[st.ID]; ok {
			name, confidence, matchType, seen := m.Participant.FullName, m.Confidence, string(m.MatchType), m.Participant.FirstSeen
			rec.Status = m.Status
			rec.MatchedName = &name
			rec.Confidence = &confidence
			rec.MatchType = &matchType
			if seen != "" {
				rec.FirstSeen = &seen
			}
		}
		records = append(records, rec)
	}
	session.Records = records
	return session
}

// List returns stored sessions of a batch.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSession, *models.Pagination, error) {
	sessions, total, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list attendance sessions")
	}
	return sessions, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get loads one session with its records.
func (s *AttendanceService) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.Internal(err, "failed to load attendance session")
	}
	return session, nil
}

// Source opens the archived meeting export a session was built from.
func (s *AttendanceService) Source(ctx context.Context, id string) (*AttendanceSource, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.uploads == nil || !strings.HasPrefix(session.SourceFile, sourcePrefix) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting export was not archived")
	}
	body, size, err := s.uploads.Open(session.SourceFile)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "meeting export is no longer available")
	}
	name := path.Base(session.SourceFile)
	contentType := "text/csv"
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return &AttendanceSource{Name: name, ContentType: contentType, Size: size, Body: body}, nil
}

const sourcePrefix = "attendance/"

// sourceKey places an export under attendance/<batch>/<session>/<file name>.
func sourceKey(batchID, sessionID, fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		name = "participants.csv"
	}
	return path.Join("attendance", batchID, sessionID, name)
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
