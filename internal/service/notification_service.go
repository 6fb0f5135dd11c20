package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/pkg/config"
	"github.com/noah-isme/batch-admin-api/pkg/jobs"
	"github.com/noah-isme/batch-admin-api/pkg/notify"
)

// Notification job types.
const (
	NotificationPointChange  = "point_change"
	NotificationWeeklyWinner = "weekly_winner"
	NotificationAbsence      = "absence"
)

// NotificationService turns ledger and attendance outcomes into emails delivered from a background queue.
// Every method is fire-and-forget: delivery problems are logged and counted, never returned.
type NotificationService struct {
	sender  notify.Sender
	queue   *jobs.Queue
	enabled bool
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService wires a sender behind a worker queue. Call Start before use.
func NewNotificationService(sender notify.Sender, cfg config.NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		sender:  sender,
		enabled: cfg.Enabled && sender != nil,
		metrics: metrics,
		logger:  logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
		OnResult: func(job jobs.Job, err error) {
			metrics.RecordNotification(job.Type, err)
		},
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Stop()
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}
	return s.sender.Send(ctx, msg)
}

func (s *NotificationService) enqueue(kind string, msg notify.Message) {
	if s == nil || !s.enabled {
		return
	}
	if len(msg.To) == 0 {
		s.logger.Debug("notification skipped, no recipients", zap.String("type", kind))
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: kind, Payload: msg}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", kind), zap.Error(err))
		s.metrics.RecordNotification(kind, err)
	}
}

// PointChanged tells the student about a recorded point change.
func (s *NotificationService) PointChanged(batch *models.Batch, student models.Student, result models.PointChangeResult) {
	if student.Email == nil {
		return
	}
	verb := "earned"
	amount := result.Event.PointsChange
	if amount < 0 {
		verb = "lost"
		amount = -amount
	}
	text := fmt.Sprintf("Hi %s,\n\nYou %s %d point(s) in batch %s on %s.\nReason: %s\nYour balance is now %d.\n",
		student.Name, verb, amount, batch.Code, result.Event.Date, result.Event.Reason, result.NewPoints)
	s.enqueue(NotificationPointChange, notify.Message{
		To:      notify.Recipients(*student.Email),
		Subject: fmt.Sprintf("%s: points %s", batch.Code, verb),
		Text:    text,
	})
}

// WeeklyWinner announces a weekly best performer to the batch coordinators.
func (s *NotificationService) WeeklyWinner(batch *models.Batch, snapshot models.WeeklyBestPerformer) {
	text := fmt.Sprintf("Week %d (%s to %s) best performer for %s: %s with %d points.\nEarned %d, lost %d. Batch average %.2f over %d students.\n",
		snapshot.WeekNumber, snapshot.WeekStartDate, snapshot.WeekEndDate, batch.Code, snapshot.StudentName,
		snapshot.FinalPoints, snapshot.PointsEarned, snapshot.PointsLost, snapshot.AveragePoints, snapshot.TotalStudents)
	s.enqueue(NotificationWeeklyWinner, notify.Message{
		To:      notify.Recipients(batch.Coordinators...),
		Subject: fmt.Sprintf("%s: week %d best performer", batch.Code, snapshot.WeekNumber),
		Text:    text,
	})
}

// Absences emails every absent student of an applied session that has an address.
func (s *NotificationService) Absences(batch *models.Batch, session *models.AttendanceSession) {
	for _, rec := range session.Records {
		if rec.Status != models.AttendanceAbsent {
			continue
		}
		student, ok := batch.FindStudent(rec.StudentID)
		if !ok || student.Email == nil || strings.TrimSpace(*student.Email) == "" {
			continue
		}
		s.enqueue(NotificationAbsence, notify.Message{
			To:      notify.Recipients(*student.Email),
			Subject: fmt.Sprintf("%s: missed session on %s", batch.Code, session.SessionDate),
			Text: fmt.Sprintf("Hi %s,\n\nYou were marked absent from the %s session of %s.\nReply to your coordinator if this is a mistake.\n",
				student.Name, session.SessionDate, batch.Code),
		})
	}
}
