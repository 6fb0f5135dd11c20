package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-admin-api/internal/dto"
	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

type fakeSnapshots struct {
	saved     []models.WeeklyBestPerformer
	createErr error
}

func (f *fakeSnapshots) Create(_ context.Context, snapshot *models.WeeklyBestPerformer) error {
	if f.createErr != nil {
		return f.createErr
	}
	snapshot.ID = "snap-" + string(rune('a'+len(f.saved)))
	f.saved = append(f.saved, *snapshot)
	return nil
}

func (f *fakeSnapshots) List(_ context.Context, _ models.WeeklyPerformerFilter) ([]models.WeeklyBestPerformer, int, error) {
	return f.saved, len(f.saved), nil
}

func (f *fakeSnapshots) ListAll(_ context.Context, _ string) ([]models.WeeklyBestPerformer, error) {
	return f.saved, nil
}

func (f *fakeSnapshots) FindByID(_ context.Context, id string) (*models.WeeklyBestPerformer, error) {
	for i := range f.saved {
		if f.saved[i].ID == id {
			return &f.saved[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSnapshots) Delete(_ context.Context, id string) error {
	for i := range f.saved {
		if f.saved[i].ID == id {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeWinnerNotifier struct {
	announced []models.WeeklyBestPerformer
}

func (f *fakeWinnerNotifier) WeeklyWinner(_ *models.Batch, snapshot models.WeeklyBestPerformer) {
	f.announced = append(f.announced, snapshot)
}

type weeklyFixture struct {
	svc       *WeeklyPerformerService
	points    *pointsFixture
	snapshots *fakeSnapshots
	notifier  *fakeWinnerNotifier
}

func newWeeklyFixture() *weeklyFixture {
	points := newPointsFixture()
	points.events.events = []models.PointUpdate{
		{BatchID: "b1", StudentID: "a", PointsChange: 20, Date: "2024-02-28"},
		{BatchID: "b1", StudentID: "a", PointsChange: 10, Date: "2024-03-05"},
		{BatchID: "b1", StudentID: "a", PointsChange: -3, Date: "2024-03-09"},
		{BatchID: "b1", StudentID: "a", PointsChange: -5, Date: "2024-03-10"},
	}
	f := &weeklyFixture{points: points, snapshots: &fakeSnapshots{}, notifier: &fakeWinnerNotifier{}}
	f.svc = NewWeeklyPerformerService(points.batches, points.events, f.snapshots, points.svc, f.notifier, nil, nil, nil, PointsConfig{Baseline: 100, Location: time.UTC})
	// Sunday: belongs to the week of Monday 2024-03-04.
	f.svc.now = func() time.Time { return time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC) }
	return f
}

func TestSaveAndResetSnapshotsWinnerThenResets(t *testing.T) {
	f := newWeeklyFixture()

	res, err := f.svc.SaveAndReset(context.Background(), "b1", "lead@example.com")
	require.NoError(t, err)

	assert.True(t, res.Reset)
	snap := res.Snapshot
	assert.Equal(t, "a", snap.StudentID)
	assert.Equal(t, 130, snap.FinalPoints)
	assert.Equal(t, "2024-03-04", snap.WeekStartDate)
	assert.Equal(t, "2024-03-09", snap.WeekEndDate)
	assert.Equal(t, 10, snap.WeekNumber)
	assert.Equal(t, 10, snap.PointsEarned)
	assert.Equal(t, 3, snap.PointsLost)
	assert.Equal(t, 3, snap.TotalStudents)
	assert.Equal(t, 100.0, snap.AveragePoints)
	assert.False(t, snap.Manual)
	assert.Equal(t, "lead@example.com", snap.CreatedBy)

	require.Len(t, f.snapshots.saved, 1)
	assert.Len(t, f.notifier.announced, 1)
	for _, st := range f.points.batches.batch.Students {
		assert.Equal(t, 100, *st.Points)
	}
}

func TestSaveAndResetReportsPartialWhenResetFails(t *testing.T) {
	f := newWeeklyFixture()
	f.points.batches.resetErr = errors.New("connection reset")

	res, err := f.svc.SaveAndReset(context.Background(), "b1", "lead")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPartialApply))
	require.NotNil(t, res)
	assert.False(t, res.Reset)
	assert.Equal(t, "snap-a", res.Snapshot.ID)
	require.Len(t, f.snapshots.saved, 1)
	assert.Equal(t, 130, *f.points.batches.batch.Students[0].Points)

	// The reset can be retried on its own.
	f.points.batches.resetErr = nil
	_, err = f.points.svc.Reset(context.Background(), "b1", "lead")
	require.NoError(t, err)
	assert.Len(t, f.snapshots.saved, 1)
}

func TestSaveAndResetSnapshotFailureSkipsReset(t *testing.T) {
	f := newWeeklyFixture()
	f.snapshots.createErr = errors.New("disk full")

	_, err := f.svc.SaveAndReset(context.Background(), "b1", "lead")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, 0, f.points.batches.resets)
}

func TestSaveAndResetEmptyRoster(t *testing.T) {
	f := newWeeklyFixture()
	f.points.batches.batch.Students = nil

	_, err := f.svc.SaveAndReset(context.Background(), "b1", "lead")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.snapshots.saved)
}

func TestSaveManualUsesWeekOfGivenDateAndKeepsPoints(t *testing.T) {
	f := newWeeklyFixture()

	snap, err := f.svc.SaveManual(context.Background(), "b1", dto.ManualWeeklyPerformerRequest{StudentID: "a", WeekNumber: 9, WeekStartDate: "2024-02-28"}, "lead")
	require.NoError(t, err)

	assert.True(t, snap.Manual)
	assert.Equal(t, 9, snap.WeekNumber)
	assert.Equal(t, "2024-02-26", snap.WeekStartDate)
	assert.Equal(t, "2024-03-02", snap.WeekEndDate)
	assert.Equal(t, 20, snap.PointsEarned)
	assert.Equal(t, 0, f.points.batches.resets)
	assert.Equal(t, 130, *f.points.batches.batch.Students[0].Points)
}

func TestSaveManualDefaultsToCurrentWeek(t *testing.T) {
	f := newWeeklyFixture()

	snap, err := f.svc.SaveManual(context.Background(), "b1", dto.ManualWeeklyPerformerRequest{StudentID: "b", WeekNumber: 10}, "lead")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", snap.WeekStartDate)
	assert.Equal(t, "Bala", snap.StudentName)
	assert.Equal(t, 70, snap.FinalPoints)
}

func TestSaveManualValidation(t *testing.T) {
	f := newWeeklyFixture()
	ctx := context.Background()

	_, err := f.svc.SaveManual(ctx, "b1", dto.ManualWeeklyPerformerRequest{StudentID: "a", WeekNumber: 0}, "lead")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = f.svc.SaveManual(ctx, "b1", dto.ManualWeeklyPerformerRequest{StudentID: "a", WeekNumber: 60}, "lead")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = f.svc.SaveManual(ctx, "b1", dto.ManualWeeklyPerformerRequest{StudentID: "zz", WeekNumber: 3}, "lead")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestWeeklyPerformerDeleteAndExport(t *testing.T) {
	f := newWeeklyFixture()
	ctx := context.Background()
	_, err := f.svc.SaveAndReset(ctx, "b1", "lead")
	require.NoError(t, err)

	file, err := f.svc.Export(ctx, "b1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "weekly-performers-bcr69.csv", file.Name)
	assert.Contains(t, string(file.Content), "10,2024-03-04,2024-03-09,Asha,130,10,3,3,100.00,false")

	require.NoError(t, f.svc.Delete(ctx, "snap-a"))
	err = f.svc.Delete(ctx, "snap-a")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
