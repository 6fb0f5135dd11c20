package service

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/batch-admin-api/internal/models"
)

const isoDate = "2006-01-02"

// LedgerTotals is a fold over a student's point events.
type LedgerTotals struct {
	Earned int `json:"earned"`
	Lost   int `json:"lost"`
	Net    int `json:"net"`
}

// DeriveAggregates folds the events that belong to studentID.
func DeriveAggregates(events []models.PointUpdate, studentID string) LedgerTotals {
	var totals LedgerTotals
	for _, ev := range events {
		if ev.StudentID != studentID {
			continue
		}
		totals.add(ev.PointsChange)
	}
	return totals
}

// DeriveWeekAggregates is DeriveAggregates restricted to events dated within [start, end], both YYYY-MM-DD.
func DeriveWeekAggregates(events []models.PointUpdate, studentID, start, end string) LedgerTotals {
	var totals LedgerTotals
	for _, ev := range events {
		if ev.StudentID != studentID || ev.Date < start || ev.Date > end {
			continue
		}
		totals.add(ev.PointsChange)
	}
	return totals
}

func (t *LedgerTotals) add(change int) {
	if change > 0 {
		t.Earned += change
	} else {
		t.Lost += -change
	}
	t.Net += change
}

// RestoredPoints is the balance a student should hold given the full event log.
func RestoredPoints(events []models.PointUpdate, studentID string, baseline int) int {
	points := baseline + DeriveAggregates(events, studentID).Net
	if points < 0 {
		return 0
	}
	return points
}

// RestorePlan computes the restored balance of every roster student, ignoring cached values.
func RestorePlan(students []models.Student, events []models.PointUpdate, baseline int) []models.StudentPoints {
	net := make(map[string]int, len(students))
	for _, ev := range events {
		net[ev.StudentID] += ev.PointsChange
	}
	plan := make([]models.StudentPoints, 0, len(students))
	for _, st := range students {
		points := baseline + net[st.ID]
		if points < 0 {
			points = 0
		}
		plan = append(plan, models.StudentPoints{StudentID: st.ID, Points: points})
	}
	return plan
}

// ResetPlan sets every roster student to baseline.
func ResetPlan(students []models.Student, baseline int) []models.StudentPoints {
	plan := make([]models.StudentPoints, 0, len(students))
	for _, st := range students {
		plan = append(plan, models.StudentPoints{StudentID: st.ID, Points: baseline})
	}
	return plan
}

// RankStudents returns a copy of students ordered by current points descending; ties keep roster order.
func RankStudents(students []models.Student, baseline int) []models.Student {
	ranked := make([]models.Student, len(students))
	copy(ranked, students)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CurrentPoints(baseline) > ranked[j].CurrentPoints(baseline)
	})
	return ranked
}

// BuildLeaderboard ranks the roster and attaches each student's ledger aggregates.
// Students with equal points share a rank.
func BuildLeaderboard(students []models.Student, events []models.PointUpdate, baseline int) []models.StudentAggregate {
	ranked := RankStudents(students, baseline)
	entries := make([]models.StudentAggregate, 0, len(ranked))
	rank := 0
	for i, st := range ranked {
		current := st.CurrentPoints(baseline)
		if i == 0 || current != ranked[i-1].CurrentPoints(baseline) {
			rank = i + 1
		}
		entry := StudentAggregateFor(st, events, baseline)
		entry.Rank = rank
		entries = append(entries, entry)
	}
	return entries
}

// StudentAggregateFor summarises one student's ledger against the cached balance.
func StudentAggregateFor(student models.Student, events []models.PointUpdate, baseline int) models.StudentAggregate {
	totals := DeriveAggregates(events, student.ID)
	current := student.CurrentPoints(baseline)
	return models.StudentAggregate{
		StudentID:     student.ID,
		StudentName:   student.Name,
		CurrentPoints: current,
		Earned:        totals.Earned,
		Lost:          totals.Lost,
		Net:           totals.Net,
		Drift:         current - (baseline + totals.Net),
	}
}

// WeekWindow returns the Monday and Saturday of the week containing now, at midnight in now's location.
// Sunday is the last day of the previous week, so it maps back six days.
func WeekWindow(now time.Time) (time.Time, time.Time) {
	day := int(now.Weekday())
	if day == 0 {
		day = 7
	}
	y, m, d := now.Date()
	start := time.Date(y, m, d-day+1, 0, 0, 0, 0, now.Location())
	end := time.Date(y, m, d-day+6, 0, 0, 0, 0, now.Location())
	return start, end
}

// WeekNumber numbers a week by the ISO week of its Monday.
func WeekNumber(weekStart time.Time) int {
	_, week := weekStart.ISOWeek()
	return week
}

// PickBestPerformer returns the student with the highest current points; the first in roster order wins ties.
func PickBestPerformer(students []models.Student, baseline int) (models.Student, bool) {
	if len(students) == 0 {
		return models.Student{}, false
	}
	best := students[0]
	for _, st := range students[1:] {
		if st.CurrentPoints(baseline) > best.CurrentPoints(baseline) {
			best = st
		}
	}
	return best, true
}

// AveragePoints is the mean current balance of the roster, rounded to two decimals.
func AveragePoints(students []models.Student, baseline int) float64 {
	if len(students) == 0 {
		return 0
	}
	total := 0
	for _, st := range students {
		total += st.CurrentPoints(baseline)
	}
	return math.Round(float64(total)/float64(len(students))*100) / 100
}

// BuildWeeklySnapshot assembles the snapshot row for winner over the window [start, end].
func BuildWeeklySnapshot(batch *models.Batch, winner models.Student, events []models.PointUpdate, start, end time.Time, weekNumber, baseline int) models.WeeklyBestPerformer {
	from, to := start.Format(isoDate), end.Format(isoDate)
	week := DeriveWeekAggregates(events, winner.ID, from, to)
	return models.WeeklyBestPerformer{
		BatchID:       batch.ID,
		BatchCode:     batch.Code,
		StudentID:     winner.ID,
		StudentName:   winner.Name,
		WeekNumber:    weekNumber,
		WeekStartDate: from,
		WeekEndDate:   to,
		FinalPoints:   winner.CurrentPoints(baseline),
		PointsEarned:  week.Earned,
		PointsLost:    week.Lost,
		TotalStudents: len(batch.Students),
		AveragePoints: AveragePoints(batch.Students, baseline),
	}
}
