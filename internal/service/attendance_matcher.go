package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/pkg/namematch"
)

// DefaultExcludedTerms mark meeting participants that are not people (recorders, transcription bots).
var DefaultExcludedTerms = []string{"ai", "bot", "notetaker", "system"}

// NameCandidate is a participant together with the name it is matched on.
type NameCandidate struct {
	Participant models.Participant
	Normalized  string
}

// Assignment binds a participant to a roster student.
type Assignment struct {
	Participant models.Participant
	Student     models.Student
	Score       namematch.Score
}

// Assigner decides which participant resolves to which roster student.
type Assigner interface {
	Assign(candidates []NameCandidate, roster []models.Student) (assigned []Assignment, unmatched []models.Participant, unused []models.Student)
}

// GreedyAssigner walks participants in input order and gives each the best still-unused student.
// The result depends on participant order.
type GreedyAssigner struct{}

// Assign implements Assigner.
func (GreedyAssigner) Assign(candidates []NameCandidate, roster []models.Student) ([]Assignment, []models.Participant, []models.Student) {
	rosterNames := make([]string, len(roster))
	for i, st := range roster {
		rosterNames[i] = namematch.Normalize(st.Name)
	}
	used := make([]bool, len(roster))

	assigned := make([]Assignment, 0, len(candidates))
	unmatched := make([]models.Participant, 0)
	for _, cand := range candidates {
		bestIdx := -1
		var best namematch.Score
		for i := range roster {
			if used[i] {
				continue
			}
			score := namematch.CompareNormalized(cand.Normalized, rosterNames[i])
			if score.Confidence > best.Confidence {
				best = score
				bestIdx = i
			}
		}
		if bestIdx < 0 || best.Confidence <= namematch.FuzzyThreshold {
			unmatched = append(unmatched, cand.Participant)
			continue
		}
		used[bestIdx] = true
		assigned = append(assigned, Assignment{Participant: cand.Participant, Student: roster[bestIdx], Score: best})
	}

	unused := make([]models.Student, 0)
	for i, st := range roster {
		if !used[i] {
			unused = append(unused, st)
		}
	}
	return assigned, unmatched, unused
}

// ClockTime is a time of day with second precision.
type ClockTime int

// ParseClock parses "HH:MM" or "HH:MM:SS" in 24h form.
func ParseClock(value string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return clockOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q", value)
}

func clockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// String renders c as HH:MM:SS.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, int(c)%3600/60, int(c)%60)
}

// AttendanceWindow is the on-time interval [Start, End) of a session.
type AttendanceWindow struct {
	Start ClockTime
	End   ClockTime
}

// Contains reports whether c falls inside the window.
func (w AttendanceWindow) Contains(c ClockTime) bool {
	return c >= w.Start && c < w.End
}

var joinTimeLayouts = []string{
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3:04:05PM",
	"15:04",
	"15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"01/02/2006 3:04:05 PM",
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// ParseJoinTime extracts the time of day from a raw export timestamp.
// Timestamps carrying a zone are converted to loc before the clock is read.
func ParseJoinTime(raw string, loc *time.Location) (ClockTime, bool) {
	value := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if value == "" {
		return 0, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range joinTimeLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 {
			t = t.In(loc)
		}
		return clockOf(t), true
	}
	return 0, false
}

// MatcherOptions tunes a matching run.
type MatcherOptions struct {
	BatchCode     string
	Window        AttendanceWindow
	Location      *time.Location
	ExcludedTerms []string
}

// AttendanceMatcher resolves meeting participants against a roster and classifies attendance.
type AttendanceMatcher struct {
	assigner Assigner
}

// NewAttendanceMatcher constructs a matcher; a nil assigner selects GreedyAssigner.
func NewAttendanceMatcher(assigner Assigner) *AttendanceMatcher {
	if assigner == nil {
		assigner = GreedyAssigner{}
	}
	return &AttendanceMatcher{assigner: assigner}
}

// Match runs filtering, assignment and window classification over one export.
func (m *AttendanceMatcher) Match(participants []models.Participant, roster []models.Student, opts MatcherOptions) models.AttendanceMatchResult {
	excluded := opts.ExcludedTerms
	if excluded == nil {
		excluded = DefaultExcludedTerms
	}

	result := models.AttendanceMatchResult{
		Matched:               make([]models.ParticipantMatch, 0),
		UnmatchedParticipants: make([]models.Participant, 0),
		UnmatchedStudents:     make([]models.Student, 0),
		Present:               make([]string, 0),
		Late:                  make([]string, 0),
		Absent:                make([]string, 0),
	}

	candidates := make([]NameCandidate, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		normalized := namematch.Normalize(namematch.StripBatchCode(p.FullName, opts.BatchCode))
		if isExcludedParticipant(normalized, excluded) {
			result.FilteredCount++
			continue
		}
		if normalized == "" {
			result.UnmatchedParticipants = append(result.UnmatchedParticipants, p)
			continue
		}
		// A rejoin shows up as a second row; the first row carries the real join time.
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		candidates = append(candidates, NameCandidate{Participant: p, Normalized: normalized})
	}

	assigned, unmatched, unused := m.assigner.Assign(candidates, roster)
	result.UnmatchedParticipants = append(result.UnmatchedParticipants, unmatched...)
	result.UnmatchedStudents = append(result.UnmatchedStudents, unused...)

	for _, a := range assigned {
		status := classifyJoin(a.Participant.FirstSeen, opts.Window, opts.Location)
		result.Matched = append(result.Matched, models.ParticipantMatch{
			Participant: a.Participant,
			StudentID:   a.Student.ID,
			StudentName: a.Student.Name,
			Confidence:  a.Score.Confidence,
			MatchType:   a.Score.Type,
			Status:      status,
		})
		if status == models.AttendanceLate {
			result.Late = append(result.Late, a.Student.ID)
		} else {
			result.Present = append(result.Present, a.Student.ID)
		}
	}
	for _, st := range unused {
		result.Absent = append(result.Absent, st.ID)
	}
	return result
}

// classifyJoin defaults to present when the join time cannot be read.
func classifyJoin(firstSeen string, window AttendanceWindow, loc *time.Location) models.AttendanceStatus {
	clock, ok := ParseJoinTime(firstSeen, loc)
	if !ok || window.Contains(clock) {
		return models.AttendancePresent
	}
	return models.AttendanceLate
}

func isExcludedParticipant(normalized string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}
