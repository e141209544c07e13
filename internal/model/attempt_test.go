package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testAssessment(sections, questionsPerSection, minutes int) *Assessment {
	a := &Assessment{
		ID:               uuid.New(),
		Title:            "Unit Test Assessment",
		Kind:             AssessmentKindSkillTest,
		TimeLimitMinutes: minutes,
		MaxRetakes:       2,
	}
	qid := int64(1)
	for s := 0; s < sections; s++ {
		var group QuestionGroup
		group.ID = int64(s + 1)
		for q := 0; q < questionsPerSection; q++ {
			group.Questions = append(group.Questions, Question{ID: qid, Type: QuestionTypeChoice, Points: 1})
			qid++
		}
		a.Sections = append(a.Sections, Section{Title: "Section", Groups: []QuestionGroup{group}})
	}
	return a
}

func TestNewAttemptSession(t *testing.T) {
	def := testAssessment(3, 2, 10)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s := NewAttemptSession(def, 42, now)

	if s.RemainingSeconds != 600 {
		t.Errorf("RemainingSeconds = %d, want 600", s.RemainingSeconds)
	}
	if s.PositionIndex != 0 {
		t.Errorf("PositionIndex = %d, want 0", s.PositionIndex)
	}
	if len(s.Answers) != 0 {
		t.Errorf("Answers not empty: %d entries", len(s.Answers))
	}
	if s.StartedAt != now.UnixMilli() {
		t.Errorf("StartedAt = %d, want %d", s.StartedAt, now.UnixMilli())
	}
}

func TestApplyElapsedCorrection(t *testing.T) {
	// A record persisted 120s ago with 300s remaining must resume with at
	// most 180s.
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := &AttemptSession{
		RemainingSeconds: 300,
		LastPersistedAt:  now.Add(-120 * time.Second).UnixMilli(),
	}

	s.ApplyElapsed(now)

	if s.RemainingSeconds > 180 {
		t.Errorf("RemainingSeconds = %d, want <= 180", s.RemainingSeconds)
	}
	if s.RemainingSeconds != 180 {
		t.Errorf("RemainingSeconds = %d, want 180", s.RemainingSeconds)
	}
}

func TestApplyElapsedFloorsAtZero(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := &AttemptSession{
		RemainingSeconds: 30,
		LastPersistedAt:  now.Add(-10 * time.Minute).UnixMilli(),
	}

	s.ApplyElapsed(now)

	if s.RemainingSeconds != 0 {
		t.Errorf("RemainingSeconds = %d, want 0", s.RemainingSeconds)
	}
}

func TestApplyElapsedClockWentBackwards(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := &AttemptSession{
		RemainingSeconds: 300,
		LastPersistedAt:  now.Add(time.Minute).UnixMilli(),
	}

	s.ApplyElapsed(now)

	if s.RemainingSeconds != 300 {
		t.Errorf("RemainingSeconds = %d, want 300 (no extra time granted)", s.RemainingSeconds)
	}
}

func TestStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	fresh := &AttemptSession{LastPersistedAt: now.Add(-StalenessWindow + time.Minute).UnixMilli()}
	if fresh.Stale(now) {
		t.Error("record inside the window reported stale")
	}

	old := &AttemptSession{LastPersistedAt: now.Add(-StalenessWindow - time.Minute).UnixMilli()}
	if !old.Stale(now) {
		t.Error("record past the window not reported stale")
	}
}

func TestAdvanceClamping(t *testing.T) {
	s := &AttemptSession{}

	if idx := s.Advance(-3, 4); idx != 0 {
		t.Errorf("Advance below zero = %d, want 0", idx)
	}
	if idx := s.Advance(10, 4); idx != 3 {
		t.Errorf("Advance past end = %d, want 3", idx)
	}
	if idx := s.Advance(-1, 4); idx != 2 {
		t.Errorf("Advance(-1) = %d, want 2", idx)
	}
}

func TestTickDownFloorsAtZero(t *testing.T) {
	s := &AttemptSession{RemainingSeconds: 2}

	if r := s.TickDown(); r != 1 {
		t.Errorf("first tick = %d, want 1", r)
	}
	if r := s.TickDown(); r != 0 {
		t.Errorf("second tick = %d, want 0", r)
	}
	if r := s.TickDown(); r != 0 {
		t.Errorf("tick past zero = %d, want 0", r)
	}
}

func TestTimeSpentSeconds(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := &AttemptSession{StartedAt: start.UnixMilli()}

	if spent := s.TimeSpentSeconds(start.Add(90 * time.Second)); spent != 90 {
		t.Errorf("TimeSpentSeconds = %d, want 90", spent)
	}
}
