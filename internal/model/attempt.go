package model

import (
	"time"

	"github.com/google/uuid"
)

// StalenessWindow is how long a durable attempt snapshot stays resumable.
// A record whose last persisted time is older than this is treated as absent
// and a fresh attempt is started instead.
const StalenessWindow = 6 * time.Hour

// SubmitTrigger records why an attempt was submitted.
type SubmitTrigger string

const (
	// TriggerManual is the user pressing finish on the last question.
	TriggerManual SubmitTrigger = "manual"
	// TriggerTimeout is the countdown reaching zero; accumulated answers are
	// submitted as-is.
	TriggerTimeout SubmitTrigger = "timeout"
	// TriggerAbandon is any early exit (explicit exit, tab hidden, back
	// navigation, unload). Abandoned attempts are submitted with an empty
	// answer list and scored zero. Deliberate product behavior, not a bug.
	TriggerAbandon SubmitTrigger = "abandon"
)

// AttemptSession is the engine's owned state for one in-progress attempt.
// The struct doubles as the durable snapshot: it is JSON-serialized verbatim
// into the attempt store on every mutation.
type AttemptSession struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	UserID       int       `json:"user_id"`

	Answers       map[int64]AnswerValue `json:"answers"`
	PositionIndex int                   `json:"position_index"`

	// StartedAt is the wall-clock start of the current attempt in epoch ms.
	// Reset only on a fresh attempt, preserved across resumes.
	StartedAt int64 `json:"started_at_ms"`
	// RemainingSeconds is non-increasing while the attempt is active, except
	// for the one-time elapsed correction applied on resume.
	RemainingSeconds int `json:"remaining_seconds"`
	// LastPersistedAt is the epoch-ms time of the most recent durable write.
	LastPersistedAt int64 `json:"last_persisted_at_ms"`
}

// NewAttemptSession builds a fresh session from a definition: full time
// budget, first section, no answers.
func NewAttemptSession(a *Assessment, userID int, now time.Time) *AttemptSession {
	return &AttemptSession{
		AssessmentID:     a.ID,
		UserID:           userID,
		Answers:          make(map[int64]AnswerValue),
		PositionIndex:    0,
		StartedAt:        now.UnixMilli(),
		RemainingSeconds: a.TimeLimitMinutes * 60,
		LastPersistedAt:  now.UnixMilli(),
	}
}

// Stale reports whether the snapshot is past the staleness window and must
// not be resumed.
func (s *AttemptSession) Stale(now time.Time) bool {
	return now.UnixMilli()-s.LastPersistedAt > StalenessWindow.Milliseconds()
}

// ApplyElapsed performs the one-time resume correction: the wall-clock time
// that passed since the last durable write is deducted from the remaining
// budget. The result never goes below zero and never exceeds the value
// before the gap.
func (s *AttemptSession) ApplyElapsed(now time.Time) {
	elapsed := int((now.UnixMilli() - s.LastPersistedAt) / 1000)
	if elapsed < 0 {
		elapsed = 0 // Clock went backwards; do not grant extra time.
	}
	s.RemainingSeconds -= elapsed
	if s.RemainingSeconds < 0 {
		s.RemainingSeconds = 0
	}
}

// SetAnswer adds or overwrites the answer for a question. Entries are never
// partially written; the value is stored whole or not at all.
func (s *AttemptSession) SetAnswer(questionID int64, v AnswerValue) {
	if s.Answers == nil {
		s.Answers = make(map[int64]AnswerValue)
	}
	s.Answers[questionID] = v
}

// Advance moves the position index by delta, clamped to [0, sectionCount-1].
// Returns the resulting index. Timing is unaffected.
func (s *AttemptSession) Advance(delta, sectionCount int) int {
	s.PositionIndex += delta
	if s.PositionIndex < 0 {
		s.PositionIndex = 0
	}
	if max := sectionCount - 1; max >= 0 && s.PositionIndex > max {
		s.PositionIndex = max
	}
	return s.PositionIndex
}

// TickDown decrements the countdown by one second, flooring at zero, and
// returns the remaining seconds. Reaching zero is one-way: callers submit
// and never tick again.
func (s *AttemptSession) TickDown() int {
	if s.RemainingSeconds > 0 {
		s.RemainingSeconds--
	}
	return s.RemainingSeconds
}

// TouchPersisted stamps the snapshot with the time of a durable write.
func (s *AttemptSession) TouchPersisted(now time.Time) {
	s.LastPersistedAt = now.UnixMilli()
}

// TimeSpentSeconds is the wall-clock duration of the attempt so far.
func (s *AttemptSession) TimeSpentSeconds(now time.Time) int {
	spent := int((now.UnixMilli() - s.StartedAt) / 1000)
	if spent < 0 {
		spent = 0
	}
	return spent
}
