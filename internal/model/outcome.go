package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RetakePolicy is the server's verdict on whether another attempt may start.
type RetakePolicy struct {
	CanRetake         bool     `json:"can_retake"`
	RemainingAttempts int      `json:"remaining_attempts"`
	BestScore         *float64 `json:"best_score,omitempty"`
}

// SubmissionOutcome is the UI-facing result of reconciling a terminal
// attempt against the platform.
type SubmissionOutcome struct {
	AssessmentID uuid.UUID     `json:"assessment_id"`
	UserID       int           `json:"user_id"`
	Score        float64       `json:"score"`
	TotalPoints  float64       `json:"total_points"`
	Retake       RetakePolicy  `json:"retake"`
	Trigger      SubmitTrigger `json:"trigger"`
	SubmittedAt  time.Time     `json:"submitted_at"`

	// PriorResult marks an outcome recovered from an earlier submission that
	// had already landed (the "already submitted" reconciliation path).
	PriorResult bool `json:"prior_result,omitempty"`
}

// RecordAnswerRequest is the payload for recording a single answer.
// The answer field is decoded against the question's type, not sniffed.
type RecordAnswerRequest struct {
	QuestionID int64           `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// AdvanceRequest is the payload for moving between sections. A zero delta is
// accepted and leaves the position unchanged; gin's `required` binding would
// reject it as a missing field.
type AdvanceRequest struct {
	Delta int `json:"delta"`
}
