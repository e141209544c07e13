package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quivio/attempt-engine/internal/model"
)

// OutcomeRepository persists submission outcomes in PostgreSQL. One row per
// (user, assessment): later submissions overwrite earlier ones, mirroring
// the platform's latest-attempt verdict.
type OutcomeRepository struct {
	pool *pgxpool.Pool
}

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(pool *pgxpool.Pool) *OutcomeRepository {
	return &OutcomeRepository{pool: pool}
}

// UpsertOutcomeParams carries one outcome row.
type UpsertOutcomeParams struct {
	UserID            int
	AssessmentID      uuid.UUID
	Score             float64
	TotalPoints       float64
	Trigger           string
	TimeSpentSeconds  int
	CanRetake         bool
	RemainingAttempts int
	BestScore         *float64
	SubmittedAt       time.Time
}

// Upsert creates or replaces the outcome row for (user, assessment).
func (r *OutcomeRepository) Upsert(ctx context.Context, p UpsertOutcomeParams) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_outcomes
		   (user_id, assessment_id, score, total_points, trigger, time_spent_seconds,
		    can_retake, remaining_attempts, best_score, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, assessment_id) DO UPDATE
		 SET score = EXCLUDED.score,
		     total_points = EXCLUDED.total_points,
		     trigger = EXCLUDED.trigger,
		     time_spent_seconds = EXCLUDED.time_spent_seconds,
		     can_retake = EXCLUDED.can_retake,
		     remaining_attempts = EXCLUDED.remaining_attempts,
		     best_score = EXCLUDED.best_score,
		     submitted_at = EXCLUDED.submitted_at,
		     updated_at = NOW()`,
		p.UserID, p.AssessmentID, p.Score, p.TotalPoints, p.Trigger, p.TimeSpentSeconds,
		p.CanRetake, p.RemainingAttempts, p.BestScore, p.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	return nil
}

// GetByUserAndAssessment returns the persisted outcome for (user, assessment).
func (r *OutcomeRepository) GetByUserAndAssessment(ctx context.Context, userID int, assessmentID uuid.UUID) (*model.SubmissionOutcome, error) {
	var (
		o       model.SubmissionOutcome
		trigger string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, assessment_id, score, total_points, trigger,
		        can_retake, remaining_attempts, best_score, submitted_at
		 FROM attempt_outcomes
		 WHERE user_id = $1 AND assessment_id = $2`,
		userID, assessmentID,
	).Scan(&o.UserID, &o.AssessmentID, &o.Score, &o.TotalPoints, &trigger,
		&o.Retake.CanRetake, &o.Retake.RemainingAttempts, &o.Retake.BestScore, &o.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("outcome not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	o.Trigger = model.SubmitTrigger(trigger)
	return &o, nil
}

// HistoryEntry is one row of a user's attempt history.
type HistoryEntry struct {
	AssessmentID      uuid.UUID `json:"assessment_id"`
	Score             float64   `json:"score"`
	TotalPoints       float64   `json:"total_points"`
	Trigger           string    `json:"trigger"`
	TimeSpentSeconds  int       `json:"time_spent_seconds"`
	CanRetake         bool      `json:"can_retake"`
	RemainingAttempts int       `json:"remaining_attempts"`
	BestScore         *float64  `json:"best_score,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// ListByUser returns the user's attempt history, most recent first.
func (r *OutcomeRepository) ListByUser(ctx context.Context, userID int) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT assessment_id, score, total_points, trigger, time_spent_seconds,
		        can_retake, remaining_attempts, best_score, submitted_at
		 FROM attempt_outcomes
		 WHERE user_id = $1
		 ORDER BY submitted_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.AssessmentID, &e.Score, &e.TotalPoints, &e.Trigger, &e.TimeSpentSeconds,
			&e.CanRetake, &e.RemainingAttempts, &e.BestScore, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
