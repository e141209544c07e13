// Package reconcile converts a terminal attempt session into a platform
// submission and maps the authoritative response back into a UI-facing
// outcome. It owns the durable-record cleanup that makes submission
// idempotent across reloads.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/quivio/attempt-engine/internal/platform"
	"github.com/quivio/attempt-engine/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrExpired is returned when the platform refuses the submission because
// the assessment window has closed. Local state is cleared; not retriable.
var ErrExpired = platform.ErrAssessmentExpired

// Submitter is the platform submission endpoint.
type Submitter interface {
	SubmitAttempt(ctx context.Context, assessmentID uuid.UUID, userID int, req platform.SubmitRequest) (*platform.SubmitResult, error)
}

// OutcomeReader looks up a previously persisted outcome, used to surface the
// prior result when the platform reports the attempt already submitted.
type OutcomeReader interface {
	GetByUserAndAssessment(ctx context.Context, userID int, assessmentID uuid.UUID) (*model.SubmissionOutcome, error)
}

// Reconciler performs submission reconciliation. The Redis client is used
// for the outcome cache and the persistence queue; both are optional (nil
// degrades to submit-only).
type Reconciler struct {
	submitter Submitter
	store     store.Store
	rdb       *redis.Client
	outcomes  OutcomeReader
	clk       clock.Clock
	log       zerolog.Logger
}

// New creates a Reconciler.
func New(submitter Submitter, st store.Store, rdb *redis.Client, outcomes OutcomeReader, clk clock.Clock, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		submitter: submitter,
		store:     st,
		rdb:       rdb,
		outcomes:  outcomes,
		clk:       clk,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// outcomePayload is what gets queued for the outcome worker to UPSERT into
// PostgreSQL.
type outcomePayload struct {
	UserID            int      `json:"user_id"`
	AssessmentID      string   `json:"assessment_id"`
	Score             float64  `json:"score"`
	TotalPoints       float64  `json:"total_points"`
	Trigger           string   `json:"trigger"`
	TimeSpentSeconds  int      `json:"time_spent_seconds"`
	CanRetake         bool     `json:"can_retake"`
	RemainingAttempts int      `json:"remaining_attempts"`
	BestScore         *float64 `json:"best_score,omitempty"`
	SubmittedAtMs     int64    `json:"submitted_at_ms"`
}

// Reconcile dispatches the submission for a terminal session and returns the
// outcome.
//
//   - On success the durable record is deleted before returning, so a reload
//     cannot resume and re-dispatch.
//   - "Already submitted" is success-equivalent: local state is cleared and
//     the prior result is surfaced instead of an error.
//   - "Assessment expired" clears local state and returns ErrExpired.
//   - Any other failure leaves the durable record in place so a reload can
//     resume and retry; the error is retryable (see IsRetryable).
func (r *Reconciler) Reconcile(ctx context.Context, sess *model.AttemptSession, def *model.Assessment, trigger model.SubmitTrigger) (*model.SubmissionOutcome, error) {
	req := platform.SubmitRequest{
		Answers:          buildAnswerList(sess, def, trigger),
		TimeSpentSeconds: sess.TimeSpentSeconds(r.clk.Now()),
	}

	key := config.CacheKey.AttemptSnapshotKey(sess.UserID, sess.AssessmentID)

	result, err := r.submitter.SubmitAttempt(ctx, sess.AssessmentID, sess.UserID, req)
	switch {
	case err == nil:
		r.clearRecord(ctx, key, sess)
		outcome := &model.SubmissionOutcome{
			AssessmentID: sess.AssessmentID,
			UserID:       sess.UserID,
			Score:        result.Score,
			TotalPoints:  result.TotalPoints,
			Retake: model.RetakePolicy{
				CanRetake:         result.CanRetake,
				RemainingAttempts: result.RemainingAttempts,
				BestScore:         result.BestScore,
			},
			Trigger:     trigger,
			SubmittedAt: r.clk.Now(),
		}
		r.recordOutcome(ctx, outcome, req.TimeSpentSeconds)
		return outcome, nil

	case errors.Is(err, platform.ErrAlreadySubmitted):
		// A prior submission already landed (e.g. timeout raced a manual
		// finish across a reload). The user must not be stuck: clear local
		// state and surface the existing result.
		r.clearRecord(ctx, key, sess)
		return r.priorOutcome(ctx, sess, trigger), nil

	case errors.Is(err, platform.ErrAssessmentExpired):
		r.clearRecord(ctx, key, sess)
		return nil, ErrExpired

	default:
		// Transient failure: the durable record stays so a reload resumes
		// from the same state and can retry.
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
}

// IsRetryable reports whether a Reconcile error is transient. Terminal
// verdicts (expired) are not.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrExpired)
}

// buildAnswerList renders the ordered answer payload. Abandoned attempts
// submit an empty list regardless of accumulated answers: leaving before
// finishing scores zero. Timeout and manual submits include exactly what was
// answered, in definition order.
func buildAnswerList(sess *model.AttemptSession, def *model.Assessment, trigger model.SubmitTrigger) []platform.AnswerItem {
	items := []platform.AnswerItem{}
	if trigger == model.TriggerAbandon {
		return items
	}

	for _, q := range def.OrderedQuestions() {
		v, ok := sess.Answers[q.ID]
		if !ok {
			continue
		}
		items = append(items, platform.AnswerItem{
			QuestionID:    q.ID,
			AnswerPayload: v.WirePayload(),
		})
	}
	return items
}

// clearRecord deletes the durable record. A delete failure is logged but
// never surfaced: the submission verdict stands, and the staleness window
// bounds how long the orphan can linger.
func (r *Reconciler) clearRecord(ctx context.Context, key string, sess *model.AttemptSession) {
	if err := r.store.Delete(ctx, key); err != nil {
		r.log.Error().Err(err).
			Int("user_id", sess.UserID).
			Str("assessment_id", sess.AssessmentID.String()).
			Msg("Durable record delete failed")
	}
}

// recordOutcome caches the outcome and queues it for PostgreSQL persistence.
// Both are best-effort; the outcome has already been accepted by the platform.
func (r *Reconciler) recordOutcome(ctx context.Context, o *model.SubmissionOutcome, timeSpent int) {
	if r.rdb == nil {
		return
	}

	cached, err := json.Marshal(o)
	if err == nil {
		cacheKey := config.CacheKey.OutcomeKey(o.UserID, o.AssessmentID)
		if err := r.rdb.Set(ctx, cacheKey, cached, model.StalenessWindow).Err(); err != nil {
			r.log.Warn().Err(err).Msg("Outcome cache write failed")
		}
	}

	queued, _ := json.Marshal(outcomePayload{
		UserID:            o.UserID,
		AssessmentID:      o.AssessmentID.String(),
		Score:             o.Score,
		TotalPoints:       o.TotalPoints,
		Trigger:           string(o.Trigger),
		TimeSpentSeconds:  timeSpent,
		CanRetake:         o.Retake.CanRetake,
		RemainingAttempts: o.Retake.RemainingAttempts,
		BestScore:         o.Retake.BestScore,
		SubmittedAtMs:     o.SubmittedAt.UnixMilli(),
	})
	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, queued).Err(); err != nil {
		r.log.Error().Err(err).Msg("Outcome queue push failed")
	}
}

// priorOutcome recovers the result of the submission that already landed:
// first from the outcome cache, then from the outcome repository. When
// neither has it (cache evicted, worker lagging) a bare prior-result marker
// is returned so the UI can route to the results screen and refetch.
func (r *Reconciler) priorOutcome(ctx context.Context, sess *model.AttemptSession, trigger model.SubmitTrigger) *model.SubmissionOutcome {
	if r.rdb != nil {
		cacheKey := config.CacheKey.OutcomeKey(sess.UserID, sess.AssessmentID)
		if cached, err := r.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var o model.SubmissionOutcome
			if err := json.Unmarshal([]byte(cached), &o); err == nil {
				o.PriorResult = true
				return &o
			}
		}
	}

	if r.outcomes != nil {
		if o, err := r.outcomes.GetByUserAndAssessment(ctx, sess.UserID, sess.AssessmentID); err == nil && o != nil {
			o.PriorResult = true
			return o
		}
	}

	return &model.SubmissionOutcome{
		AssessmentID: sess.AssessmentID,
		UserID:       sess.UserID,
		Trigger:      trigger,
		SubmittedAt:  r.clk.Now(),
		PriorResult:  true,
	}
}
