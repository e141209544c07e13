package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OutcomeWorker consumes persist_outcomes_queue and UPSERTs submission
// outcomes to PostgreSQL. The reconciler queues outcomes after the platform
// accepts them, so Postgres lags Redis by at most the queue depth.
type OutcomeWorker struct {
	outcomes *repository.OutcomeRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewOutcomeWorker creates a new OutcomeWorker.
func NewOutcomeWorker(outcomes *repository.OutcomeRepository, rdb *redis.Client, log zerolog.Logger) *OutcomeWorker {
	return &OutcomeWorker{
		outcomes: outcomes,
		rdb:      rdb,
		log:      log.With().Str("component", "outcome_worker").Logger(),
	}
}

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

// Start begins the infinite worker loop. Call in a goroutine.
func (w *OutcomeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *OutcomeWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistOutcomesQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload outcomePayload
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistOutcome(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Int("user_id", payload.UserID).
			Str("assessment_id", payload.AssessmentID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *OutcomeWorker) persistOutcome(ctx context.Context, p *outcomePayload) error {
	assessmentID, err := uuid.Parse(p.AssessmentID)
	if err != nil {
		return err
	}

	return w.outcomes.Upsert(ctx, repository.UpsertOutcomeParams{
		UserID:            p.UserID,
		AssessmentID:      assessmentID,
		Score:             p.Score,
		TotalPoints:       p.TotalPoints,
		Trigger:           p.Trigger,
		TimeSpentSeconds:  p.TimeSpentSeconds,
		CanRetake:         p.CanRetake,
		RemainingAttempts: p.RemainingAttempts,
		BestScore:         p.BestScore,
		SubmittedAt:       time.UnixMilli(p.SubmittedAtMs),
	})
}

// drain processes all remaining items in the queue before shutdown.
func (w *OutcomeWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistOutcomesQueue).Result()
		if err != nil {
			break
		}

		var payload outcomePayload
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persistOutcome(ctx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
