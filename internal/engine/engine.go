// Package engine hosts the attempt controller: the state machine that runs
// one user's timed attempt at one assessment. It orchestrates the clock, the
// durable attempt store, and the submission reconciler; all mutation funnels
// through state-checked operations so a terminated attempt can never be
// touched or double-submitted.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/quivio/attempt-engine/internal/reconcile"
	"github.com/quivio/attempt-engine/internal/store"
	"github.com/rs/zerolog"
)

// State enumerates the attempt controller states.
type State string

const (
	StateIdle             State = "IDLE"
	StateResuming         State = "RESUMING"
	StateActive           State = "ACTIVE"
	StateAutoSubmitting   State = "AUTO_SUBMITTING"
	StateManualSubmitting State = "MANUAL_SUBMITTING"
	StateAbandoning       State = "ABANDONING"
	// StateTerminated is absorbing: every further operation is a no-op.
	StateTerminated State = "TERMINATED"
)

// Operation errors. Wrong-state calls fail closed into ErrNotActive; they
// are logged, have no observable effect, and never dispatch network calls.
var (
	ErrNotActive       = errors.New("attempt is not active")
	ErrUnknownQuestion = errors.New("question is not part of the assessment")
	ErrNoRetryPending  = errors.New("no retryable submission pending")
)

// Submitter reconciles a terminal session against the platform. Implemented
// by reconcile.Reconciler; faked in tests.
type Submitter interface {
	Reconcile(ctx context.Context, sess *model.AttemptSession, def *model.Assessment, trigger model.SubmitTrigger) (*model.SubmissionOutcome, error)
}

// EventKind tags events pushed to stream subscribers.
type EventKind string

const (
	EventTick         EventKind = "tick"
	EventTerminated   EventKind = "terminated"
	EventSubmitFailed EventKind = "submit_failed"
)

// Event is a state-change notification for the WebSocket stream.
type Event struct {
	Kind             EventKind                `json:"event"`
	RemainingSeconds int                      `json:"remaining_seconds,omitempty"`
	Outcome          *model.SubmissionOutcome `json:"outcome,omitempty"`
	Retryable        bool                     `json:"retryable,omitempty"`
}

// Snapshot is a read-only view of the controller handed to the HTTP surface.
type Snapshot struct {
	State            State                       `json:"state"`
	Resumed          bool                        `json:"resumed"`
	PositionIndex    int                         `json:"position_index"`
	RemainingSeconds int                         `json:"remaining_seconds"`
	StartedAtMs      int64                       `json:"started_at_ms"`
	Answers          map[int64]model.AnswerValue `json:"answers"`
	Outcome          *model.SubmissionOutcome    `json:"outcome,omitempty"`
}

// Engine is one attempt controller instance. There is at most one live
// Engine per (user, assessment); the Manager enforces that.
type Engine struct {
	mu      sync.Mutex
	state   State
	session *model.AttemptSession
	def     *model.Assessment
	userID  int

	st        store.Store
	key       string
	clk       clock.Clock
	submitter Submitter
	log       zerolog.Logger

	resumed bool
	// degraded means durable writes are failing; the attempt keeps running
	// in-memory and resume-after-reload is unavailable for it.
	degraded bool

	pendingTrigger model.SubmitTrigger
	retryable      bool
	lastErr        error
	outcome        *model.SubmissionOutcome

	ticker     clock.Ticker
	tickCancel context.CancelFunc

	subs    map[int]chan Event
	nextSub int

	// onTerminal is invoked once when the engine reaches Terminated, so the
	// Manager can evict it.
	onTerminal func()
}

// New creates an Engine in Idle. Call Start to resume-or-create the session
// and StartTicker to begin the countdown.
func New(def *model.Assessment, userID int, st store.Store, clk clock.Clock, submitter Submitter, log zerolog.Logger) *Engine {
	return &Engine{
		state:     StateIdle,
		def:       def,
		userID:    userID,
		st:        st,
		key:       config.CacheKey.AttemptSnapshotKey(userID, def.ID),
		clk:       clk,
		submitter: submitter,
		log: log.With().
			Str("component", "attempt_engine").
			Int("user_id", userID).
			Str("assessment_id", def.ID.String()).
			Logger(),
		subs: make(map[int]chan Event),
	}
}

// SetOnTerminal registers the eviction callback. Must be called before Start.
func (e *Engine) SetOnTerminal(fn func()) { e.onTerminal = fn }

// Start moves Idle → Resuming → Active. A valid durable record within the
// staleness window is resumed with the elapsed-time correction applied;
// otherwise a fresh session starts with the full time budget. If the
// correction consumes the whole budget the attempt timeout-submits
// immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return nil
	}
	e.state = StateResuming

	snap, err := e.st.Load(ctx, e.key)
	if err != nil {
		// A failing store read is treated as no record: the attempt starts
		// fresh rather than blocking on storage.
		e.log.Error().Err(err).Msg("Durable record read failed, starting fresh")
		snap = nil
	}

	now := e.clk.Now()
	if snap != nil {
		snap.ApplyElapsed(now)
		e.session = snap
		e.resumed = true
		e.log.Info().
			Int("remaining_seconds", snap.RemainingSeconds).
			Int("answers", len(snap.Answers)).
			Msg("Attempt resumed")
	} else {
		e.session = model.NewAttemptSession(e.def, e.userID, now)
		e.log.Info().
			Int("remaining_seconds", e.session.RemainingSeconds).
			Msg("Attempt started")
	}

	e.state = StateActive
	e.persistLocked(ctx)

	timedOut := e.session.RemainingSeconds == 0
	e.mu.Unlock()

	if timedOut {
		// The gap since the last persist ate the whole budget.
		_, _ = e.RequestSubmit(ctx, model.TriggerTimeout)
	}
	return nil
}

// StartTicker launches the 1 Hz countdown loop. The ticker is canceled, not
// merely ignored, the instant a terminal state is entered.
func (e *Engine) StartTicker() {
	e.mu.Lock()
	if e.state != StateActive || e.ticker != nil {
		e.mu.Unlock()
		return
	}
	tickCtx, cancel := context.WithCancel(context.Background())
	e.ticker = e.clk.NewTicker(time.Second)
	e.tickCancel = cancel
	t := e.ticker
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-t.C():
				// tickCtx only governs loop shutdown. The final tick triggers
				// the submission that tears the ticker down, so the tick
				// itself must not run on the context that teardown cancels.
				e.Tick(context.Background())
			}
		}
	}()
}

// Tick decrements the countdown by one second. Valid only while Active; a
// stray tick after termination is ignored. Reaching zero transitions to
// AutoSubmitting synchronously, before any further tick can be processed.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}
	remaining := e.session.TickDown()
	e.persistLocked(ctx)
	e.broadcastLocked(Event{Kind: EventTick, RemainingSeconds: remaining})
	e.mu.Unlock()

	if remaining == 0 {
		_, _ = e.RequestSubmit(ctx, model.TriggerTimeout)
	}
}

// RecordAnswer overwrites the answer for a question and persists the
// snapshot immediately. Valid only while Active; outside Active it is a
// logged no-op. The payload is decoded against the question's declared type.
func (e *Engine) RecordAnswer(ctx context.Context, questionID int64, raw json.RawMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		e.log.Warn().Str("state", string(e.state)).Int64("question_id", questionID).Msg("RecordAnswer ignored outside Active")
		return ErrNotActive
	}

	q, ok := e.def.QuestionByID(questionID)
	if !ok {
		return ErrUnknownQuestion
	}

	v, err := model.ParseAnswer(q.Type, raw)
	if err != nil {
		return err
	}

	e.session.SetAnswer(questionID, v)
	e.persistLocked(ctx)
	return nil
}

// AdvancePosition moves between sections, clamped to bounds. Timing is
// unaffected. Valid only while Active.
func (e *Engine) AdvancePosition(ctx context.Context, delta int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		e.log.Warn().Str("state", string(e.state)).Msg("AdvancePosition ignored outside Active")
		return 0, ErrNotActive
	}

	idx := e.session.Advance(delta, e.def.SectionCount())
	e.persistLocked(ctx)
	return idx, nil
}

// RequestSubmit is the single submission entrypoint used by the finish
// button, the timeout, and every exit trigger. The Active-state check is the
// sole idempotency guard: whichever trigger fires first wins, and everything
// after is a no-op.
func (e *Engine) RequestSubmit(ctx context.Context, trigger model.SubmitTrigger) (*model.SubmissionOutcome, error) {
	e.mu.Lock()
	if e.state != StateActive {
		e.log.Debug().
			Str("state", string(e.state)).
			Str("trigger", string(trigger)).
			Msg("RequestSubmit ignored outside Active")
		e.mu.Unlock()
		return nil, ErrNotActive
	}

	e.state = submittingStateFor(trigger)
	e.pendingTrigger = trigger
	e.stopTickerLocked()
	e.mu.Unlock()

	return e.dispatch(ctx, trigger)
}

// Retry re-dispatches a submission that previously failed with a transient
// error. Valid only while parked in a submitting state with a retryable
// failure recorded; the durable record is still in place for this case.
func (e *Engine) Retry(ctx context.Context) (*model.SubmissionOutcome, error) {
	e.mu.Lock()
	if !e.retryable || !isSubmittingState(e.state) {
		e.mu.Unlock()
		return nil, ErrNoRetryPending
	}
	e.retryable = false
	trigger := e.pendingTrigger
	e.mu.Unlock()

	return e.dispatch(ctx, trigger)
}

// dispatch performs the reconciliation network call. The state tag set by
// the caller rejects all concurrent mutation while the call is in flight;
// the lock is not held across the suspension.
func (e *Engine) dispatch(ctx context.Context, trigger model.SubmitTrigger) (*model.SubmissionOutcome, error) {
	outcome, err := e.submitter.Reconcile(ctx, e.session, e.def, trigger)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case err == nil:
		e.outcome = outcome
		e.terminateLocked()
		return outcome, nil

	case errors.Is(err, reconcile.ErrExpired):
		e.lastErr = err
		e.terminateLocked()
		return nil, err

	default:
		// Transient: stay parked in the submitting state. The durable record
		// was retained, so a reload resumes and can retry; in-tab, Retry is
		// available.
		e.lastErr = err
		e.retryable = true
		e.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submission failed, retry available")
		e.broadcastLocked(Event{Kind: EventSubmitFailed, Retryable: true})
		return nil, err
	}
}

// State returns the current controller state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Outcome returns the submission outcome once terminated, else nil.
func (e *Engine) Outcome() *model.SubmissionOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// AssessmentID identifies the assessment this engine runs.
func (e *Engine) AssessmentID() uuid.UUID { return e.def.ID }

// Snapshot returns a defensive copy of the UI-facing state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	answers := make(map[int64]model.AnswerValue, len(e.session.Answers))
	for k, v := range e.session.Answers {
		answers[k] = v
	}
	return Snapshot{
		State:            e.state,
		Resumed:          e.resumed,
		PositionIndex:    e.session.PositionIndex,
		RemainingSeconds: e.session.RemainingSeconds,
		StartedAtMs:      e.session.StartedAt,
		Answers:          answers,
		Outcome:          e.outcome,
	}
}

// Subscribe registers a stream listener. The returned cancel func must be
// called when the listener disconnects. Slow listeners drop events rather
// than stalling the controller.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, 16)
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			// Broadcasts only send under the same mutex, so closing here
			// cannot race a send. Lets range-based consumers terminate.
			close(ch)
		}
	}
}

// ─── internals ──────────────────────────────────────────────────────

func (e *Engine) persistLocked(ctx context.Context) {
	e.session.TouchPersisted(e.clk.Now())
	if err := e.st.Save(ctx, e.key, e.session); err != nil {
		if !e.degraded {
			e.degraded = true
			e.log.Error().Err(err).Msg("Durable write failed, continuing in-memory")
		}
		return
	}
	if e.degraded {
		e.degraded = false
		e.log.Info().Msg("Durable writes recovered")
	}
}

func (e *Engine) stopTickerLocked() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	if e.tickCancel != nil {
		e.tickCancel()
		e.tickCancel = nil
	}
}

func (e *Engine) terminateLocked() {
	if e.state == StateTerminated {
		return
	}
	e.state = StateTerminated
	e.stopTickerLocked()
	e.broadcastLocked(Event{Kind: EventTerminated, Outcome: e.outcome})
	e.log.Info().Str("trigger", string(e.pendingTrigger)).Msg("Attempt terminated")
	if e.onTerminal != nil {
		go e.onTerminal()
	}
}

func (e *Engine) broadcastLocked(ev Event) {
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func submittingStateFor(trigger model.SubmitTrigger) State {
	switch trigger {
	case model.TriggerManual:
		return StateManualSubmitting
	case model.TriggerAbandon:
		return StateAbandoning
	default:
		return StateAutoSubmitting
	}
}

func isSubmittingState(s State) bool {
	return s == StateAutoSubmitting || s == StateManualSubmitting || s == StateAbandoning
}
