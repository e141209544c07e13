package engine

import (
	"context"
	"errors"

	"github.com/quivio/attempt-engine/internal/model"
)

// ExitSignal is one of the passive exit triggers reported by the client.
// The timeout trigger is internal (the countdown reaching zero) and never
// arrives as a signal.
type ExitSignal string

const (
	// SignalTabHidden: the tab went hidden. The user already left the
	// assessment context, so the attempt abandons immediately, without
	// confirmation.
	SignalTabHidden ExitSignal = "tab_hidden"
	// SignalBackNavigation: browser back out of the assessment. Abandons
	// immediately.
	SignalBackNavigation ExitSignal = "back_navigation"
	// SignalWindowUnload: the tab is closing. Best-effort only — the client
	// cannot guarantee this signal arrives before the tab dies. Known
	// limitation, not solved here.
	SignalWindowUnload ExitSignal = "window_unload"
	// SignalExitConfirmed: the explicit exit button, after the client-side
	// confirmation prompt. The only user-cancelable trigger; cancellation
	// happens client-side, so receiving the signal means confirmed.
	SignalExitConfirmed ExitSignal = "exit_confirmed"
)

// ErrUnknownSignal is returned for a signal value the multiplexer does not
// recognize.
var ErrUnknownSignal = errors.New("unknown exit signal")

// Valid reports whether the signal is one of the recognized exit triggers.
func (s ExitSignal) Valid() bool {
	switch s {
	case SignalTabHidden, SignalBackNavigation, SignalWindowUnload, SignalExitConfirmed:
		return true
	}
	return false
}

// FireExitSignal funnels a passive exit trigger into RequestSubmit. Every
// exit signal maps to an abandon-style submission (empty answers, scored
// zero); the shared Active-state check in RequestSubmit keeps the dispatch
// idempotent no matter which trigger fires first or how many arrive.
func (e *Engine) FireExitSignal(ctx context.Context, sig ExitSignal) (*model.SubmissionOutcome, error) {
	if !sig.Valid() {
		return nil, ErrUnknownSignal
	}

	e.log.Info().Str("signal", string(sig)).Msg("Exit signal received")
	return e.RequestSubmit(ctx, model.TriggerAbandon)
}
