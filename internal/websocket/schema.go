package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave   Action = "autosave"
	ActionAdvance    Action = "advance"
	ActionSubmit     Action = "submit"
	ActionExitSignal Action = "exit_signal"
	ActionPing       Action = "ping"
)

// RequestPayload is the single client message shape; unused fields are
// ignored per action.
type RequestPayload struct {
	Action Action `json:"action"`
	// Autosave
	QuestionID int64           `json:"question_id,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	// Advance
	Delta int `json:"delta,omitempty"`
	// Exit signal: one of the engine's exit signal names
	// (tab_hidden, back_navigation, window_unload, exit_confirmed).
	Signal string `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventAdvanced   Event = "advanced"
	EventTick       Event = "tick"
	EventTerminated Event = "terminated"
	EventPong       Event = "pong"
)

type SavedResponse struct {
	Event      Event `json:"event"`
	QuestionID int64 `json:"question_id"`
}

type AdvancedResponse struct {
	Event         Event `json:"event"`
	PositionIndex int   `json:"position_index"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type TerminatedResponse struct {
	Event   Event       `json:"event"`
	Outcome interface{} `json:"outcome,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
