package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quivio/attempt-engine/internal/engine"
	"github.com/quivio/attempt-engine/internal/middleware"
	"github.com/quivio/attempt-engine/internal/model"
	ws "github.com/quivio/attempt-engine/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the live attempt over WebSocket: countdown ticks and
// terminal events flow down; autosaves, section moves, and exit signals flow
// up. The passive exit triggers (tab hidden, back navigation, unload) arrive
// here as exit_signal actions.
type WSHandler struct {
	manager  *engine.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *engine.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:assessment_id/stream
// Attaches the tab to its live attempt engine.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assessment ID"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	eng, ok := h.manager.Get(claims.UserID, assessmentID)
	if !ok {
		conn.WriteError("no active attempt for this assessment")
		return
	}

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("assessment_id", assessmentID.String()).
		Logger()

	wsLog.Info().Msg("Attempt stream connected")

	events, cancel := eng.Subscribe()
	defer cancel()

	// Event pump: engine events down to the tab. The wrapped conn serializes
	// these writes against the read-loop acknowledgements. Stops when the
	// engine terminates or the connection dies.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Kind {
			case engine.EventTick:
				if err := conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: ev.RemainingSeconds}); err != nil {
					return
				}
			case engine.EventTerminated:
				_ = conn.WriteTyped(ws.TerminatedResponse{Event: ws.EventTerminated, Outcome: ev.Outcome})
				return
			case engine.EventSubmitFailed:
				if err := conn.WriteError("submission failed, retry available"); err != nil {
					return
				}
			}
		}
	}()

	h.readLoop(conn, wsLog, eng)

	cancel()
	<-done
}

func (h *WSHandler) readLoop(conn *ws.Conn, wsLog zerolog.Logger, eng *engine.Engine) {
	for {
		var msg ws.RequestPayload
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, eng, &msg)
		case ws.ActionAdvance:
			h.handleAdvance(conn, eng, &msg)
		case ws.ActionSubmit:
			// Finish button over the stream: same single entrypoint as the
			// REST route. Outcome delivery rides the terminated event.
			if _, err := eng.RequestSubmit(context.Background(), model.TriggerManual); err != nil && eng.Outcome() == nil {
				conn.WriteError("submit failed")
			}
		case ws.ActionExitSignal:
			h.handleExitSignal(conn, wsLog, eng, &msg)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}

		if eng.State() == engine.StateTerminated {
			return
		}
	}
}

func (h *WSHandler) handleAutosave(conn *ws.Conn, eng *engine.Engine, msg *ws.RequestPayload) {
	if msg.QuestionID == 0 || len(msg.Answer) == 0 {
		conn.WriteError("question_id and answer are required")
		return
	}

	if err := eng.RecordAnswer(context.Background(), msg.QuestionID, msg.Answer); err != nil {
		conn.WriteError("save failed: " + err.Error())
		return
	}

	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID})
}

func (h *WSHandler) handleAdvance(conn *ws.Conn, eng *engine.Engine, msg *ws.RequestPayload) {
	idx, err := eng.AdvancePosition(context.Background(), msg.Delta)
	if err != nil {
		conn.WriteError("advance failed: " + err.Error())
		return
	}

	conn.WriteTyped(ws.AdvancedResponse{Event: ws.EventAdvanced, PositionIndex: idx})
}

func (h *WSHandler) handleExitSignal(conn *ws.Conn, wsLog zerolog.Logger, eng *engine.Engine, msg *ws.RequestPayload) {
	sig := engine.ExitSignal(msg.Signal)
	if _, err := eng.FireExitSignal(context.Background(), sig); err != nil {
		if err == engine.ErrUnknownSignal {
			conn.WriteError("unknown exit signal: " + msg.Signal)
			return
		}
		// ErrNotActive means another trigger already won; the terminated
		// event (or prior outcome) tells the tab what happened.
		wsLog.Debug().Err(err).Str("signal", msg.Signal).Msg("Exit signal ignored")
	}
}
