package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/engine"
	"github.com/quivio/attempt-engine/internal/middleware"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/quivio/attempt-engine/internal/reconcile"
	"github.com/quivio/attempt-engine/internal/repository"
	"github.com/quivio/attempt-engine/internal/response"
	"github.com/quivio/attempt-engine/internal/validator"
)

// AttemptHandler exposes the attempt engine over HTTP. Every endpoint is a
// thin shim: identity from claims, ids from the path, all semantics in the
// engine.
type AttemptHandler struct {
	manager  *engine.Manager
	outcomes *repository.OutcomeRepository
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(manager *engine.Manager, outcomes *repository.OutcomeRepository) *AttemptHandler {
	return &AttemptHandler{manager: manager, outcomes: outcomes}
}

// Open godoc
// POST /api/v1/attempts/:assessment_id/open
// Creates or resumes the attempt for (user, assessment) and returns the
// UI-facing snapshot. Idempotent: reopening a live attempt reattaches.
func (h *AttemptHandler) Open(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	eng, err := h.manager.Open(c.Request.Context(), claims.UserID, assessmentID)
	if err != nil {
		// A definition that cannot be fetched blocks entry; no partial
		// session exists to show.
		response.Fail(c, http.StatusBadGateway, response.ErrDefinitionUnfetched)
		return
	}

	response.Success(c, http.StatusOK, eng.Snapshot())
}

// GetState godoc
// GET /api/v1/attempts/:assessment_id/state
// Returns the live snapshot for reload/recovery reads.
func (h *AttemptHandler) GetState(c *gin.Context) {
	eng, ok := h.liveEngine(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, eng.Snapshot())
}

// RecordAnswer godoc
// POST /api/v1/attempts/:assessment_id/answers
// Records (or overwrites) one answer and persists the snapshot.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	eng, ok := h.liveEngine(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := eng.RecordAnswer(c.Request.Context(), req.QuestionID, req.Answer); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotActive):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		case errors.Is(err, engine.ErrUnknownQuestion):
			response.Fail(c, http.StatusBadRequest, response.ErrQuestionUnknown)
		case errors.Is(err, model.ErrAnswerShape):
			response.Fail(c, http.StatusBadRequest, response.ErrAnswerShape)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID})
}

// Advance godoc
// POST /api/v1/attempts/:assessment_id/position
// Moves between sections; the index is clamped to bounds.
func (h *AttemptHandler) Advance(c *gin.Context) {
	eng, ok := h.liveEngine(c)
	if !ok {
		return
	}

	var req model.AdvanceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	idx, err := eng.AdvancePosition(c.Request.Context(), req.Delta)
	if err != nil {
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"position_index": idx})
}

// Submit godoc
// POST /api/v1/attempts/:assessment_id/submit
// The explicit finish button: submits whatever was answered.
func (h *AttemptHandler) Submit(c *gin.Context) {
	eng, ok := h.liveEngine(c)
	if !ok {
		return
	}
	h.submit(c, eng, func() (*model.SubmissionOutcome, error) {
		return eng.RequestSubmit(c.Request.Context(), model.TriggerManual)
	})
}

// Exit godoc
// POST /api/v1/attempts/:assessment_id/exit
// The explicit exit button after client-side confirmation. Abandons: the
// submission carries an empty answer list and scores zero.
func (h *AttemptHandler) Exit(c *gin.Context) {
	eng, ok := h.liveEngine(c)
	if !ok {
		return
	}
	h.submit(c, eng, func() (*model.SubmissionOutcome, error) {
		return eng.FireExitSignal(c.Request.Context(), engine.SignalExitConfirmed)
	})
}

// Retry godoc
// POST /api/v1/attempts/:assessment_id/retry
// Re-dispatches a submission parked on a transient failure.
func (h *AttemptHandler) Retry(c *gin.Context) {
	eng, ok := h.liveEngine(c)
	if !ok {
		return
	}
	h.submit(c, eng, func() (*model.SubmissionOutcome, error) {
		return eng.Retry(c.Request.Context())
	})
}

// History godoc
// GET /api/v1/attempts/history
// Lists the user's persisted outcomes, most recent first.
func (h *AttemptHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	entries, err := h.outcomes.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if entries == nil {
		entries = []repository.HistoryEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": entries})
}

// submit runs a submission entrypoint and maps its verdict onto the wire.
func (h *AttemptHandler) submit(c *gin.Context, eng *engine.Engine, fn func() (*model.SubmissionOutcome, error)) {
	outcome, err := fn()
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"outcome": outcome})

	case errors.Is(err, engine.ErrNotActive), errors.Is(err, engine.ErrNoRetryPending):
		// A competing trigger won the race. If the attempt already resolved,
		// surface its outcome instead of an error banner.
		if prior := eng.Outcome(); prior != nil {
			response.Success(c, http.StatusOK, gin.H{"outcome": prior})
			return
		}
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)

	case errors.Is(err, reconcile.ErrExpired):
		response.Fail(c, http.StatusGone, response.ErrAssessmentClosed)

	default:
		// Transient: progress is retained, the client may retry.
		response.Fail(c, http.StatusServiceUnavailable, response.ErrSubmitRetryable)
	}
}

// liveEngine resolves the live engine for the authenticated user and the
// assessment in the path, failing the request when absent.
func (h *AttemptHandler) liveEngine(c *gin.Context) (*engine.Engine, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	eng, ok := h.manager.Get(claims.UserID, assessmentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotActive)
		return nil, false
	}
	return eng, true
}
