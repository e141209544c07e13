// Package platform is the HTTP client for the assessment platform: the
// read-only definition fetch and the submission endpoint. It is the only
// component that performs network I/O for the engine and is responsible for
// classifying server errors before they reach the reconciler.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Terminal submission errors. Anything else returned by SubmitAttempt is a
// transient network/server failure and may be retried.
var (
	// ErrAlreadySubmitted means a prior submission for this attempt already
	// landed (e.g. a race between timeout and manual finish across reloads).
	// Callers treat it as success-equivalent.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrAssessmentExpired means the platform no longer accepts submissions
	// for this assessment. Not retriable.
	ErrAssessmentExpired = errors.New("assessment expired")
)

// AnswerItem is one entry of the ordered submission payload. Grouped answers
// carry the JSON-encoded sub-answer map as-is; the server decodes it.
type AnswerItem struct {
	QuestionID    int64  `json:"question_id"`
	AnswerPayload string `json:"answer_payload"`
}

// SubmitRequest is the submission endpoint payload.
type SubmitRequest struct {
	Answers          []AnswerItem `json:"answers"`
	TimeSpentSeconds int          `json:"time_spent_seconds"`
}

// SubmitResult is the authoritative grading and retake verdict.
type SubmitResult struct {
	Score             float64  `json:"score"`
	TotalPoints       float64  `json:"total_points"`
	CanRetake         bool     `json:"can_retake"`
	RemainingAttempts int      `json:"remaining_attempts"`
	BestScore         *float64 `json:"best_score,omitempty"`
}

// errorBody is the platform's structured error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Platform error codes recognized during classification.
const (
	codeAlreadySubmitted = "ALREADY_SUBMITTED"
	codeExpired          = "ASSESSMENT_EXPIRED"
)

// Client talks to the assessment platform. Definitions are cached in Redis
// so one attempt fetches at most once.
type Client struct {
	baseURL  string
	http     *http.Client
	rdb      *redis.Client
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewClient creates a platform Client from config.
func NewClient(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  cfg.PlatformBaseURL,
		http:     &http.Client{Timeout: cfg.PlatformTimeout},
		rdb:      rdb,
		cacheTTL: cfg.DefinitionCacheTTL,
		log:      log.With().Str("component", "platform_client").Logger(),
	}
}

// FetchDefinition retrieves the read-only assessment definition, serving
// from the Redis cache when warm. A fetch failure blocks attempt start; no
// partial definition is ever returned.
func (c *Client) FetchDefinition(ctx context.Context, assessmentID uuid.UUID) (*model.Assessment, error) {
	cacheKey := config.CacheKey.DefinitionKey(assessmentID)

	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var a model.Assessment
			if err := json.Unmarshal([]byte(cached), &a); err == nil {
				return &a, nil
			}
			// Corrupt cache entry; fall through to refetch.
			_ = c.rdb.Del(ctx, cacheKey).Err()
		}
	}

	url := fmt.Sprintf("%s/assessments/%s/definition", c.baseURL, assessmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build definition request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch definition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch definition: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	var a model.Assessment
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	if a.TimeLimitMinutes <= 0 || len(a.Sections) == 0 {
		return nil, fmt.Errorf("incomplete definition for assessment %s", assessmentID)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, cacheKey, body, c.cacheTTL).Err(); err != nil {
			c.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Definition cache write failed")
		}
	}

	return &a, nil
}

// SubmitAttempt posts the attempt to the submission endpoint and classifies
// the response: a SubmitResult on success, ErrAlreadySubmitted /
// ErrAssessmentExpired for the terminal server verdicts, or a wrapped
// transport error for anything transient.
func (c *Client) SubmitAttempt(ctx context.Context, assessmentID uuid.UUID, userID int, req SubmitRequest) (*SubmitResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	url := fmt.Sprintf("%s/assessments/%s/submissions", c.baseURL, assessmentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build submission request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read submission response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var result SubmitResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode submission result: %w", err)
		}
		return &result, nil

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusGone:
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err == nil {
			switch eb.Error.Code {
			case codeAlreadySubmitted:
				return nil, ErrAlreadySubmitted
			case codeExpired:
				return nil, ErrAssessmentExpired
			}
		}
		return nil, fmt.Errorf("submit attempt: rejected with status %d", resp.StatusCode)

	default:
		return nil, fmt.Errorf("submit attempt: unexpected status %d", resp.StatusCode)
	}
}
