package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt-specific ──────────────────────────────────────────────
	ErrAttemptNotActive    ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAttemptTerminated   ErrCode = "ATTEMPT_TERMINATED"
	ErrQuestionUnknown     ErrCode = "QUESTION_UNKNOWN"
	ErrAnswerShape         ErrCode = "ANSWER_SHAPE_MISMATCH"
	ErrDefinitionUnfetched ErrCode = "DEFINITION_FETCH_FAILED"
	ErrRetakesExhausted    ErrCode = "RETAKES_EXHAUSTED"

	// ─── Submission ────────────────────────────────────────────────────
	ErrSubmitRetryable  ErrCode = "SUBMIT_RETRYABLE"
	ErrAssessmentClosed ErrCode = "ASSESSMENT_EXPIRED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrForbidden:
		return "You do not have permission to access this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Attempt-specific ──────────────────────────────────────────────
	case ErrAttemptNotActive:
		return "No active attempt for this assessment."
	case ErrAttemptTerminated:
		return "This attempt has already been submitted."
	case ErrQuestionUnknown:
		return "This question does not belong to the assessment."
	case ErrAnswerShape:
		return "The answer does not match the question type."
	case ErrDefinitionUnfetched:
		return "The assessment could not be loaded. Please try again."
	case ErrRetakesExhausted:
		return "No attempts remaining for this assessment."

	// ─── Submission ────────────────────────────────────────────────────
	case ErrSubmitRetryable:
		return "Submission failed due to a network error. Your progress is saved; please retry."
	case ErrAssessmentClosed:
		return "This assessment has expired and can no longer accept submissions."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
