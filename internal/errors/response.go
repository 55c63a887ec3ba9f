package errors

import (
	"fmt"
	"time"
)

// ErrorCode is the machine-readable classification attached to every
// externally visible failure.
type ErrorCode string

const (
	// API errors
	CodeAPITimeout       ErrorCode = "API_TIMEOUT"
	CodeAPIConnection    ErrorCode = "API_CONNECTION_ERROR"
	CodeAPIRateLimit     ErrorCode = "API_RATE_LIMIT"
	CodeAPIAuth          ErrorCode = "API_AUTHENTICATION_ERROR"
	CodeAPIServer        ErrorCode = "API_SERVER_ERROR"
	CodeAPIBadResponse   ErrorCode = "API_INVALID_RESPONSE"

	// Validation errors
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Business errors
	CodeNoCandidates     ErrorCode = "NO_CANDIDATES_FOUND"
	CodeEvaluationFailed ErrorCode = "EVALUATION_FAILED"

	// System errors
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
)

// ErrorResponse is the structured error surface returned to callers. It
// implements error so it can travel through ordinary error returns.
type ErrorResponse struct {
	Code       ErrorCode      `json:"error_code"`
	Message    string         `json:"error_message"`
	Details    map[string]any `json:"details,omitempty"`
	RetryAfter *int           `json:"retry_after,omitempty"`
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewErrorResponse builds an ErrorResponse with the timestamp set.
func NewErrorResponse(code ErrorCode, message, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

// WithDetails attaches structured details and returns the response for
// chaining.
func (e *ErrorResponse) WithDetails(details map[string]any) *ErrorResponse {
	e.Details = details
	return e
}
