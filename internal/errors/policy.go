package errors

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// RetryPolicy classifies errors and computes backoff delays. It is a pure
// decision/calculation component: it never sleeps or retries itself; that
// is the caller's job (see CallWithRetry).
type RetryPolicy struct {
	MaxRetries      int     // attempts after the first call (default: 3)
	BaseDelay       float64 // seconds (default: 1.0)
	MaxDelay        float64 // seconds (default: 60.0)
	ExponentialBase float64 // backoff base (default: 2)
}

// DefaultRetryPolicy returns the standard retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       1.0,
		MaxDelay:        60.0,
		ExponentialBase: 2,
	}
}

// Patterns matched case-insensitively against an error's message. The
// non-retryable set takes precedence when both match.
var (
	retryablePatterns = []string{
		"timeout", "connection", "429", "rate limit", "500", "502", "503", "504",
	}
	nonRetryablePatterns = []string{
		"401", "403", "authentication", "400", "404",
	}
)

// ShouldRetry reports whether err is worth retrying. Explicitly wrapped
// transient/permanent errors win over message patterns; unknown errors are
// not retried.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(msg, pattern) {
			return false
		}
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryDelay computes the capped exponential backoff with jitter for the
// given attempt (starting at 0), in whole seconds:
//
//	delay = min(maxDelay, base*expBase^attempt + uniform(0, 0.5*base*expBase^attempt))
func (p RetryPolicy) RetryDelay(attempt int) int {
	exponential := p.BaseDelay * math.Pow(p.ExponentialBase, float64(attempt))
	jitter := rand.Float64() * 0.5 * exponential
	return int(math.Min(exponential+jitter, p.MaxDelay))
}

// Classify maps an error to a structured ErrorResponse. Checks run in
// priority order: timeout, connection, rate limit, authentication, server
// error, then internal. An ErrorResponse already present in the chain is
// passed through untouched.
func (p RetryPolicy) Classify(err error, context map[string]any, requestID string) *ErrorResponse {
	if resp, ok := AsErrorResponse(err); ok {
		return resp
	}

	apiName := "unknown"
	if context != nil {
		if name, ok := context["api"].(string); ok && name != "" {
			apiName = name
		}
	}
	details := map[string]any{
		"error_type": fmt.Sprintf("%T", err),
		"message":    err.Error(),
	}
	for k, v := range context {
		details[k] = v
	}

	msg := strings.ToLower(err.Error())
	retryAfter := p.RetryDelay(0)

	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		resp := NewErrorResponse(CodeAPITimeout, fmt.Sprintf("%s API request timed out", apiName), requestID)
		resp.RetryAfter = &retryAfter
		return resp.WithDetails(details)
	case strings.Contains(msg, "connection"):
		resp := NewErrorResponse(CodeAPIConnection, fmt.Sprintf("failed to connect to %s API", apiName), requestID)
		resp.RetryAfter = &retryAfter
		return resp.WithDetails(details)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		resp := NewErrorResponse(CodeAPIRateLimit, fmt.Sprintf("%s API rate limit exceeded", apiName), requestID)
		resp.RetryAfter = &retryAfter
		return resp.WithDetails(details)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "authentication"):
		// Authentication failures are never retried.
		return NewErrorResponse(CodeAPIAuth, fmt.Sprintf("%s API authentication failed", apiName), requestID).
			WithDetails(details)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		resp := NewErrorResponse(CodeAPIServer, fmt.Sprintf("%s API server error", apiName), requestID)
		resp.RetryAfter = &retryAfter
		return resp.WithDetails(details)
	default:
		return NewErrorResponse(CodeInternal, fmt.Sprintf("unexpected error occurred with %s API", apiName), requestID).
			WithDetails(details)
	}
}
