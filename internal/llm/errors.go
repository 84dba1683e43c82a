package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ModelUnavailableError is returned when a provider cannot produce a reply:
// transport failures, non-2xx responses, timeouts and empty replies.
type ModelUnavailableError struct {
	Provider string
	Code     int // HTTP-like status code (401, 429, 500, etc.); 0 when unknown
	Message  string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code > 0 {
		return fmt.Sprintf("model unavailable: %s: %d %s", e.Provider, e.Code, msg)
	}
	return fmt.Sprintf("model unavailable: %s: %s", e.Provider, msg)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// unavailable wraps err for provider. Context deadline errors are tagged
// with a timeout message so failover treats them as retryable.
func unavailable(provider string, code int, err error) *ModelUnavailableError {
	e := &ModelUnavailableError{Provider: provider, Code: code, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Message = "timeout waiting for model"
	}
	return e
}

// IsRetryable reports whether err suggests trying another provider.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var mu *ModelUnavailableError
	if errors.As(err, &mu) {
		switch mu.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable,
			http.StatusGatewayTimeout, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
