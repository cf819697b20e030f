package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrPayloadTooLarge marks a request the endpoint rejected for its size. It is never retried.
	ErrPayloadTooLarge = errors.New("payload too large for endpoint")
	// ErrEmptyResponse marks a response without usable text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrRunExhausted is returned when no chunk of a run succeeded.
	ErrRunExhausted = errors.New("analysis run exhausted: no chunk succeeded")
	// ErrRunIncomplete is returned when recorded results do not cover every chunk of a run.
	ErrRunIncomplete = errors.New("analysis run incomplete: not every chunk was attempted")
	// ErrAggregationUnavailable is returned when Aggregate or Skip is called in the wrong state.
	ErrAggregationUnavailable = errors.New("aggregation not offered for this run")
)

// ServiceError is a classified failure from the inference endpoint.
type ServiceError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString("inference service")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ClassifyStatus turns an HTTP status and error message into a ServiceError.
// 413 or a "too large" message is terminal; 408, 409, 429 and 5xx are transient; other 4xx are terminal.
func ClassifyStatus(status int, message string) *ServiceError {
	se := &ServiceError{StatusCode: status, Message: message}
	switch {
	case status == http.StatusRequestEntityTooLarge || strings.Contains(strings.ToLower(message), "too large"):
		se.Err = ErrPayloadTooLarge
	case status == http.StatusRequestTimeout, status == http.StatusConflict, status == http.StatusTooManyRequests:
		se.Retryable = true
	case status >= 500:
		se.Retryable = true
	}
	return se
}

// IsRetryable reports whether another attempt could succeed.
// Unclassified errors are treated as transient, except caller cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPayloadTooLarge) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	// Transport failures, timeouts and empty bodies all land here.
	return true
}
