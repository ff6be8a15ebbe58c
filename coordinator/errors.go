package coordinator

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the coordinator. Provider failures keep their
// *llm.Error in the chain alongside these.
var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("request queue is full")
	// ErrShutdown is returned for requests refused or abandoned by Shutdown.
	ErrShutdown = errors.New("coordinator is shut down")
	// ErrDisabled is returned without a network attempt after an
	// authentication failure, until Reset.
	ErrDisabled = errors.New("coordinator disabled after authentication failure")
	// ErrRetriesExhausted wraps the last error of a request whose retryable
	// failures used up every attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ValidationError reports bad caller input. It is returned synchronously and
// the request never reaches the queue.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
