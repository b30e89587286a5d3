package scraper

import (
	"context"
	"errors"
	"net"
)

// ErrUnparsable marks a capability response that could not be parsed
// into the expected structure. It is never retried.
var ErrUnparsable = errors.New("unparsable capability response")

// ErrJobNotFound is returned by job stores for unknown IDs.
var ErrJobNotFound = errors.New("job not found")

// transientError wraps an error that is safe to retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// MarkTransient tags err as retryable (network hiccup, rate limit,
// temporary unavailability). A nil err returns nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is classified retryable: explicitly
// marked, a net.Error timeout, or a context deadline. Canceled contexts
// and parse failures are never retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnparsable) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// StepFailure is the uniform failure value returned by step executors.
type StepFailure struct {
	Step      Node
	Message   string
	Retryable bool
}

// NewStepFailure classifies err and wraps it for the engine.
func NewStepFailure(step Node, err error) *StepFailure {
	return &StepFailure{
		Step:      step,
		Message:   err.Error(),
		Retryable: IsTransient(err),
	}
}
