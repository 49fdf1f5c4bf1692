package orchestrator

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the orchestrator wraps exactly one
// of these; callers and the HTTP layer classify with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// errStaleSchedule is consumed by the scheduler guard and never surfaced.
	errStaleSchedule = errors.New("stale schedule")
)

var (
	ErrStreamNotFound    = fmt.Errorf("%w: stream does not exist", ErrNotFound)
	ErrStreamAlreadyLive = fmt.Errorf("%w: stream already live", ErrConflict)
	ErrStreamDisabled    = fmt.Errorf("%w: stream is disabled", ErrConflict)
	ErrNoEnabledStream   = fmt.Errorf("%w: no enabled stream available", ErrConflict)
	ErrStreamInUse       = fmt.Errorf("%w: stream is live and cannot be deleted", ErrConflict)

	ErrAIAlreadyRunning = fmt.Errorf("%w: ai session already started", ErrConflict)
	ErrAINotRunning     = fmt.Errorf("%w: ai session is not running", ErrConflict)
	ErrAINotPaused      = fmt.Errorf("%w: ai session is not paused", ErrConflict)
	ErrAIStopped        = fmt.Errorf("%w: ai session is already stopped", ErrConflict)

	ErrAIContentNotFound = fmt.Errorf("%w: ai content does not exist", ErrNotFound)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, op, err)
}

// ErrorKind names the category of err for the result envelope.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}
