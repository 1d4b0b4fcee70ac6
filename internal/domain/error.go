package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job orchestration errors
	ErrRateLimitExceeded    = errors.New("daily heavy AI limit reached")
	ErrBudgetUnavailable    = errors.New("budget store unavailable")
	ErrInvalidTransition    = errors.New("invalid job status transition")
	ErrUnknownJobType       = errors.New("unknown job type")
	ErrHandlerNotRegistered = errors.New("no handler registered for job type")
	ErrQueueClosed          = errors.New("job queue is closed")

	// ErrPersistence marks an infrastructure failure (job store or cache) hit
	// mid-pipeline. Queues redeliver such attempts without counting them
	// against the retry ceiling.
	ErrPersistence = errors.New("persistence failure")

	// ErrSkipRetry marks an attempt failure that another attempt cannot fix.
	ErrSkipRetry = errors.New("attempt must not be retried")

	ErrInvalidLLMJSON = errors.New("LLM returned invalid JSON")
)

// SkipRetryError fails an attempt for good. Its message is the cause's
// message alone, so the text recorded for clients carries no marker.
type SkipRetryError struct {
	Err error
}

func (e *SkipRetryError) Error() string { return e.Err.Error() }

func (e *SkipRetryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSkipRetry) hold for any SkipRetryError.
func (e *SkipRetryError) Is(target error) bool { return target == ErrSkipRetry }

// SkipRetry wraps err so queues stop retrying it.
func SkipRetry(err error) error {
	return &SkipRetryError{Err: err}
}
