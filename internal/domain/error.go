package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job pipeline
	ErrJobNotFound          = fmt.Errorf("job: %w", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("conversation: %w", ErrNotFound)
	ErrNoExecutor           = errors.New("no executor registered")
	ErrJobLocked            = errors.New("job is being processed by another worker")

	// Streaming
	ErrUpstreamFailed = errors.New("upstream job failed")
	ErrStreamClosed   = errors.New("stream already consumed")
	ErrQueueClosed    = errors.New("queue closed")
)

// UnknownJobTypeError is returned when no executor is registered for a job type.
// Its message is persisted verbatim in the job output.
type UnknownJobTypeError struct {
	Type string
}

func (e *UnknownJobTypeError) Error() string {
	return "No executor found for type: " + e.Type
}

func (e *UnknownJobTypeError) Is(target error) bool { return target == ErrNoExecutor }

// MissingFieldError reports a required job input field that was absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required input field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrInvalidArgument }

// UpstreamStatusError is a non-2xx response from the inference backend.
type UpstreamStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Op, e.StatusCode, e.Body)
}
