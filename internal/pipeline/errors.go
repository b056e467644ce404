package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure for retry and reporting
// decisions. Handlers never leak provider-specific error types past the
// worker boundary; everything crossing it is wrapped in an *Error.
type ErrorKind string

const (
	// KindValidation — malformed input caught at enqueue time. Never retried.
	KindValidation ErrorKind = "ValidationError"
	// KindProvider — the external analysis/rendering provider failed or
	// returned an unusable result. Retried per queue policy.
	KindProvider ErrorKind = "ProviderError"
	// KindTimeout — the handler exceeded its wall-clock budget. Retried
	// like a provider failure.
	KindTimeout ErrorKind = "TimeoutError"
	// KindStorage — the job store or queue backend is unavailable.
	KindStorage ErrorKind = "StorageError"
	// KindCancelled — the job was intentionally aborted. Never retried.
	KindCancelled ErrorKind = "Cancelled"
)

// Error carries a kind plus the original diagnostic message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the queue should re-attempt the task.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindProvider, KindTimeout, KindStorage:
		return true
	default:
		return false
	}
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Classify returns the pipeline error for err, wrapping unclassified
// errors as provider failures so retry policy still applies.
func Classify(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: KindProvider, Message: err.Error(), Err: err}
}

// ErrJobNotFound is returned by stores when an id is unknown.
var ErrJobNotFound = errors.New("job not found")

// ErrWorkflowNotFound is returned by the workflow store when an id is unknown.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrTemplateNotFound is returned by the template store when an id is unknown.
var ErrTemplateNotFound = errors.New("template not found")

// ErrAlreadyTerminal is returned by Cancel when the job already finished.
var ErrAlreadyTerminal = errors.New("job already terminal")
