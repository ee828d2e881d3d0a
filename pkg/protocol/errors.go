package protocol

import "errors"

// ActionError classifies an action failure as retryable (transient, worth
// another attempt with backoff) or fatal (misconfiguration or a rejected
// operation that repeating cannot fix).
type ActionError struct {
	Err       error
	Retryable bool
}

func (e *ActionError) Error() string {
	return e.Err.Error()
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as a transient action failure.
func NewRetryableError(err error) *ActionError {
	return &ActionError{Err: err, Retryable: true}
}

// NewFatalError wraps err as a permanent action failure.
func NewFatalError(err error) *ActionError {
	return &ActionError{Err: err, Retryable: false}
}

// IsRetryable reports whether err should trigger another attempt. Errors not
// wrapped in an ActionError are treated as retryable: unknown failures are
// assumed transient.
func IsRetryable(err error) bool {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Retryable
	}

	return true
}
