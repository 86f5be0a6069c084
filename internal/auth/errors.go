package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrAuthenticationFailed is returned when the provider rejects the
	// credentials or returns no identity.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTimeout matches any *TimeoutError.
	ErrTimeout = errors.New("timed out")
	// ErrProvider matches any *ProviderError.
	ErrProvider = errors.New("provider error")
)

// ValidationError reports malformed login input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TimeoutError is returned when a guarded operation exceeds its budget.
type TimeoutError struct {
	Message string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (after %s)", e.Message, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ProviderError wraps a failure of a secondary provider call such as sign-out
// or a profile query.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}
