package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreUnavailable marks a systemic store failure (connection refused, pool closed).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// FailureReason is the machine-readable cause reported for a failed batch item.
type FailureReason string

const (
	ReasonNormalization FailureReason = "normalization_error"
	ReasonStoreWrite    FailureReason = "store_write_error"
	ReasonTimeout       FailureReason = "timeout"
)

// ValidationError is bad caller input. It is reported, never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

func Invalid(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NormalizationError is a raw result that could not be turned into a document at all.
type NormalizationError struct {
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e == nil {
		return "normalization error"
	}
	if e.Err != nil {
		return "normalize: " + e.Reason + ": " + e.Err.Error()
	}
	return "normalize: " + e.Reason
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// StoreWriteError is a transient write failure for one document.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	if e == nil {
		return "store write error"
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// TimeoutError is an item that exceeded its own deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return "timeout"
	}
	return fmt.Sprintf("%s: timeout after %s", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return context.DeadlineExceeded
}

// CleanupPartialFailure is one cleanup batch that failed even after the smaller-batch retry.
type CleanupPartialFailure struct {
	BatchSize int
	Documents int
	Err       error
}

func (e *CleanupPartialFailure) Error() string {
	if e == nil {
		return "cleanup batch failed"
	}
	return fmt.Sprintf("cleanup batch (size=%d, documents=%d) failed: %v", e.BatchSize, e.Documents, e.Err)
}

func (e *CleanupPartialFailure) Unwrap() error { return e.Err }

// Reason maps an item error to its reported failure reason.
func Reason(err error) FailureReason {
	var (
		nerr *NormalizationError
		terr *TimeoutError
	)
	switch {
	case errors.As(err, &nerr):
		return ReasonNormalization
	case errors.As(err, &terr), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonStoreWrite
	}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsSystemic(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
