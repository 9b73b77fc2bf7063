package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence unavailable")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// ValidationError rejects malformed input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError references an unknown key.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError wraps a store failure. It is always surfaced to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// UpstreamTimeoutError marks an external call that exceeded its bound.
type UpstreamTimeoutError struct {
	Upstream string
	Err      error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s: upstream timeout: %v", e.Upstream, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error {
	return e.Err
}

func (e *UpstreamTimeoutError) Is(target error) bool {
	return target == ErrUpstreamTimeout
}
