package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown proposal or conversation ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a status transition is not permitted.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation is returned when a payload or tool argument fails checks.
	ErrValidation = errors.New("validation failed")
	// ErrUpstream is returned when the reasoning backend or the ledger fails.
	ErrUpstream = errors.New("upstream failure")
	// ErrBusy is returned when a session is already processing a message.
	ErrBusy = errors.New("session busy")
)

// ValidationError names the offending field so the caller can re-prompt.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a *ValidationError.
func Invalid(field, reason string, args ...any) error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &ValidationError{Field: field, Reason: reason}
}

// StateError reports a rejected transition.
type StateError struct {
	ID     string
	Status ProposalStatus
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s proposal %s: status is %s", e.Op, e.ID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// UpstreamError wraps a failure of an external collaborator.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// Upstream wraps err as an *UpstreamError unless it already is one.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// NotFound builds an error wrapping ErrNotFound.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
