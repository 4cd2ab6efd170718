package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrConcurrencyConflict     = errors.New("concurrent transition lost")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// NotFoundError indicates a referenced record does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// CollaboratorError wraps a failed read of an external signal.
type CollaboratorError struct {
	Source string
	Err    error
}

func (e CollaboratorError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e CollaboratorError) Unwrap() error { return e.Err }

func (e CollaboratorError) Is(target error) bool { return target == ErrCollaboratorUnavailable }
