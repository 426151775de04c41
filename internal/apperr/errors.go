// Package apperr defines the failure taxonomy shared by the tutoring core.
package apperr

import (
	"errors"
	"fmt"
)

// Stage names the external step of a turn that failed.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageGeneration    Stage = "generation"
	StageSynthesis     Stage = "synthesis"
	StageAudioStore    Stage = "audio_store"
)

// TransientExternalError wraps a failure of an external collaborator.
// The core never retries these; the caller decides.
type TransientExternalError struct {
	Stage Stage
	Err   error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *TransientExternalError) Unwrap() error {
	return e.Err
}

// NewTransient tags err with the stage it happened in.
func NewTransient(stage Stage, err error) error {
	return &TransientExternalError{Stage: stage, Err: err}
}

// DialectError reports a statement that could not be translated for the
// configured backend.
type DialectError struct {
	Dialect   string
	Statement string
	Reason    string
}

func (e *DialectError) Error() string {
	return fmt.Sprintf("dialect %s: %s (statement %q)", e.Dialect, e.Reason, e.Statement)
}

// SessionBusyError is returned when input arrives while a turn is in flight.
type SessionBusyError struct {
	LearnerID int64
	State     string
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("session of learner %d is busy (%s)", e.LearnerID, e.State)
}

// StaleSessionError is returned when a mutation was based on an outdated
// session or row version.
type StaleSessionError struct {
	LearnerID int64
	Expected  uint64
	Actual    uint64
}

func (e *StaleSessionError) Error() string {
	return fmt.Sprintf("stale state for learner %d: expected version %d, current %d", e.LearnerID, e.Expected, e.Actual)
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFound builds a NotFoundError for the entity and id.
func NewNotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// DataIntegrityError reports a detected invariant violation. Operations that
// hit one are aborted.
type DataIntegrityError struct {
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return "data integrity violation: " + e.Reason
}

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError for field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// LimitExceededError is returned once a learner used up the daily turns.
type LimitExceededError struct {
	LearnerID int64
	Limit     int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("learner %d reached the daily limit of %d turns", e.LearnerID, e.Limit)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsBusy reports whether err carries a SessionBusyError.
func IsBusy(err error) bool {
	var target *SessionBusyError
	return errors.As(err, &target)
}

// IsStale reports whether err carries a StaleSessionError.
func IsStale(err error) bool {
	var target *StaleSessionError
	return errors.As(err, &target)
}

// StageOf returns the failed stage when err is a TransientExternalError.
func StageOf(err error) (Stage, bool) {
	var target *TransientExternalError
	if errors.As(err, &target) {
		return target.Stage, true
	}
	return "", false
}
