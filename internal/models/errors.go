package models

import (
	"errors"
	"fmt"
)

// StateError reports an invalid status transition, a malformed plan
// document, or an inconsistent checkpoint. It is never retried and
// always propagates to the top level.
type StateError struct {
	Message string
	Err     error
}

func NewStateError(msg string, err error) *StateError {
	return &StateError{Message: msg, Err: err}
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("state error: %s", e.Message)
}

func (e *StateError) Unwrap() error { return e.Err }

// ConfigError reports a missing or unparseable plan document, or a
// provider that isn't installed. It propagates to the caller with
// guidance and is never retried.
type ConfigError struct {
	Message string
	Err     error
}

func NewConfigError(msg string, err error) *ConfigError {
	return &ConfigError{Message: msg, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ProviderErrorKind distinguishes the ways a provider invocation can
// fail.
type ProviderErrorKind int

const (
	ProviderTimeout ProviderErrorKind = iota
	ProviderSpawn
	ProviderNonZeroExit
	ProviderParseFailure
)

func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderTimeout:
		return "timeout"
	case ProviderSpawn:
		return "spawn"
	case ProviderNonZeroExit:
		return "non_zero_exit"
	case ProviderParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// ProviderError reports a failure from one provider invocation. It is
// passed to the Error Classifier to derive retry policy.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Message  string
	Err      error
}

func NewProviderError(provider string, kind ProviderErrorKind, msg string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: msg, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s): %v", e.Provider, e.Message, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError reports that a validator stage crashed while
// running, distinct from a stage finishing and simply not passing. It
// is treated as a stage failure, never a fatal engine error.
type ValidationError struct {
	Stage   CheckKind
	Message string
	Err     error
}

func NewValidationError(stage CheckKind, msg string, err error) *ValidationError {
	return &ValidationError{Stage: stage, Message: msg, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation stage %s errored: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CancelledError reports that a run was cancelled while a task was
// in-flight. The task remains in_progress and will be re-attempted on
// the next run.
type CancelledError struct {
	TaskID string
}

func NewCancelledError(taskID string) *CancelledError {
	return &CancelledError{TaskID: taskID}
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled while task %s was in flight", e.TaskID)
}

// IsStateError reports whether err is or wraps a StateError.
func IsStateError(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// IsProviderError reports whether err is or wraps a ProviderError.
func IsProviderError(err error) bool {
	var e *ProviderError
	return errors.As(err, &e)
}

// IsCancelledError reports whether err is or wraps a CancelledError.
func IsCancelledError(err error) bool {
	var e *CancelledError
	return errors.As(err, &e)
}
