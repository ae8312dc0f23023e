// Package apperror classifies orchestrator errors into the kinds the
// orchestrator formats into user-facing messages.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies how an error should be surfaced and handled.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindBusy               Kind = "BUSY"
	KindValidation         Kind = "VALIDATION"
	KindIsolation          Kind = "ISOLATION"
	KindAssistantTransport Kind = "ASSISTANT_TRANSPORT"
	KindExternalPlatform   Kind = "EXTERNAL_PLATFORM"
	KindFatal              Kind = "FATAL"
)

// AppError is an application error carrying a Kind, a user-facing Message,
// an optional remediation Hint, and an optional wrapped cause.
type AppError struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AppError with this error's Kind, so callers
// can write errors.Is(err, &apperror.AppError{Kind: apperror.KindBusy}) style checks.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NotFound creates a NotFound error for a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// Busy creates a Busy error, e.g. for a queued lock or an in-flight workflow run.
func Busy(reason string) *AppError {
	return &AppError{Kind: KindBusy, Message: reason}
}

// Validation creates a Validation error for malformed input or definitions.
func Validation(detail string) *AppError {
	return &AppError{Kind: KindValidation, Message: detail}
}

// Isolation creates an Isolation error with an optional remediation hint.
func Isolation(detail, hint string) *AppError {
	return &AppError{Kind: KindIsolation, Message: detail, Hint: hint}
}

// AssistantTransport creates an AssistantTransport error. Always recoverable with /reset.
func AssistantTransport(detail string, err error) *AppError {
	return &AppError{Kind: KindAssistantTransport, Message: detail, Hint: "Try /reset to start a fresh session.", Err: err}
}

// ExternalPlatform creates an ExternalPlatform error. Never shown to end users verbatim.
func ExternalPlatform(detail string, err error) *AppError {
	return &AppError{Kind: KindExternalPlatform, Message: detail, Err: err}
}

// Fatal wraps an unrecoverable error meant for the process supervisor.
func Fatal(err error) *AppError {
	return &AppError{Kind: KindFatal, Message: "fatal error", Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) an *AppError, and
// KindFatal otherwise — unclassified errors are treated as fatal so they
// are never silently swallowed.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindFatal
}

// Format renders err into the message shown to the end user. NotFound,
// Validation and Isolation errors surface their detail and hint directly;
// AssistantTransport includes the /reset hint; Busy surfaces a fixed
// message; ExternalPlatform and Fatal never leak detail to end users.
func Format(err error) string {
	var ae *AppError
	if !errors.As(err, &ae) {
		return "Something went wrong handling that message."
	}
	switch ae.Kind {
	case KindNotFound, KindValidation:
		return ae.Message
	case KindIsolation:
		if ae.Hint != "" {
			return fmt.Sprintf("%s (%s)", ae.Message, ae.Hint)
		}
		return ae.Message
	case KindAssistantTransport:
		return fmt.Sprintf("%s %s", ae.Message, ae.Hint)
	case KindBusy:
		return "Another operation is in progress for this conversation."
	case KindExternalPlatform:
		return "Unable to reach the platform right now."
	default:
		return "An internal error occurred."
	}
}
