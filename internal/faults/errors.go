// Package faults defines the error taxonomy shared by the controller.
//
// Every failure the controller can hit is one of a small set of categories.
// The category decides the policy: a provisioning failure ends in a reboot,
// link and session failures are retried by the supervisor, and sensor
// mismatches and malformed commands are logged and otherwise ignored.
package faults

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrorType represents the category of failure that occurred
type ErrorType int

const (
	// ErrTypeProvisioning means every credential source was exhausted
	ErrTypeProvisioning ErrorType = iota
	// ErrTypeLink means no candidate network could be joined in time
	ErrTypeLink
	// ErrTypeTimeSync means the clock never reached a plausible epoch
	ErrTypeTimeSync
	// ErrTypeSession means the broker connection or a publish failed
	ErrTypeSession
	// ErrTypeSensorMismatch means a pulse-confirmed actuator did not reach its target
	ErrTypeSensorMismatch
	// ErrTypeMalformedCommand means an inbound payload was unparsable or incomplete
	ErrTypeMalformedCommand
	// ErrTypeHardware means a pin or sensor operation failed
	ErrTypeHardware
	// ErrTypeValidation indicates invalid configuration or credentials
	ErrTypeValidation
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeProvisioning:
		return "Provisioning Failure"
	case ErrTypeLink:
		return "Link Failure"
	case ErrTypeTimeSync:
		return "Time Sync Failure"
	case ErrTypeSession:
		return "Session Failure"
	case ErrTypeSensorMismatch:
		return "Sensor Mismatch"
	case ErrTypeMalformedCommand:
		return "Malformed Command"
	case ErrTypeHardware:
		return "Hardware Error"
	case ErrTypeValidation:
		return "Validation Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is a categorized controller failure
type Error struct {
	Type      ErrorType // Category of failure
	Message   string    // Human-readable message
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether the supervisor retries on its own
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewProvisioningFailure reports that all credential sources are exhausted.
// It is terminal: the caller requests a restart.
func NewProvisioningFailure(message string) *Error {
	return &Error{
		Type:      ErrTypeProvisioning,
		Message:   message,
		Retryable: false,
	}
}

// NewLinkFailure reports a failed network join
func NewLinkFailure(message string, err error) *Error {
	return &Error{
		Type:      ErrTypeLink,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewTimeSyncFailure reports that the clock never became plausible.
// It is a warning; bring-up continues.
func NewTimeSyncFailure(message string) *Error {
	return &Error{
		Type:      ErrTypeTimeSync,
		Message:   message,
		Retryable: true,
	}
}

// NewSessionFailure reports a broker connect or publish failure
func NewSessionFailure(message string, err error) *Error {
	return &Error{
		Type:      ErrTypeSession,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewSensorMismatch reports an actuator whose feedback disagrees with the request
func NewSensorMismatch(message string) *Error {
	return &Error{
		Type:      ErrTypeSensorMismatch,
		Message:   message,
		Retryable: false,
	}
}

// NewMalformedCommand reports an inbound payload that cannot be applied
func NewMalformedCommand(message string, err error) *Error {
	return &Error{
		Type:      ErrTypeMalformedCommand,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewHardwareError reports a failed pin or sensor operation
func NewHardwareError(message string, err error) *Error {
	return &Error{
		Type:      ErrTypeHardware,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return &Error{
		Type:      ErrTypeValidation,
		Message:   message,
		Retryable: false,
	}
}

// Is reports whether err (or anything it wraps) is a controller error of type t
func Is(err error, t ErrorType) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Type == t
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// IsTimeout reports whether err was caused by a deadline
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err)
}
