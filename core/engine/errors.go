package engine

import "fmt"

// UserError marks conditions caused by user input. They are recovered
// locally with a neutral reply and never propagate out of a dispatch.
type UserError struct {
	code string
	msg  string
}

// Error implements the error interface.
func (e *UserError) Error() string { return e.msg }

// Code returns a stable machine-readable identifier for log summaries.
func (e *UserError) Code() string { return e.code }

func userError(code, msg string) *UserError {
	return &UserError{code: code, msg: msg}
}

var (
	// ErrAlreadySubscribed is returned when subscribing an existing member.
	ErrAlreadySubscribed = userError("ALREADY_SUBSCRIBED", "user is already subscribed")
	// ErrNotSubscribed is returned when unsubscribing a non-member.
	ErrNotSubscribed = userError("NOT_SUBSCRIBED", "user is not subscribed")
	// ErrUnknownCommand is returned when input resolves to no command.
	ErrUnknownCommand = userError("UNKNOWN_COMMAND", "input matches no command in the current menu")
)

// ErrNotFound is returned by stores for absent rows.
var ErrNotFound = fmt.Errorf("not found")

// DeliveryError wraps a transport-level send failure with its target.
// Delivery errors are logged and degraded, never fatal.
type DeliveryError struct {
	Platform   Platform
	PlatformID int64
	Err        error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s/%d: %v", e.Platform, e.PlatformID, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *DeliveryError) Unwrap() error { return e.Err }

// Code returns a stable identifier for log summaries.
func (e *DeliveryError) Code() string { return "DELIVERY_FAILED" }
