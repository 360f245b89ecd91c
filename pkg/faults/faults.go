// Package faults defines the classified error types used across the
// installer. Expected outcomes (missing version, unsupported operation)
// are distinguished from configuration mistakes and upstream failures so
// callers can decide what to surface to the user.
package faults

import (
	"errors"
	"fmt"
)

// Class represents the classification of an error.
type Class string

const (
	// ClassConfig indicates a manifest or registry configuration error:
	// unknown provider, file selector or action discriminator. Fatal for
	// the single asset that carries it.
	ClassConfig Class = "config"

	// ClassUpstream indicates an HTTP or API failure while talking to a
	// remote source.
	ClassUpstream Class = "upstream"

	// ClassNotFound indicates that no matching version, build or run
	// could be resolved. Fatal for the asset, expected as an outcome.
	ClassNotFound Class = "not-found"

	// ClassExpression indicates an evaluator fault inside a gate or
	// action expression.
	ClassExpression Class = "expression"
)

// Fault is a classified error with optional asset context.
type Fault struct {
	// Class is the error classification.
	Class Class

	// Message is the human-readable error message.
	Message string

	// Friendly marks the message as safe to show to the user without
	// internal diagnostic detail (e.g. "artifact expired").
	Friendly bool

	// AssetID is the asset that caused the error, if applicable.
	AssetID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	msg := f.Message
	if f.AssetID != "" {
		msg = fmt.Sprintf("%s (asset=%s)", msg, f.AssetID)
	}
	if f.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", f.Class, msg, f.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", f.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (f *Fault) Unwrap() error {
	return f.Err
}

// UserMessage returns the message without wrapped internal detail when
// the fault is friendly, and the full chain otherwise.
func (f *Fault) UserMessage() string {
	if f.Friendly {
		return f.Message
	}
	return f.Error()
}

// WithAsset adds asset context to the fault.
func (f *Fault) WithAsset(assetID string) *Fault {
	f.AssetID = assetID
	return f
}

// NewConfig creates a configuration fault.
func NewConfig(format string, args ...interface{}) *Fault {
	return &Fault{Class: ClassConfig, Message: fmt.Sprintf(format, args...)}
}

// NewUpstream creates an upstream fault wrapping err.
func NewUpstream(err error, format string, args ...interface{}) *Fault {
	return &Fault{Class: ClassUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewFriendly creates an upstream fault whose message is safe to show
// to the user verbatim.
func NewFriendly(format string, args ...interface{}) *Fault {
	return &Fault{Class: ClassUpstream, Message: fmt.Sprintf(format, args...), Friendly: true}
}

// NewNotFound creates a not-found fault.
func NewNotFound(format string, args ...interface{}) *Fault {
	return &Fault{Class: ClassNotFound, Message: fmt.Sprintf(format, args...), Friendly: true}
}

// NewExpression creates an expression fault wrapping err.
func NewExpression(err error, format string, args ...interface{}) *Fault {
	return &Fault{Class: ClassExpression, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsFriendly reports whether err carries a user-safe message.
func IsFriendly(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Friendly
	}
	return false
}

// IsNotFound reports whether err is classified as not-found.
func IsNotFound(err error) bool {
	return hasClass(err, ClassNotFound)
}

// IsConfig reports whether err is classified as a configuration error.
func IsConfig(err error) bool {
	return hasClass(err, ClassConfig)
}

// IsUpstream reports whether err is classified as an upstream failure.
func IsUpstream(err error) bool {
	return hasClass(err, ClassUpstream)
}

func hasClass(err error, class Class) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Class == class
	}
	return false
}

// UserMessage extracts the user-safe message from err. Non-fault errors
// are returned as-is.
func UserMessage(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.UserMessage()
	}
	return err.Error()
}
