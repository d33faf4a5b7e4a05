// Package optloop defines the contracts and error taxonomy shared by the
// sequential model-based optimization engine: the surrogate model interface
// consumed by the loop, and the typed errors its operations surface.
package optloop

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error. Every failure surfaced by the engine is
// one of these; no operation retries internally.
type Kind int

const (
	// KindInternal is an unclassified engine failure.
	KindInternal Kind = iota
	// KindShapeMismatch marks a malformed or dimensionally incompatible
	// observation or point. Always a caller bug.
	KindShapeMismatch
	// KindModelFit marks a surrogate model that could not be fit to the
	// current history (too few or degenerate observations). The loop is
	// left in its pre-fit state so the caller may add seed data and retry.
	KindModelFit
	// KindProtocolViolation marks results requested or submitted out of the
	// expected state-machine order. No partial mutation occurs.
	KindProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case KindShapeMismatch:
		return "shape_mismatch"
	case KindModelFit:
		return "model_fit"
	case KindProtocolViolation:
		return "protocol_violation"
	default:
		return "internal"
	}
}

// Error carries the failure kind plus the operation and component context in
// which it occurred.
type Error struct {
	Kind      Kind
	Op        string
	Component string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	switch {
	case e.Component != "" && e.Op != "":
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	case e.Component != "":
		prefix = e.Component
	case e.Op != "":
		prefix = e.Op
	}

	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// ShapeMismatch creates a shape-mismatch error for the given operation.
func ShapeMismatch(op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindShapeMismatch,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ModelFit wraps a surrogate fitting failure. Returns nil if err is nil.
func ModelFit(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    KindModelFit,
		Op:      op,
		Message: "surrogate model could not be fit",
		Err:     err,
	}
}

// ModelFitf creates a surrogate fitting failure with a formatted message.
func ModelFitf(op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindModelFit,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ProtocolViolation creates a state-machine ordering error.
func ProtocolViolation(op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindProtocolViolation,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context. Returns nil if err
// is nil. The kind of a wrapped *Error is preserved.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	kind := KindInternal
	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsShapeMismatch reports whether err is a shape-mismatch error.
func IsShapeMismatch(err error) bool { return isKind(err, KindShapeMismatch) }

// IsModelFit reports whether err is a surrogate fitting error.
func IsModelFit(err error) bool { return isKind(err, KindModelFit) }

// IsProtocolViolation reports whether err is a state-machine ordering error.
func IsProtocolViolation(err error) bool { return isKind(err, KindProtocolViolation) }
