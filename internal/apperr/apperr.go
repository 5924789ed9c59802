// Package apperr defines the error taxonomy surfaced across the service
// boundary. Every user-visible failure is one of four kinds; anything else
// is treated as an internal error.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	// KindNotFound marks a missing project, dataset or artifact.
	KindNotFound Kind = "not_found"
	// KindPrecondition marks a stage invoked out of order.
	KindPrecondition Kind = "precondition_failed"
	// KindValidation marks a malformed plan or request.
	KindValidation Kind = "validation_failed"
	// KindExecution marks a transformer or model fit/predict failure.
	KindExecution Kind = "execution_failed"
)

// Error is a classified, user-presentable error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity by name and id.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

// Precondition reports a stage dependency that has not been satisfied.
func Precondition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed input.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Execution wraps a failure from a transformer or model.
func Execution(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
