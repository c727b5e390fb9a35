// Package apperror defines the error kinds shared by the backend clients and
// the HTTP layer, and the classification of any error into a response
// category.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConfiguration
	KindInitialization
	KindNotFound
	KindBackend
	KindUnsupportedReducer
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindInitialization:
		return "initialization"
	case KindNotFound:
		return "not_found"
	case KindBackend:
		return "backend"
	case KindUnsupportedReducer:
		return "unsupported_reducer"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Hint is optional guidance for the caller, returned as the response
	// message instead of the category default.
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

func Configuration(message string, err error) *Error {
	return New(KindConfiguration, message, err)
}

func Initialization(message string, err error) *Error {
	return New(KindInitialization, message, err)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func Backend(message string, err error) *Error {
	return New(KindBackend, message, err)
}

func UnsupportedReducer(name string) *Error {
	return New(KindUnsupportedReducer, fmt.Sprintf("unsupported reducer %q", name), nil)
}

// Connection reports a failed pre-flight connection check.
func Connection(message string, err error) *Error {
	return New(KindConnection, message, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}
