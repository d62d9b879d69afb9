// Package errors provides structured error types for the graph compiler passes.
//
// Every failure of the unfolding and partitioning passes is fatal for the
// compile unit being processed. The error code tells the caller which class
// of failure aborted the attempt:
//   - STRUCTURAL: a required graph element (node, anchor, subgraph) is missing
//   - MISSING_ATTRIBUTE: a required attribute such as a parent index is absent
//   - INVALID_OPTION: a configuration value is malformed or out of range
//   - TOO_MUCH_RECURSION: subgraph nesting exceeded the depth guard
//   - CONTRACT_VIOLATION: a caller-side precondition does not hold
//   - ITERATION_LIMIT: the re-partition loop did not converge
//   - INVALID_STATE: a pass was reused after failing or completing
//
// # Usage
//
//	err := errors.New(errors.ErrCodeMissingAttribute, "data %s has no parent index", name)
//	if errors.Is(err, errors.ErrCodeMissingAttribute) {
//	    // Handle missing attribute
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStructural, origErr, "link %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Graph errors
	ErrCodeStructural       Code = "STRUCTURAL"
	ErrCodeMissingAttribute Code = "MISSING_ATTRIBUTE"
	ErrCodeContract         Code = "CONTRACT_VIOLATION"

	// Policy errors
	ErrCodeInvalidOption Code = "INVALID_OPTION"

	// Resource-limit errors
	ErrCodeTooMuchRecursion Code = "TOO_MUCH_RECURSION"
	ErrCodeIterationLimit   Code = "ITERATION_LIMIT"

	// Lifecycle errors
	ErrCodeInvalidState Code = "INVALID_STATE"

	// Input errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeFileNotFound  Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It returns the code of the outermost *Error in the chain, so a wrapped
// STRUCTURAL error around an INVALID_OPTION cause reports STRUCTURAL.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
