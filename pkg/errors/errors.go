// Package errors provides structured error types for pkgreuse.
//
// Every failure the reuse pass can encounter maps to a [Code]. Most of them
// are per-item and non-fatal (a root that cannot be scanned, a manifest that
// cannot be parsed, a dependency that cannot be copied); callers log them and
// continue. Only [ErrCodeNoInput], [ErrCodeFallback], [ErrCodeInvalidPackage]
// and [ErrCodeInvalidConfig] end a run.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNoInput, "no package.json in %s", dir)
//	if errors.Is(err, errors.ErrCodeNoInput) {
//	    // nothing to install
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeScan, origErr, "scan %s", root)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeNoInput         Code = "NO_INPUT"

	// Discovery errors
	ErrCodeScan           Code = "SCAN_FAILED"
	ErrCodeStaleCandidate Code = "STALE_CANDIDATE"

	// Install errors
	ErrCodeContainment   Code = "CONTAINMENT"
	ErrCodeCrossDevice   Code = "CROSS_DEVICE"
	ErrCodeCopy          Code = "COPY_FAILED"
	ErrCodeManifestWrite Code = "MANIFEST_WRITE"

	// Fallback errors
	ErrCodeFallback Code = "FALLBACK_FAILED"

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
// It unwraps the error chain looking for an *Error with a matching code.
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
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
