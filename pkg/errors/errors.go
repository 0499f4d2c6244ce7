// Package errors provides the coded error taxonomy shared by the tiling
// planner, the axis stitcher and the orchestrator.
//
// Every failure the core reports is one of:
//   - CONFIGURATION: invalid tiling geometry, raised before any I/O
//   - MISSING_TILE / MISSING_ROW_STRIP: an expected input file is absent
//   - GEOMETRY_MISMATCH: tile shapes disagree with the computed grid
//   - INVALID_FORMAT: a label file could not be decoded or encoded
//
// None of them is retried inside the core. Callers branch on the code:
//
//	if errors.Is(err, errors.ErrCodeMissingTile) {
//	    // re-run the labeler for that row
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	ErrCodeConfiguration    Code = "CONFIGURATION"
	ErrCodeMissingTile      Code = "MISSING_TILE"
	ErrCodeMissingRowStrip  Code = "MISSING_ROW_STRIP"
	ErrCodeGeometryMismatch Code = "GEOMETRY_MISMATCH"
	ErrCodeInvalidFormat    Code = "INVALID_FORMAT"
	ErrCodeInternal         Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error, if any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on a bare Code as well as on another *Error with
// the same code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Code == t.Code
	case Code:
		return e.Code == t
	}
	return false
}

// Error makes Code usable as an errors.Is target.
func (c Code) Error() string { return string(c) }

// New creates an error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to cause. A nil cause returns nil.
func Wrap(code Code, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	return errors.Is(err, code)
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Configuration is shorthand for New(ErrCodeConfiguration, ...).
func Configuration(format string, args ...any) *Error {
	return New(ErrCodeConfiguration, format, args...)
}

// GeometryMismatch is shorthand for New(ErrCodeGeometryMismatch, ...).
func GeometryMismatch(format string, args ...any) *Error {
	return New(ErrCodeGeometryMismatch, format, args...)
}
