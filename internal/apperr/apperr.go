// Package apperr defines the machine-readable error envelope returned to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

// Error codes shared by the package exchange engine and the CLI.
const (
	IndexNotFound   Code = "INDEX_NOT_FOUND"
	InvalidPaperID  Code = "INVALID_PAPER_ID"
	PaperNotFound   Code = "PAPER_NOT_FOUND"
	InvalidPackage  Code = "INVALID_PACKAGE"
	PathTraversal   Code = "PATH_TRAVERSAL"
	PackageTooLarge Code = "PACKAGE_TOO_LARGE"
	FileError       Code = "FILE_ERROR"
	InvalidArgument Code = "INVALID_ARGUMENT"
)

// defaultHints are the remediation hints used when a caller does not supply one.
var defaultHints = map[Code]string{
	IndexNotFound:   "No papers collected yet. Run 'shelf add' first.",
	InvalidPaperID:  "Paper IDs must be in format YYMM.NNNNN (e.g., 2401.12345).",
	PaperNotFound:   "Ensure the paper exists in your collection.",
	InvalidPackage:  "The package is malformed; ask the sender to re-export it.",
	PathTraversal:   "The package contains paths outside its root and was rejected as hostile.",
	PackageTooLarge: "The package exceeds configured size limits and was rejected as hostile.",
	FileError:       "Check that the paths exist and that you have write permission.",
	InvalidArgument: "Check the command arguments.",
}

// Error is a coded failure with a human-readable remediation hint.
type Error struct {
	Code    Code
	Message string
	Details string
	Hint    string
	Err     error // Underlying cause, if any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with the default hint for its code.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Hint:    defaultHints[code],
	}
}

// Wrap creates a coded error around an underlying cause. The cause's message
// becomes the details.
func Wrap(code Code, err error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Err = err
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// WithDetails returns e with its details replaced.
func (e *Error) WithDetails(format string, args ...any) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithHint returns e with its hint replaced.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsSecurity reports whether err is a security violation (hostile input)
// rather than an ordinary validation failure.
func IsSecurity(err error) bool {
	switch CodeOf(err) {
	case PathTraversal, PackageTooLarge:
		return true
	}
	return false
}
