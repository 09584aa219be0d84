package apperr

import (
	"errors"
	"io/fs"
)

// Envelope is the JSON shape returned to callers on failure.
type Envelope struct {
	Success bool       `json:"success"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error part of an Envelope.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Failure builds an Envelope for err. Errors without a code are reported as
// FILE_ERROR when they are I/O failures and INVALID_ARGUMENT otherwise.
func Failure(err error) Envelope {
	var e *Error
	if !errors.As(err, &e) {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			e = Wrap(FileError, err, "file operation failed")
		} else {
			e = Wrap(InvalidArgument, err, "operation failed")
		}
	}
	return Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:    e.Code,
			Message: e.Message,
			Details: e.Details,
			Hint:    e.Hint,
		},
	}
}
