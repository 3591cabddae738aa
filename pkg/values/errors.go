package values

import (
	"errors"
	"fmt"
)

// Code mirrors the subset of managed-service RPC status codes the engine
// raises, per the error handling design.
type Code string

const (
	CodeInvalidArgument    Code = "InvalidArgument"
	CodeFailedPrecondition Code = "FailedPrecondition"
	CodeNotFound           Code = "NotFound"
	CodeAlreadyExists      Code = "AlreadyExists"
	CodeAborted            Code = "Aborted"
	CodeDeadlineExceeded   Code = "DeadlineExceeded"
	CodeUnavailable        Code = "Unavailable"
	CodePermissionDenied   Code = "PermissionDenied"
)

// Error is the engine's error type. Field is set only for argument errors,
// naming the offending field path.
type Error struct {
	Code    Code
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf extracts the Code from err, or "" if err is not (or does not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func InvalidArgument(field, format string, a ...interface{}) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, a...), Field: field}
}

func FailedPrecondition(format string, a ...interface{}) *Error {
	return &Error{Code: CodeFailedPrecondition, Message: fmt.Sprintf(format, a...)}
}

func NotFound(format string, a ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, a...)}
}

func AlreadyExists(format string, a ...interface{}) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, a...)}
}

func Aborted(format string, a ...interface{}) *Error {
	return &Error{Code: CodeAborted, Message: fmt.Sprintf(format, a...)}
}

func DeadlineExceeded(format string, a ...interface{}) *Error {
	return &Error{Code: CodeDeadlineExceeded, Message: fmt.Sprintf(format, a...)}
}

func Unavailable(format string, a ...interface{}) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, a...)}
}

func PermissionDenied(format string, a ...interface{}) *Error {
	return &Error{Code: CodePermissionDenied, Message: fmt.Sprintf(format, a...)}
}
