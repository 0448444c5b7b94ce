package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure that callers can branch on.
type Code string

const (
	CodeInvalidStatus  Code = "INVALID_STATUS"
	CodeForbidden      Code = "FORBIDDEN"
	CodeCannotWithdraw Code = "CANNOT_WITHDRAW"
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeInternal       Code = "INTERNAL"
)

// Error is a coded application error. The code is the API contract; the
// message is for humans and logs.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return Newf(CodeNotFound, "%s not found: %s", resource, id)
}

// InvalidInput reports a bad request field.
func InvalidInput(field, message string) *Error {
	return Newf(CodeInvalidInput, "%s: %s", field, message)
}

// CodeOf extracts the code from an error chain, CodeInternal when none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error code to an HTTP response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidStatus, CodeCannotWithdraw, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
