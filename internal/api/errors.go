package api

import (
	"errors"
	"fmt"

	"sentinel.org/internal/auth"
)

// Code is a stable API error code.
type Code int

const (
	CodeParametersInvalid Code = 100
	CodeInternal          Code = 111
	CodePermissions       Code = 120
	CodeNoAuth            Code = 200
	CodeNoSuchMethod      Code = 300
)

func (c Code) String() string {
	switch c {
	case CodeParametersInvalid:
		return "parameters_invalid"
	case CodeInternal:
		return "internal"
	case CodePermissions:
		return "permissions"
	case CodeNoAuth:
		return "no_auth"
	case CodeNoSuchMethod:
		return "no_such_method"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// Error is a failure that carries its own API code. Handlers return it
// for business errors; anything else becomes CodeInternal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to an underlying cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ParamError reports invalid call parameters.
func ParamError(format string, args ...any) *Error {
	return Errorf(CodeParametersInvalid, format, args...)
}

// PermissionError reports a denied operation.
func PermissionError(format string, args ...any) *Error {
	return Errorf(CodePermissions, format, args...)
}

// AsError classifies any error into an *Error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return &Error{Code: CodeInternal, Message: "Internal error.", Err: err}
	}
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return &Error{Code: CodeNoAuth, Message: auth.ErrUnauthorized.Error(), Err: err}
	case errors.Is(err, auth.ErrTokenExpired):
		return &Error{Code: CodePermissions, Message: auth.ErrTokenExpired.Error(), Err: err}
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Err: err}
}
