/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries a business code, a user-facing message, the HTTP status of the failed call
(zero when no call was made) and an optional underlying cause.
*/
package errs

import (
	"errors"
	"fmt"
	"strings"

	"chatsync/internal/pkg/logx"
)

// CustomError is the error structure used throughout the client.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the HTTP status code of the failed call, or 0.
	Status int

	// cause is the underlying error, if any.
	cause error
}

// Error implements the standard Go error interface.
func (e *CustomError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("error code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *CustomError) Unwrap() error {
	return e.cause
}

// NewError constructs a new *CustomError from a predefined error code.
// The optional details are printf-style arguments for the message template.
// If an unknown code is provided, it returns ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Wrap constructs a *CustomError for code that keeps err as its cause.
func Wrap(code int, err error, details ...any) *CustomError {
	customErr := NewError(code, details...)
	customErr.cause = err
	return customErr
}

// FromResponse builds the error for a non-2xx API response. The server's own message
// is used when present, otherwise the generic fallback.
func FromResponse(status int, serverMessage string) *CustomError {
	code := ErrServerRejected
	if status == 401 {
		code = ErrUnauthorized
	}

	customErr := NewError(code)
	customErr.Status = status

	if msg := strings.TrimSpace(serverMessage); msg != "" {
		customErr.Message = msg
	} else {
		customErr.Message = GenericMessage
	}

	return customErr
}

// Is reports whether err is (or wraps) a *CustomError with the given code.
func Is(err error, code int) bool {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code == code
	}
	return false
}

// Message returns the user-facing message for any error.
func Message(err error) string {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Message
	}
	return GenericMessage
}
