// Package apperror is the error taxonomy shared by every service. Callers
// branch on Code rather than on message text.
package apperror

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Newf(code Code, format string, args ...interface{}) error {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error      { return New(CodeInvalidArgument, msg) }
func NotFound(msg string) error        { return New(CodeNotFound, msg) }
func Conflict(msg string) error        { return New(CodeConflict, msg) }
func Forbidden(msg string) error       { return New(CodePermissionDenied, msg) }
func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }
func Unavailable(msg string) error     { return New(CodeUnavailable, msg) }
func Internal(msg string) error        { return New(CodeInternal, msg) }

// CodeOf extracts the code of the first AppError in err's chain. Plain errors
// are INTERNAL, context cancellation and deadlines are UNAVAILABLE.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeUnavailable
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return Is(err, CodeUnavailable)
}

// FromDB translates a gorm error into the taxonomy. what names the entity
// involved and ends up in the message.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeNotFound, what+" not found", err)
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return Wrap(CodeConflict, what+" already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Wrap(CodeNotFound, what+" references a missing record", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Wrap(CodeUnavailable, what+": store unavailable", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(CodeUnavailable, what+": store unavailable", err)
	}
	return Wrap(CodeInternal, what+": store failure", err)
}

// Some drivers do not translate every unique violation.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
