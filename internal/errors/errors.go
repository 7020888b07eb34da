package errors

import (
	stderrors "errors"
	"fmt"

	"rnadiff/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of an
// AppError found anywhere in the chain
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:  code,
		Cause: err,
	}
}

// IsAppError checks if an error chain contains an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError, the code implied by a
// domain sentinel, or INTERNAL_ERROR
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Code != CodeInternalError {
		return appErr.Code
	}
	return Classify(err)
}

// Classify maps domain sentinel errors to codes
func Classify(err error) string {
	switch {
	case stderrors.Is(err, core.ErrEmptyInput):
		return CodeEmptyInput
	case core.IsValidationError(err):
		return CodeInputValidation
	case core.IsSearchError(err):
		return CodeSearchUnavailable
	case core.IsNotFoundError(err):
		return CodeNotFound
	case stderrors.Is(err, core.ErrConvergence):
		return CodeConvergence
	}
	return CodeInternalError
}

// Predefined error codes
const (
	CodeInputValidation   = "INPUT_VALIDATION"
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeSearchUnavailable = "SEARCH_UNAVAILABLE"
	CodeQueryUnavailable  = "QUERY_UNAVAILABLE"
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConvergence       = "CONVERGENCE"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func SearchUnavailable(cause error) *AppError {
	return &AppError{Code: CodeSearchUnavailable, Message: "similarity search failed", Cause: cause}
}

// QueryUnavailable marks a query sequence that could not be resolved
// locally, so no remote search was attempted
func QueryUnavailable(cause error) *AppError {
	return &AppError{Code: CodeQueryUnavailable, Message: "no query sequence", Cause: cause}
}
