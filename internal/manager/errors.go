package manager

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a stream lifecycle failure class.
type ErrorCode string

const (
	CodeInvalidURL        ErrorCode = "INVALID_URL"
	CodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeLaunchFailed      ErrorCode = "LAUNCH_FAILED"
	CodeResolutionFailed  ErrorCode = "RESOLUTION_FAILED"
	CodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	CodeCrashLoop         ErrorCode = "CRASH_LOOP"
)

// StreamError is the error type returned by manager operations.
type StreamError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, format string, args ...any) *StreamError {
	return &StreamError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, cause error, format string, args ...any) *StreamError {
	return &StreamError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the error code, or empty for non-stream errors.
func CodeOf(err error) ErrorCode {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
