package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.Code.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeSubmission = "SUBMISSION_ERROR"
	CodeTransport  = "TRANSPORT_ERROR"
	CodeTaskFailed = "TASK_FAILED"
	CodeTimeout    = "TIMEOUT"
	CodeValidation = "VALIDATION_ERROR"
)

// Task lifecycle errors. Match with errors.Is.
var (
	// ErrSubmission: the job was not accepted. Fatal, never retried by the engine.
	ErrSubmission = errors.New("submission failed")
	// ErrTransport: a single status fetch failed. Transient.
	ErrTransport = errors.New("transport error")
	// ErrDecodedFailure: the remote reported the task as failed.
	ErrDecodedFailure = errors.New("task failed")
	// ErrTimeout: the session deadline passed while the task was still running.
	ErrTimeout = errors.New("timed out")
	// ErrValidation: the terminal payload was rejected by a result validator.
	ErrValidation = errors.New("validation failed")

	ErrInvalidInput = errors.New("invalid input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func SubmissionError(message string, cause error) *AppError {
	return NewAppError(CodeSubmission, message, withKind(ErrSubmission, cause))
}

func TransportError(message string, cause error) *AppError {
	return NewAppError(CodeTransport, message, withKind(ErrTransport, cause))
}

func TaskFailedError(message string) *AppError {
	return NewAppError(CodeTaskFailed, message, ErrDecodedFailure)
}

func TimeoutError(message string) *AppError {
	return NewAppError(CodeTimeout, message, ErrTimeout)
}

func ValidationError(message string, cause error) *AppError {
	return NewAppError(CodeValidation, message, withKind(ErrValidation, cause))
}

func withKind(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// UserMessage returns the human-facing part of err: the AppError message when
// there is one, err.Error() otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// IsTransientCode reports whether a gRPC status code describes a condition
// that may clear up on the next attempt.
func IsTransientCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal, codes.Unknown:
		return true
	default:
		return false
	}
}

// GRPCCode extracts the status code from a gRPC error; non-status errors map to codes.Unknown.
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
