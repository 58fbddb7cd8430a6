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

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation failed")

	ErrTextExtraction = errors.New("no text extracted")
	ErrRateLimited    = errors.New("ai provider rate limited")
	ErrAIProvider     = errors.New("ai provider error")
	ErrResponseParse  = errors.New("ai response parse failure")
	ErrPersistence    = errors.New("persistence error")
	ErrJobFailure     = errors.New("background job failed")
)

// Error codes carried by AppError.Code.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeTextExtraction = "TEXT_EXTRACTION_ERROR"
	CodeRateLimited    = "AI_PROVIDER_RATE_LIMITED"
	CodeAIProvider     = "AI_PROVIDER_ERROR"
	CodePersistence    = "PERSISTENCE_ERROR"
	CodeJobFailure     = "JOB_FAILURE"
	CodeNotFound       = "NOT_FOUND"
	CodeConfig         = "CONFIG_ERROR"
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

// ValidationErr reports missing or malformed caller input. Never retried.
func ValidationErr(message string) *AppError {
	return NewAppError(CodeValidation, message, ErrValidation)
}

// TextExtractionErr reports a collaborator that produced no text.
func TextExtractionErr(message string, cause error) *AppError {
	return NewAppError(CodeTextExtraction, message, joinCause(ErrTextExtraction, cause))
}

// ProviderErr reports retry exhaustion against the AI provider. A last
// failure of HTTP 429 keeps ErrRateLimited in the chain.
func ProviderErr(message string, cause error) *AppError {
	if errors.Is(cause, ErrRateLimited) {
		return NewAppError(CodeRateLimited, message, joinCause(ErrAIProvider, cause))
	}
	return NewAppError(CodeAIProvider, message, joinCause(ErrAIProvider, cause))
}

// PersistenceErr reports a failed gateway operation.
func PersistenceErr(message string, cause error) *AppError {
	return NewAppError(CodePersistence, message, joinCause(ErrPersistence, cause))
}

// JobFailureErr is recorded on a background job that reached the failed state.
func JobFailureErr(jobID string, cause error) *AppError {
	return NewAppError(CodeJobFailure, "job "+jobID, joinCause(ErrJobFailure, cause))
}

// NotFoundErr reports a missing entity.
func NotFoundErr(message string) *AppError {
	return NewAppError(CodeNotFound, message, ErrNotFound)
}

func joinCause(sentinel, cause error) error {
	switch {
	case cause == nil:
		return sentinel
	case errors.Is(cause, sentinel):
		return cause
	default:
		return errors.Join(sentinel, cause)
	}
}

// ToStatus maps the error taxonomy onto gRPC status codes.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrTextExtraction):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrAIProvider):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
