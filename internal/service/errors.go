package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ironsheep/segment-mcp/internal/segment"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeDiverged   ErrorType = "diverged"
	ErrorTypeStale      ErrorType = "stale_statistics"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError is the error shape both drivers report to clients.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`

	// Step, Pixel and Value locate a divergence.
	Step  int     `json:"step,omitempty"`
	Pixel int     `json:"pixel,omitempty"`
	Value float64 `json:"-"`

	Cause error `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Classify converts any error returned by the service into an AppError.
// Engine errors keep their kind; anything unrecognised is internal.
func Classify(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var segErr *segment.Error
	if errors.As(err, &segErr) {
		switch segErr.Kind {
		case segment.KindPrecondition:
			return NewValidationError(segErr.Message, err)
		case segment.KindDiverged:
			return &AppError{
				Type:       ErrorTypeDiverged,
				Message:    "descent diverged; reseed the session or lower epsilon",
				StatusCode: http.StatusUnprocessableEntity,
				Step:       segErr.Step,
				Pixel:      segErr.Index,
				Value:      segErr.Value,
				Cause:      err,
			}
		case segment.KindStaleStatistics:
			return &AppError{
				Type:       ErrorTypeStale,
				Message:    segErr.Message,
				StatusCode: http.StatusConflict,
				Cause:      err,
			}
		}
	}
	return NewInternalError("unexpected failure", err)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	return Classify(err).Type == errorType
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return Classify(err).StatusCode
}
