package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types for the application
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when trying to create a duplicate resource
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrBadRequest is returned when the request is malformed
	ErrBadRequest = errors.New("bad request")

	// ErrValidation is returned when validation fails
	ErrValidation = errors.New("validation error")

	// ErrInternal is returned for internal server errors
	ErrInternal = errors.New("internal server error")

	// ErrConflict is returned when there's a conflict (e.g., version mismatch)
	ErrConflict = errors.New("conflict")

	// ErrServiceUnavailable is returned when a dependent service is unavailable
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Scheduling-specific errors
var (
	// ErrProjectNotFound is returned when a project is not found
	ErrProjectNotFound = errors.New("project not found")

	// ErrStageNotFound is returned when a stage is not found
	ErrStageNotFound = errors.New("stage not found")

	// ErrCyclicDependency is returned when the dependency graph is not acyclic
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrUnknownDependency is returned when a dependency references a stage
	// that does not exist in the graph
	ErrUnknownDependency = errors.New("dependency references unknown stage")

	// ErrSelfDependency is returned when a stage depends on itself
	ErrSelfDependency = errors.New("stage cannot depend on itself")

	// ErrStageFinalized is returned when an edit targets a completed stage
	// whose dates are immutable
	ErrStageFinalized = errors.New("completed stage dates are immutable")

	// ErrInvalidDateRange is returned when a start date falls after an end date
	ErrInvalidDateRange = errors.New("start date must not be after end date")

	// ErrNegativeDuration is returned when a stage duration is negative
	ErrNegativeDuration = errors.New("estimated duration must not be negative")

	// ErrInternalConsistency indicates a scheduling invariant was violated.
	// This is a bug in the graph code, not bad input, and is non-recoverable.
	ErrInternalConsistency = errors.New("internal consistency violation")

	// ErrCascadeConflict is returned when a cascade would reschedule work
	// that cannot move
	ErrCascadeConflict = errors.New("cascade conflicts with existing schedule")

	// ErrCrossProjectDependency is returned when trying to create a dependency across projects
	ErrCrossProjectDependency = errors.New("dependencies must be within the same project")

	// ErrWatcherAlreadyRunning is returned when starting a watcher that is already watching
	ErrWatcherAlreadyRunning = errors.New("watcher already running for this project")
)

// AppError represents an application error with additional context
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(err error, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetails creates a new AppError with additional details
func NewWithDetails(err error, message string, statusCode int, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    fmt.Sprintf("%s: %v", message, err),
		StatusCode: http.StatusInternalServerError,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// ValidationError creates a validation error with field details
func ValidationError(message string, fields map[string]string) *AppError {
	details := make(map[string]interface{})
	for k, v := range fields {
		details[k] = v
	}
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Internal creates an internal server error
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Err:        ErrInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrStageNotFound)
}

// IsValidation checks if an error is malformed-input related
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownDependency) ||
		errors.Is(err, ErrSelfDependency) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrNegativeDuration)
}

// HTTPStatusCode returns the appropriate HTTP status code for an error
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrCyclicDependency),
		errors.Is(err, ErrStageFinalized),
		errors.Is(err, ErrCascadeConflict),
		errors.Is(err, ErrWatcherAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
