package domain

import (
	"errors"
	"fmt"
)

// Common domain errors.
var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when an operation conflicts with the current state.
	ErrConflict = errors.New("conflict")

	// ErrCalculationInFlight is returned when a calculation is requested while one is outstanding.
	ErrCalculationInFlight = fmt.Errorf("%w: calculation already in progress", ErrConflict)

	// ErrPerformanceInFlight is returned when a refresh is requested while a fetch is outstanding.
	ErrPerformanceInFlight = fmt.Errorf("%w: performance fetch already in progress", ErrConflict)

	// ErrBackendUnavailable is returned when the remote allocation service cannot be reached.
	ErrBackendUnavailable = errors.New("allocation service unavailable")

	// ErrSessionLimit is returned when the session manager is full.
	ErrSessionLimit = errors.New("session limit reached")
)

// Generic messages used when the remote service reports failure without text.
const (
	MsgFetchStrategiesFailed  = "Failed to fetch strategies"
	MsgCalculateFailed        = "Failed to calculate allocation"
	MsgFetchPerformanceFailed = "Failed to fetch performance"
)

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

func (e NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) NotFoundError {
	return NotFoundError{Resource: resource, ID: id}
}

// ValidationError is a local, user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// NetworkError means the remote service could not be reached.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is lets errors.Is match ErrBackendUnavailable.
func (e *NetworkError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServiceError means the remote service answered but reported failure or sent a malformed envelope.
type ServiceError struct {
	Op         string
	Message    string
	StatusCode int
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsService reports whether err is a ServiceError.
func IsService(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// UserMessage returns the text shown to a user for err.
// Service errors surface their own message and everything else falls back to the given text.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return fallback
}
