package shared

import "fmt"

// DomainError is an error with a stable code the HTTP layer maps to a status
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError with the same code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

// NewDomainError creates a DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// InvalidInputf creates an ErrInvalidInput with a formatted message
func InvalidInputf(format string, args ...any) *DomainError {
	return NewDomainError(ErrInvalidInput.Code, fmt.Sprintf(format, args...))
}

var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrRunInProgress       = NewDomainError("RUN_IN_PROGRESS", "An ingestion run is already in progress for this platform")
)
