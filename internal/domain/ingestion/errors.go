package ingestion

import (
	"fmt"

	"github.com/pricedragon/backend/internal/domain/shared"
)

// ValidationReason classifies why a raw record was rejected
type ValidationReason string

const (
	ReasonEmptyName        ValidationReason = "EMPTY_NAME"
	ReasonInvalidPrice     ValidationReason = "INVALID_PRICE"
	ReasonMissingIdentity  ValidationReason = "MISSING_IDENTITY"
	ReasonMissingPlatform  ValidationReason = "MISSING_PLATFORM"
	ReasonPlatformMismatch ValidationReason = "PLATFORM_MISMATCH"
)

// ValidationError is returned by the normalizer for a malformed raw record.
// It is recoverable: the orchestrator counts it and moves on.
type ValidationError struct {
	Reason  ValidationReason
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Message, e.Field)
}

// Is lets errors.Is match any ValidationError against shared.ErrInvalidInput
func (e *ValidationError) Is(target error) bool {
	return target == shared.ErrInvalidInput
}

func newValidationError(reason ValidationReason, field, message string) *ValidationError {
	return &ValidationError{Reason: reason, Field: field, Message: message}
}
