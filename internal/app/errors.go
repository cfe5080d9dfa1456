package app

import (
	"errors"
	"fmt"
	"net/http"

	"vibe/api/internal/validate"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

func validationError(err error) *DomainError {
	var fieldErr *validate.FieldError
	if errors.As(err, &fieldErr) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]any{
			"field":  fieldErr.Field,
			"reason": fieldErr.Reason,
		})
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// storeFailure wraps a store error with the operation-specific prefix the
// caller sees. Store errors are never swallowed.
func storeFailure(prefix string, err error) *DomainError {
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", fmt.Sprintf("%s: %v", prefix, err), nil)
}
