package directory

import (
	"fmt"
	"net/http"
)

// DomainError is a user-facing failure: the caller can show Message and
// retry, and Status/Code let the HTTP boundary map it without inspecting
// text.
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

func validationError(field, message string) *DomainError {
	return &DomainError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]any{"field": field},
	}
}

func conflictError(message string) *DomainError {
	return &DomainError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

func credentialsError(message string) *DomainError {
	return &DomainError{
		Status:  http.StatusUnauthorized,
		Code:    "INVALID_CREDENTIALS",
		Message: message,
	}
}
