package app

import (
	"fmt"
	"net/http"
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

func notFound(code, message string) *DomainError {
	return domainError(http.StatusNotFound, code, message, nil)
}

func invalidField(field, problem string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "validation failed", map[string]string{field: problem})
}

func disabled(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
