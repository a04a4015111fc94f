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

var (
	errProjectNotFound = domainError(http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
	errNoActiveProject = domainError(http.StatusConflict, "NO_ACTIVE_PROJECT", "No project is selected", nil)
	errNotReady        = domainError(http.StatusConflict, "WORKSPACE_NOT_READY", "Workspace is still loading", nil)
	errConfirmDelete   = domainError(http.StatusBadRequest, "CONFIRMATION_REQUIRED", "Deleting a project requires confirm=true", nil)
)

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
