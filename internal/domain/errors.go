package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	// ErrTimeout marks an acknowledged request that did not complete in time.
	// Callers treat it as a transmission failure.
	ErrTimeout = errors.New("request timed out")
	// ErrNoDraft is returned when a draft-only transition runs without a draft.
	ErrNoDraft = errors.New("document has no draft")
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	ResourceType string // Type of resource (document, comment, collaborator)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ForbiddenActionError names the capability a caller was missing.
type ForbiddenActionError struct {
	Action string
	Role   string
}

func (e *ForbiddenActionError) Error() string {
	if e.Role == "" {
		return "forbidden: no access to document"
	}
	return "forbidden: role " + e.Role + " cannot " + e.Action
}

// StatusCode implements the HTTPError interface
func (e *ForbiddenActionError) StatusCode() int {
	return http.StatusForbidden
}

// Is allows errors.Is() to match against ErrForbidden
func (e *ForbiddenActionError) Is(target error) bool {
	return target == ErrForbidden
}
