package client

import (
	"fmt"
	"net/http"
)

// Error is a non-2xx answer from the registry
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.StatusCode, http.StatusText(e.StatusCode), e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the entity does not exist
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict returns true if the write carried a stale version
func (e *Error) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsUnauthenticated returns true if the token was missing or unknown
func (e *Error) IsUnauthenticated() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsPermissionDenied returns true if the token lacks a permission
func (e *Error) IsPermissionDenied() bool {
	return e.StatusCode == http.StatusForbidden
}

// wrapError wraps a transport error into an SDK Error
func wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return &Error{Message: fmt.Sprintf("%s failed", operation), Err: err}
}
