package registry

import (
	"errors"
	"fmt"

	"github.com/catalogd/registry/internal/metrics"
)

// NotFoundError indicates the addressed group, resource or version does not exist
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// VersionConflictError indicates an incoming version older than the stored
// one, or a conditional write lost against a concurrent writer
type VersionConflictError struct {
	Kind     string
	ID       string
	Stored   int64
	Incoming int64
}

func (e VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for %s %s: stored version %d, incoming version %d", e.Kind, e.ID, e.Stored, e.Incoming)
}

// ValidationError indicates a malformed request
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// StoreError indicates the document store rejected a new document
type StoreError struct {
	Kind string
	ID   string
	Err  error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("failed to store %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }

// ChildError indicates a nested resource of a group write failed. Children
// written before the failure stay written.
type ChildError struct {
	Kind string
	ID   string
	Err  error
}

func (e ChildError) Error() string {
	return fmt.Sprintf("failed to write %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e ChildError) Unwrap() error { return e.Err }

// UnsupportedError indicates an operation the registry does not offer
type UnsupportedError struct {
	Operation string
}

func (e UnsupportedError) Error() string {
	return e.Operation + " is not supported"
}

// statusOf maps an operation error to a metrics status label
func statusOf(err error) string {
	if err == nil {
		return metrics.StatusOK
	}
	var (
		notFound    NotFoundError
		conflict    VersionConflictError
		invalid     ValidationError
		store       StoreError
		child       ChildError
		unsupported UnsupportedError
	)
	// child and store errors wrap the underlying cause, match them first
	switch {
	case errors.As(err, &child), errors.As(err, &store):
		return metrics.StatusInvalid
	case errors.As(err, &notFound):
		return metrics.StatusNotFound
	case errors.As(err, &conflict):
		return metrics.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &unsupported):
		return metrics.StatusInvalid
	default:
		return metrics.StatusError
	}
}
