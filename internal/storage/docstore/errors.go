package docstore

import "fmt"

// NotFoundError indicates a document was not found
type NotFoundError struct {
	Container    string
	PartitionKey string
	ID           string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("document %s not found in %s/%s", e.ID, e.Container, e.PartitionKey)
}

// ConflictError indicates a create hit an existing document
type ConflictError struct {
	Container    string
	PartitionKey string
	ID           string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("document %s already exists in %s/%s", e.ID, e.Container, e.PartitionKey)
}

// PreconditionFailedError indicates a conditional write lost against a
// concurrent writer
type PreconditionFailedError struct {
	Container string
	ID        string
	Expected  string
	Actual    string
}

func (e PreconditionFailedError) Error() string {
	return fmt.Sprintf("etag mismatch for document %s in %s: expected %s, found %s", e.ID, e.Container, e.Expected, e.Actual)
}

// InvalidDocumentError indicates a malformed id or body
type InvalidDocumentError struct {
	ID     string
	Reason string
}

func (e InvalidDocumentError) Error() string {
	return fmt.Sprintf("invalid document %s: %s", e.ID, e.Reason)
}

// ClosedError is returned after the store has been stopped
type ClosedError struct{}

func (ClosedError) Error() string {
	return "document store is closed"
}
