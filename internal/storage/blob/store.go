// Package blob stores version payloads that are not kept inline in documents.
package blob

import (
	"context"
	"fmt"
	"io"
)

// Object is a blob opened for reading. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store is a container/key addressed object store
type Store interface {
	// Put uploads r under container/key. size may be -1 when unknown.
	Put(ctx context.Context, container, key string, r io.Reader, size int64, contentType string) error
	// Get opens a blob or returns NotFoundError
	Get(ctx context.Context, container, key string) (*Object, error)
	// Delete removes a blob; deleting a missing blob is not an error
	Delete(ctx context.Context, container, key string) error
}

// NotFoundError indicates the blob does not exist
type NotFoundError struct {
	Container string
	Key       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("blob %s/%s not found", e.Container, e.Key)
}

// VersionKey is the blob key of one resource version's content
func VersionKey(groupID, resourceKind, resourceID, versionID string) string {
	return fmt.Sprintf("%s/%s/%s/versions/%s", groupID, resourceKind, resourceID, versionID)
}
