package docstore

import (
	"context"
	"time"
)

// System properties merged into every body returned by Read and Query
const (
	PropETag      = "_etag"
	PropTimestamp = "_ts"
)

// Item is a stored document as returned to callers
type Item struct {
	ID           string
	PartitionKey string
	ETag         string
	ModifiedAt   time.Time
	// Body is the JSON document including the system properties
	Body []byte
}

// Value is the on-disk envelope around a document body
type Value struct {
	Body       []byte
	ETag       string
	ModifiedAt time.Time
}

// Collection is a partitioned set of JSON documents with per-document
// conditional writes.
type Collection interface {
	// Name returns the container name
	Name() string
	// Read returns the document or NotFoundError
	Read(ctx context.Context, partitionKey, id string) (*Item, error)
	// Create stores a new document or returns ConflictError
	Create(ctx context.Context, partitionKey, id string, body []byte) (string, error)
	// Replace overwrites a document only if its etag still equals ifMatch
	Replace(ctx context.Context, partitionKey, id string, body []byte, ifMatch string) (string, error)
	// Upsert creates or overwrites a document unconditionally
	Upsert(ctx context.Context, partitionKey, id string, body []byte) (string, error)
	// Delete removes a document or returns NotFoundError
	Delete(ctx context.Context, partitionKey, id string) error
	// Query pages through one partition, or all partitions when partitionKey is ""
	Query(partitionKey string, pageSize int) *Pager
}

// DefaultPageSize is used when Query is given a non-positive page size
const DefaultPageSize = 100
