package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

// Container is one named collection inside a Store
type Container struct {
	store *Store
	name  string
}

var _ Collection = (*Container)(nil)

// Name returns the container name
func (c *Container) Name() string {
	return c.name
}

func validateIdentity(partitionKey, id string) error {
	if id == "" {
		return InvalidDocumentError{ID: id, Reason: "id cannot be empty"}
	}
	if strings.ContainsRune(id, keySeparator) || strings.ContainsRune(partitionKey, keySeparator) {
		return InvalidDocumentError{ID: id, Reason: "id and partition key cannot contain NUL"}
	}
	return nil
}

func validateBody(id string, body []byte) error {
	if !json.Valid(body) {
		return InvalidDocumentError{ID: id, Reason: "body is not valid JSON"}
	}
	return nil
}

// Read returns the document or NotFoundError
func (c *Container) Read(ctx context.Context, partitionKey, id string) (*Item, error) {
	_, span := startSpan(ctx, "read", c.name, partitionKey, id)
	defer span.End()

	if err := validateIdentity(partitionKey, id); err != nil {
		return nil, err
	}
	if err := c.store.checkOpen(); err != nil {
		return nil, err
	}

	v, err := c.store.get(encodeKey(c.name, partitionKey, id))
	if err != nil {
		if isNotFound(err) {
			return nil, NotFoundError{Container: c.name, PartitionKey: partitionKey, ID: id}
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return toItem(partitionKey, id, v), nil
}

// Create stores a new document or returns ConflictError
func (c *Container) Create(ctx context.Context, partitionKey, id string, body []byte) (string, error) {
	_, span := startSpan(ctx, "create", c.name, partitionKey, id)
	defer span.End()

	if err := c.checkWrite(partitionKey, id, body); err != nil {
		return "", err
	}

	key := encodeKey(c.name, partitionKey, id)
	lock := c.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.store.get(key); err == nil {
		return "", ConflictError{Container: c.name, PartitionKey: partitionKey, ID: id}
	} else if !isNotFound(err) {
		span.RecordError(err)
		return "", fmt.Errorf("failed to check document: %w", err)
	}

	v, err := c.store.put(key, body)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return v.ETag, nil
}

// Replace overwrites a document only if its etag still equals ifMatch.
// An empty ifMatch only requires the document to exist.
func (c *Container) Replace(ctx context.Context, partitionKey, id string, body []byte, ifMatch string) (string, error) {
	_, span := startSpan(ctx, "replace", c.name, partitionKey, id)
	defer span.End()

	if err := c.checkWrite(partitionKey, id, body); err != nil {
		return "", err
	}

	key := encodeKey(c.name, partitionKey, id)
	lock := c.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	current, err := c.store.get(key)
	if err != nil {
		if isNotFound(err) {
			return "", NotFoundError{Container: c.name, PartitionKey: partitionKey, ID: id}
		}
		span.RecordError(err)
		return "", fmt.Errorf("failed to check document: %w", err)
	}
	if ifMatch != "" && current.ETag != ifMatch {
		return "", PreconditionFailedError{Container: c.name, ID: id, Expected: ifMatch, Actual: current.ETag}
	}

	v, err := c.store.put(key, body)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return v.ETag, nil
}

// Upsert creates or overwrites a document unconditionally
func (c *Container) Upsert(ctx context.Context, partitionKey, id string, body []byte) (string, error) {
	_, span := startSpan(ctx, "upsert", c.name, partitionKey, id)
	defer span.End()

	if err := c.checkWrite(partitionKey, id, body); err != nil {
		return "", err
	}

	key := encodeKey(c.name, partitionKey, id)
	lock := c.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	v, err := c.store.put(key, body)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return v.ETag, nil
}

// Delete removes a document or returns NotFoundError
func (c *Container) Delete(ctx context.Context, partitionKey, id string) error {
	_, span := startSpan(ctx, "delete", c.name, partitionKey, id)
	defer span.End()

	if err := validateIdentity(partitionKey, id); err != nil {
		return err
	}
	if err := c.store.checkOpen(); err != nil {
		return err
	}

	key := encodeKey(c.name, partitionKey, id)
	lock := c.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.store.get(key); err != nil {
		if isNotFound(err) {
			return NotFoundError{Container: c.name, PartitionKey: partitionKey, ID: id}
		}
		span.RecordError(err)
		return fmt.Errorf("failed to check document: %w", err)
	}

	if err := c.store.db.Delete(key, pebble.Sync); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query pages through one partition, or all partitions when partitionKey is ""
func (c *Container) Query(partitionKey string, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	prefix := make([]byte, 0, len(c.name)+len(partitionKey)+2)
	prefix = append(prefix, c.name...)
	prefix = append(prefix, keySeparator)
	if partitionKey != "" {
		prefix = append(prefix, partitionKey...)
		prefix = append(prefix, keySeparator)
	}

	return &Pager{
		container:    c,
		partitionKey: partitionKey,
		lower:        prefix,
		upper:        prefixUpperBound(prefix),
		pageSize:     pageSize,
		more:         true,
	}
}

func (c *Container) checkWrite(partitionKey, id string, body []byte) error {
	if err := validateIdentity(partitionKey, id); err != nil {
		return err
	}
	if err := validateBody(id, body); err != nil {
		return err
	}
	return c.store.checkOpen()
}
