package docstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/catalogd/registry/internal/logger"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const lockStripes = 64

// keySeparator splits container, partition key and id inside a pebble key
const keySeparator = 0x00

// Store is a pebble-backed document database holding any number of
// containers in one keyspace.
type Store struct {
	db         *pebble.DB
	dir        string
	containers map[string]*Container
	locks      [lockStripes]sync.Mutex
	log        zerolog.Logger
	mu         sync.RWMutex
	ready      bool
	closed     bool
}

// Options configures Open
type Options struct {
	// Dir is the pebble directory; ignored when InMemory is set
	Dir string
	// InMemory keeps all data in a memory filesystem
	InMemory bool
}

// Open opens (or creates) a document store
func Open(opts Options) (*Store, error) {
	pebbleOpts := &pebble.Options{}
	dir := opts.Dir
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		dir = ""
	} else {
		if dir == "" {
			return nil, InvalidDocumentError{Reason: "data directory cannot be empty"}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Pebble DB: %w", err)
	}

	return &Store{
		db:         db,
		dir:        dir,
		containers: make(map[string]*Container),
		log:        logger.WithComponent("docstore"),
	}, nil
}

// Container returns the named container, creating the handle on first use
func (s *Store) Container(name string) *Container {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[name]; ok {
		return c
	}
	c := &Container{store: s, name: name}
	s.containers[name] = c
	return c
}

// Start marks the store ready
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ClosedError{}
	}
	if s.ready {
		return nil
	}
	s.ready = true
	s.log.Info().Str("dir", s.dir).Msg("Document store started")
	return nil
}

// Stop flushes and closes the underlying database
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.ready = false
	s.closed = true

	if err := s.db.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close Pebble DB")
		return err
	}
	s.log.Info().Msg("Document store stopped")
	return nil
}

// Ready returns true if the store accepts requests
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ClosedError{}
	}
	return nil
}

// lockFor returns the stripe guarding key; check-then-write sequences
// hold it so conditional writes are atomic within the process.
func (s *Store) lockFor(key []byte) *sync.Mutex {
	var hash uint32 = 2166136261
	for _, c := range key {
		hash ^= uint32(c)
		hash *= 16777619
	}
	return &s.locks[hash%lockStripes]
}

func (s *Store) get(key []byte) (*Value, error) {
	raw, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy value bytes (closer will free the original)
	valueCopy := make([]byte, len(raw))
	copy(valueCopy, raw)
	return decodeValue(valueCopy)
}

func (s *Store) put(key []byte, body []byte) (*Value, error) {
	val := &Value{
		Body:       body,
		ETag:       newETag(),
		ModifiedAt: time.Now().UTC(),
	}
	encoded, err := encodeValue(val)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(key, encoded, pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	return val, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func newETag() string {
	return `"` + uuid.NewString() + `"`
}

// encodeKey builds container\x00partition\x00id
func encodeKey(container, partitionKey, id string) []byte {
	key := make([]byte, 0, len(container)+len(partitionKey)+len(id)+2)
	key = append(key, container...)
	key = append(key, keySeparator)
	key = append(key, partitionKey...)
	key = append(key, keySeparator)
	key = append(key, id...)
	return key
}

// decodeKey splits a key produced by encodeKey
func decodeKey(key []byte) (partitionKey, id string, ok bool) {
	parts := bytes.SplitN(key, []byte{keySeparator}, 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return string(parts[1]), string(parts[2]), true
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// encodeValue encodes a Value struct to bytes using GOB
func encodeValue(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeValue decodes bytes to a Value struct using GOB
func decodeValue(data []byte) (*Value, error) {
	var v Value
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return &v, nil
}

// withSystemProperties merges _etag and _ts into a JSON object body
func withSystemProperties(v *Value) []byte {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(v.Body, &doc); err != nil || doc == nil {
		return v.Body
	}
	etag, _ := json.Marshal(v.ETag)
	doc[PropETag] = etag
	doc[PropTimestamp] = json.RawMessage(fmt.Sprintf("%d", v.ModifiedAt.Unix()))
	out, err := json.Marshal(doc)
	if err != nil {
		return v.Body
	}
	return out
}

func toItem(partitionKey, id string, v *Value) *Item {
	return &Item{
		ID:           id,
		PartitionKey: partitionKey,
		ETag:         v.ETag,
		ModifiedAt:   v.ModifiedAt,
		Body:         withSystemProperties(v),
	}
}
