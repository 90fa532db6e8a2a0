package storage

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/rs/zerolog"
)

// Storage represents the complete storage system: the document store
// holding every registry container and the optional blob store.
type Storage struct {
	paths    *StoragePaths
	docs     *docstore.Store
	blobs    blob.Store
	pageSize int
	log      zerolog.Logger
	mu       sync.RWMutex
	ready    bool
	closed   bool
}

var _ Lifecycle = (*Storage)(nil)

// Collection returns the named document container
func (s *Storage) Collection(name string) docstore.Collection {
	return s.docs.Container(name)
}

// Documents returns the document store
func (s *Storage) Documents() *docstore.Store {
	return s.docs
}

// Blobs returns the blob store, or nil when none is configured
func (s *Storage) Blobs() blob.Store {
	return s.blobs
}

// PageSize returns the configured query page size
func (s *Storage) PageSize() int {
	return s.pageSize
}

// Paths returns the storage paths; nil for in-memory storage
func (s *Storage) Paths() *StoragePaths {
	return s.paths
}

// Start starts the storage system
func (s *Storage) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("storage is closed")
	}
	if s.ready {
		return nil
	}

	if err := s.docs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start document store: %w", err)
	}

	s.ready = true
	s.log.Info().
		Bool("blob_store", s.blobs != nil).
		Msg("Storage started")
	return nil
}

// Stop gracefully shuts down the storage system
func (s *Storage) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.log.Info().Msg("Closing storage...")
	s.ready = false
	s.closed = true

	if err := s.docs.Stop(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to stop document store")
		return err
	}

	s.log.Info().Msg("Storage closed")
	return nil
}

// Ready returns true if storage accepts requests
func (s *Storage) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && s.docs.Ready()
}

// Validate validates the storage system integrity
func (s *Storage) Validate() error {
	if s.paths == nil {
		return nil
	}
	if err := validateStorageDirectory(s.paths.BaseDir); err != nil {
		return fmt.Errorf("base directory invalid: %w", err)
	}
	if err := validateStorageDirectory(s.paths.DocumentsDir); err != nil {
		return fmt.Errorf("documents directory invalid: %w", err)
	}
	return nil
}

// validateStorageDirectory checks if a directory exists and is accessible
func validateStorageDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}
