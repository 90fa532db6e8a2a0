package storage

import (
	"context"
	"fmt"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/storage/docstore"
	"github.com/rs/zerolog"
)

// Builder provides a fluent interface for building Storage instances
type Builder struct {
	config *Config
	docs   *docstore.Store
	blobs  blob.Store
	log    zerolog.Logger
}

// NewBuilder creates a new Storage builder
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    logger.WithComponent("storage.builder"),
	}
}

// WithConfig sets the configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithDataDir sets the data directory (convenience method)
func (b *Builder) WithDataDir(dataDir string) *Builder {
	if b.config == nil {
		b.config = DefaultConfig()
	}
	b.config.DataDir = dataDir
	return b
}

// WithInMemory keeps all documents in memory
func (b *Builder) WithInMemory() *Builder {
	if b.config == nil {
		b.config = DefaultConfig()
	}
	b.config.InMemory = true
	return b
}

// WithDocumentStore sets a custom document store (optional, will open one if not set)
func (b *Builder) WithDocumentStore(docs *docstore.Store) *Builder {
	b.docs = docs
	return b
}

// WithBlobStore sets a custom blob store, overriding the configured backend
func (b *Builder) WithBlobStore(blobs blob.Store) *Builder {
	b.blobs = blobs
	return b
}

// Build creates and initializes the Storage instance
func (b *Builder) Build() (*Storage, error) {
	if b.config == nil {
		b.config = DefaultConfig()
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var paths *StoragePaths
	if b.docs == nil {
		opts := docstore.Options{InMemory: b.config.InMemory}
		if !b.config.InMemory {
			var err error
			paths, err = InitDirectories(b.config.DataDir)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize directories: %w", err)
			}
			opts.Dir = paths.DocumentsDir
		}

		docs, err := docstore.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		b.docs = docs
	}

	if b.blobs == nil {
		blobs, err := b.buildBlobStore()
		if err != nil {
			return nil, err
		}
		b.blobs = blobs
	}

	storage := &Storage{
		paths:    paths,
		docs:     b.docs,
		blobs:    b.blobs,
		pageSize: b.config.PageSize,
		log:      logger.WithComponent("storage"),
	}

	b.log.Info().
		Str("data_dir", b.config.DataDir).
		Bool("in_memory", b.config.InMemory).
		Str("blob_backend", b.config.BlobBackend).
		Msg("Storage built successfully")

	return storage, nil
}

func (b *Builder) buildBlobStore() (blob.Store, error) {
	switch b.config.BlobBackend {
	case BlobMemory:
		return blob.NewMemoryStore(), nil
	case BlobMinio:
		store, err := blob.NewMinioStore(b.config.Minio)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// BuildAndStart creates, initializes, and starts the Storage instance
func (b *Builder) BuildAndStart(ctx context.Context) (*Storage, error) {
	storage, err := b.Build()
	if err != nil {
		return nil, err
	}

	if err := storage.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start storage: %w", err)
	}

	return storage, nil
}
