package storage

import "github.com/catalogd/registry/internal/storage/blob"

// Blob backends
const (
	BlobNone   = "none"
	BlobMemory = "memory"
	BlobMinio  = "minio"
)

// Config holds configuration for the storage system
type Config struct {
	// DataDir is the base directory for storage
	DataDir string

	// InMemory keeps documents in memory only
	InMemory bool

	// PageSize is the query page size used by paged reads
	PageSize int

	// BlobBackend selects the blob store ("none", "memory", "minio")
	BlobBackend string

	// Minio configures the MinIO blob backend
	Minio blob.MinioConfig
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "./data",
		PageSize:    100,
		BlobBackend: BlobNone,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" && !c.InMemory {
		return ErrInvalidConfig{Field: "DataDir", Reason: "cannot be empty"}
	}
	if c.PageSize <= 0 {
		return ErrInvalidConfig{Field: "PageSize", Reason: "must be greater than zero"}
	}
	switch c.BlobBackend {
	case BlobNone, BlobMemory:
	case BlobMinio:
		if c.Minio.Endpoint == "" {
			return ErrInvalidConfig{Field: "Minio.Endpoint", Reason: "cannot be empty"}
		}
	default:
		return ErrInvalidConfig{Field: "BlobBackend", Reason: "must be 'none', 'memory' or 'minio'"}
	}
	return nil
}

// ErrInvalidConfig indicates an invalid configuration
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return "invalid config: " + e.Field + ": " + e.Reason
}
