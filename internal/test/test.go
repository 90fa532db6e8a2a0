package test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/catalogd/registry/internal/api/validation"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/registry"
	"github.com/catalogd/registry/internal/storage"
)

// TempDir creates a temporary directory for testing and returns its path.
// The directory is automatically cleaned up after the test.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "registry-test-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Ignore cleanup errors in tests
	})
	return dir
}

// RecordingSink keeps every published event in memory
type RecordingSink struct {
	mu     sync.Mutex
	events []*notify.Event
}

func (s *RecordingSink) Name() string { return "recording" }

func (s *RecordingSink) Publish(ctx context.Context, ev *notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *RecordingSink) Close() error { return nil }

// Events returns a copy of the published events
func (s *RecordingSink) Events() []*notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*notify.Event(nil), s.events...)
}

// Types returns the types of the published events in order
func (s *RecordingSink) Types() []string {
	var types []string
	for _, ev := range s.Events() {
		types = append(types, ev.Type)
	}
	return types
}

// Env is a started in-memory registry
type Env struct {
	Storage  *storage.Storage
	Registry *registry.Registry
	Sink     *RecordingSink
}

type envConfig struct {
	blobBackend string
	dataDir     string
}

// EnvOption configures NewEnv
type EnvOption func(*envConfig)

// WithBlobStore adds an in-memory blob store
func WithBlobStore() EnvOption {
	return func(c *envConfig) { c.blobBackend = storage.BlobMemory }
}

// WithDataDir keeps documents on disk below dir
func WithDataDir(dir string) EnvOption {
	return func(c *envConfig) { c.dataDir = dir }
}

// NewEnv builds and starts storage and a registry publishing to a
// RecordingSink. Everything is stopped when the test ends.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	cfg := envConfig{blobBackend: storage.BlobNone}
	for _, opt := range opts {
		opt(&cfg)
	}

	storageCfg := storage.DefaultConfig()
	storageCfg.BlobBackend = cfg.blobBackend
	storageCfg.PageSize = 2
	if cfg.dataDir != "" {
		storageCfg.DataDir = cfg.dataDir
	} else {
		storageCfg.InMemory = true
	}

	ctx := context.Background()
	store, err := storage.NewBuilder().WithConfig(storageCfg).BuildAndStart(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Stop(ctx) })

	sink := &RecordingSink{}
	reg := registry.New(store, validation.ValidateContent, registry.Options{
		Emitter:    notify.NewEmitter([]notify.Sink{sink}),
		PageSize:   store.PageSize(),
		ValidateID: validation.ValidateID,
	})

	return &Env{Storage: store, Registry: reg, Sink: sink}
}
