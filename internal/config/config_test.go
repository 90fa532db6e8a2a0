package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return LoadArgs(flag.NewFlagSet("test", flag.ContinueOnError), args)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 100, cfg.Storage.PageSize)
	assert.Equal(t, "none", cfg.Blob.Backend)
	assert.Equal(t, []string{"log", "websocket"}, cfg.Notify.Sinks)
	assert.Equal(t, 5*time.Second, cfg.Notify.PublishTimeout)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoad_EnvironmentAndFlags(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("BLOB_BACKEND", "memory")
	t.Setenv("NOTIFY_SINKS", "log")

	cfg, err := load(t, "-http-addr", ":9100", "-public-url", "https://registry.example.com/registry/")
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.HTTPAddr, "flag wins over environment")
	assert.Equal(t, "memory", cfg.Blob.Backend)
	assert.Equal(t, []string{"log"}, cfg.Notify.Sinks)
	assert.Equal(t, "https://registry.example.com/registry", cfg.Server.PublicURL)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	content := `
server:
  httpAddr: ":7070"
storage:
  inMemory: true
blob:
  backend: minio
  endpoint: "localhost:9000"
notify:
  sinks: [log, kafka]
  kafkaBrokers: ["localhost:9092"]
  publishTimeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := load(t, "-config", path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "minio", cfg.Blob.Backend)
	assert.Equal(t, "localhost:9000", cfg.Blob.Endpoint)
	assert.True(t, cfg.HasSink("kafka"))
	assert.Equal(t, 2*time.Second, cfg.Notify.PublishTimeout)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := load(t)
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http server address"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad blob backend", func(c *Config) { c.Blob.Backend = "gcs" }, "invalid blob backend"},
		{"minio without endpoint", func(c *Config) { c.Blob.Backend = "minio" }, "blob endpoint"},
		{"unknown sink", func(c *Config) { c.Notify.Sinks = []string{"smtp"} }, "invalid notification sink"},
		{"kafka without brokers", func(c *Config) { c.Notify.Sinks = []string{"kafka"} }, "kafka brokers"},
		{"zero page size", func(c *Config) { c.Storage.PageSize = 0 }, "page size"},
		{"tracing without endpoint", func(c *Config) { c.Metrics.TracingEnabled = true }, "tracing endpoint"},
		{"tls without cert", func(c *Config) { c.Server.TLSEnabled = true }, "tls cert file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
