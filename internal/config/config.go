package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `env:"SERVER" yaml:"server"`
	Storage StorageConfig `env:"STORAGE" yaml:"storage"`
	Blob    BlobConfig    `env:"BLOB" yaml:"blob"`
	Notify  NotifyConfig  `env:"NOTIFY" yaml:"notify"`
	Auth    AuthConfig    `env:"AUTH" yaml:"auth"`
	Logging LoggingConfig `env:"LOGGING" yaml:"logging"`
	Metrics MetricsConfig `env:"METRICS" yaml:"metrics"`

	// Configuration file path
	ConfigFile string `env:"CONFIG_FILE" yaml:"-"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	// gRPC server address (health service only)
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051" yaml:"grpcAddr"`

	// HTTP server address
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080" yaml:"httpAddr"`

	// PublicURL overrides the request-derived base used for self links,
	// e.g. "https://registry.example.com/registry"
	PublicURL string `env:"PUBLIC_URL" yaml:"publicUrl"`

	// Enable TLS
	TLSEnabled bool `env:"TLS_ENABLED" envDefault:"false" yaml:"tlsEnabled"`

	// TLS certificate file
	TLSCertFile string `env:"TLS_CERT_FILE" yaml:"tlsCertFile"`

	// TLS key file
	TLSKeyFile string `env:"TLS_KEY_FILE" yaml:"tlsKeyFile"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdownTimeout"`
}

// StorageConfig holds document store configuration
type StorageConfig struct {
	// Data directory path
	DataDir string `env:"DATA_DIR" envDefault:"./data" yaml:"dataDir"`

	// Keep documents in memory only
	InMemory bool `env:"IN_MEMORY" envDefault:"false" yaml:"inMemory"`

	// Page size used when iterating a partition
	PageSize int `env:"PAGE_SIZE" envDefault:"100" yaml:"pageSize"`
}

// BlobConfig holds large-object storage configuration
type BlobConfig struct {
	// Backend: "none", "memory", "minio"
	Backend string `env:"BLOB_BACKEND" envDefault:"none" yaml:"backend"`

	// MinIO/S3 endpoint (host:port)
	Endpoint string `env:"BLOB_ENDPOINT" yaml:"endpoint"`

	// Access key ID
	AccessKey string `env:"BLOB_ACCESS_KEY" yaml:"accessKey"`

	// Secret access key
	SecretKey string `env:"BLOB_SECRET_KEY" yaml:"secretKey"`

	// Use HTTPS towards the endpoint
	UseSSL bool `env:"BLOB_USE_SSL" envDefault:"false" yaml:"useSSL"`

	// Region passed to bucket creation
	Region string `env:"BLOB_REGION" yaml:"region"`

	// Prefix prepended to the per-resource-kind bucket names
	BucketPrefix string `env:"BLOB_BUCKET_PREFIX" envDefault:"registry-" yaml:"bucketPrefix"`
}

// NotifyConfig holds change-notification configuration
type NotifyConfig struct {
	// Sinks to publish to: any of "log", "kafka", "websocket"
	Sinks []string `env:"NOTIFY_SINKS" envSeparator:"," envDefault:"log,websocket" yaml:"sinks"`

	// Kafka bootstrap brokers
	KafkaBrokers []string `env:"NOTIFY_KAFKA_BROKERS" envSeparator:"," yaml:"kafkaBrokers"`

	// Kafka topic for registry events
	KafkaTopic string `env:"NOTIFY_KAFKA_TOPIC" envDefault:"registry-events" yaml:"kafkaTopic"`

	// Upper bound for a single publish call
	PublishTimeout time.Duration `env:"NOTIFY_PUBLISH_TIMEOUT" envDefault:"5s" yaml:"publishTimeout"`
}

// AuthConfig holds API token configuration
type AuthConfig struct {
	// Require a bearer token on registry reads and writes
	Enabled bool `env:"AUTH_ENABLED" envDefault:"false" yaml:"enabled"`

	// Static tokens accepted in addition to generated ones
	Tokens []string `env:"AUTH_TOKENS" envSeparator:"," yaml:"tokens"`

	// Create and log a development token at startup
	DevToken bool `env:"AUTH_DEV_TOKEN" envDefault:"true" yaml:"devToken"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info" yaml:"level"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json" yaml:"format"`

	// Log file path (empty for stdout)
	Output string `env:"LOG_OUTPUT" envDefault:"" yaml:"output"`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true" yaml:"rotation"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100" yaml:"maxSize"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7" yaml:"maxBackups"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30" yaml:"maxAge"`
}

// MetricsConfig holds metrics and tracing configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true" yaml:"enabled"`

	// Metrics server address
	Addr string `env:"METRICS_ADDR" envDefault:":9090" yaml:"addr"`

	// Metrics path
	Path string `env:"METRICS_PATH" envDefault:"/metrics" yaml:"path"`

	// Enable OpenTelemetry tracing
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false" yaml:"tracingEnabled"`

	// OpenTelemetry endpoint
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"" yaml:"tracingEndpoint"`

	// OTLP exporter: "grpc" or "http"
	TracingExporter string `env:"TRACING_EXPORTER" envDefault:"grpc" yaml:"tracingExporter"`

	// Disable TLS towards the collector
	TracingInsecure bool `env:"TRACING_INSECURE" envDefault:"true" yaml:"tracingInsecure"`
}

// Load loads configuration from multiple sources, later ones winning:
// 1. Default values
// 2. Environment variables
// 3. Configuration file (YAML)
// 4. Command line flags
func Load() (*Config, error) {
	return LoadArgs(flag.CommandLine, os.Args[1:])
}

// LoadArgs is Load with an explicit flag set and argument list.
func LoadArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	configFile := fs.String("config", cfg.ConfigFile, "Path to YAML configuration file")
	grpcAddr := fs.String("grpc-addr", "", "gRPC server address")
	httpAddr := fs.String("http-addr", "", "HTTP server address")
	publicURL := fs.String("public-url", "", "Public base URL used for self links")
	dataDir := fs.String("data-dir", "", "Data directory path")
	inMemory := fs.Bool("in-memory", false, "Keep documents in memory only")
	blobBackend := fs.String("blob-backend", "", "Blob backend (none, memory, minio)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, text)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.ConfigFile = *configFile
	}

	overrideString(&cfg.Server.GRPCAddr, *grpcAddr)
	overrideString(&cfg.Server.HTTPAddr, *httpAddr)
	overrideString(&cfg.Server.PublicURL, *publicURL)
	overrideString(&cfg.Storage.DataDir, *dataDir)
	overrideString(&cfg.Blob.Backend, *blobBackend)
	overrideString(&cfg.Logging.Level, *logLevel)
	overrideString(&cfg.Logging.Format, *logFormat)
	if *inMemory {
		cfg.Storage.InMemory = true
	}

	cfg.Storage.DataDir = filepath.Clean(cfg.Storage.DataDir)
	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("grpc server address cannot be empty")
	}

	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("http server address cannot be empty")
	}

	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Storage.PageSize <= 0 {
		return fmt.Errorf("page size must be greater than zero")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validBlobBackends := map[string]bool{
		"none":   true,
		"memory": true,
		"minio":  true,
	}
	if !validBlobBackends[strings.ToLower(c.Blob.Backend)] {
		return fmt.Errorf("invalid blob backend: %s", c.Blob.Backend)
	}
	if strings.EqualFold(c.Blob.Backend, "minio") && c.Blob.Endpoint == "" {
		return fmt.Errorf("blob endpoint is required for the minio backend")
	}

	validSinks := map[string]bool{
		"log":       true,
		"kafka":     true,
		"websocket": true,
	}
	for _, sink := range c.Notify.Sinks {
		if !validSinks[strings.ToLower(sink)] {
			return fmt.Errorf("invalid notification sink: %s", sink)
		}
		if strings.EqualFold(sink, "kafka") && len(c.Notify.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka brokers are required for the kafka sink")
		}
	}

	if c.Metrics.TracingEnabled && c.Metrics.TracingEndpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	if c.Server.TLSEnabled {
		if c.Server.TLSCertFile == "" {
			return fmt.Errorf("tls cert file is required when tls is enabled")
		}
		if c.Server.TLSKeyFile == "" {
			return fmt.Errorf("tls key file is required when tls is enabled")
		}
	}

	return nil
}

// HasSink reports whether the named notification sink is enabled
func (c *Config) HasSink(name string) bool {
	for _, sink := range c.Notify.Sinks {
		if strings.EqualFold(sink, name) {
			return true
		}
	}
	return false
}

// loadFromFile overlays YAML values from path onto cfg
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func overrideString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
