package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/catalogd/registry/internal/api/auth"
	grpcapi "github.com/catalogd/registry/internal/api/grpc"
	httpapi "github.com/catalogd/registry/internal/api/http"
	"github.com/catalogd/registry/internal/api/validation"
	"github.com/catalogd/registry/internal/config"
	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/metrics"
	"github.com/catalogd/registry/internal/notify"
	"github.com/catalogd/registry/internal/registry"
	"github.com/catalogd/registry/internal/storage"
	"github.com/catalogd/registry/internal/storage/blob"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/catalogd/registry/internal/version"
)

// Server owns every long-running component of the registry process:
// storage, notification sinks, the HTTP and gRPC listeners, the metrics
// listener and the tracing provider.
type Server struct {
	cfg           *config.Config
	storage       *storage.Storage
	registry      *registry.Registry
	emitter       *notify.Emitter
	hub           *notify.Hub
	hubCancel     context.CancelFunc
	tokenStore    *auth.InMemoryTokenStore
	httpServer    *httpapi.Server
	grpcServer    *grpcapi.Server
	metricsServer *metrics.Server
	tracing       *tracing.Provider
	log           zerolog.Logger
	ready         bool
	mu            sync.RWMutex
}

// Option customizes a Server
type Option func(*options)

type options struct {
	blobs blob.Store
	sinks []notify.Sink
}

// WithBlobStore replaces the configured blob backend
func WithBlobStore(blobs blob.Store) Option {
	return func(o *options) { o.blobs = blobs }
}

// WithSinks adds notification sinks to the configured ones
func WithSinks(sinks ...notify.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// NewServer wires the registry described by cfg. Nothing listens until Start.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		cfg:        cfg,
		tokenStore: auth.NewInMemoryTokenStore(),
		log:        logger.WithComponent("api"),
	}

	tp, err := tracing.NewProvider(tracingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}
	s.tracing = tp

	builder := storage.NewBuilder().WithConfig(storageConfig(cfg))
	if o.blobs != nil {
		builder = builder.WithBlobStore(o.blobs)
	}
	st, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build storage: %w", err)
	}
	s.storage = st

	var registryMetrics *metrics.RegistryMetrics
	if cfg.Metrics.Enabled {
		collector := metrics.NewProcessCollector()
		registryMetrics = metrics.NewRegistryMetrics(collector)
		s.metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, collector.GetRegistry())
	}

	sinks, err := s.buildSinks(cfg)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, o.sinks...)
	s.emitter = notify.NewEmitter(sinks,
		notify.WithTimeout(cfg.Notify.PublishTimeout),
		notify.WithRecorder(registryMetrics),
	)

	s.registry = registry.New(st, validation.ValidateContent, registry.Options{
		Emitter:    s.emitter,
		Metrics:    registryMetrics,
		PageSize:   cfg.Storage.PageSize,
		ValidateID: validation.ValidateID,
	})

	if err := s.loadTokens(cfg.Auth); err != nil {
		return nil, err
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Registry:    s.registry,
		Storage:     st,
		Hub:         s.hub,
		TokenStore:  s.tokenStore,
		AuthEnabled: cfg.Auth.Enabled,
		PublicURL:   cfg.Server.PublicURL,
		Metrics:     registryMetrics,
	})
	httpCfg := httpapi.ServerConfig{Addr: cfg.Server.HTTPAddr}
	if cfg.Server.TLSEnabled {
		httpCfg.TLSCertFile = cfg.Server.TLSCertFile
		httpCfg.TLSKeyFile = cfg.Server.TLSKeyFile
	}
	s.httpServer = httpapi.NewServer(httpCfg, router)
	s.grpcServer = grpcapi.NewServer(cfg.Server.GRPCAddr, st)

	return s, nil
}

func (s *Server) buildSinks(cfg *config.Config) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.HasSink("log") {
		sinks = append(sinks, notify.NewLogSink())
	}
	if cfg.HasSink("kafka") {
		kafka, err := notify.NewKafkaSink(notify.KafkaConfig{
			Brokers:      cfg.Notify.KafkaBrokers,
			Topic:        cfg.Notify.KafkaTopic,
			WriteTimeout: cfg.Notify.PublishTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka sink: %w", err)
		}
		sinks = append(sinks, kafka)
	}
	if cfg.HasSink("websocket") {
		s.hub = notify.NewHub()
		sinks = append(sinks, s.hub)
	}
	return sinks, nil
}

// loadTokens registers the static tokens and, if asked, a development
// token with every permission
func (s *Server) loadTokens(cfg config.AuthConfig) error {
	for i, token := range cfg.Tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		name := fmt.Sprintf("static-%d", i)
		if _, err := s.tokenStore.AddToken(token, name, nil, auth.AllPermissions, 0); err != nil {
			return fmt.Errorf("failed to add token %s: %w", name, err)
		}
	}

	if cfg.DevToken {
		token, err := s.tokenStore.AddDefaultToken()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to create default token")
			return nil
		}
		s.log.Info().Str("token", token).Msg("Development token created")
	}
	return nil
}

// Start starts storage, the hub and every listener
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	s.log.Info().Str("version", version.Get().Version).Msg("Starting API server")

	if err := s.storage.Start(ctx); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}

	if s.hub != nil {
		hubCtx, cancel := context.WithCancel(context.Background())
		s.hubCancel = cancel
		go s.hub.Run(hubCtx)
	}

	started := []interface{ Stop(context.Context) error }{}
	rollback := func() {
		for i := len(started) - 1; i >= 0; i-- {
			_ = started[i].Stop(ctx)
		}
		s.stopHub()
		_ = s.storage.Stop(ctx)
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Start(ctx); err != nil {
			rollback()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		started = append(started, s.metricsServer)
	}

	if err := s.grpcServer.Start(ctx); err != nil {
		rollback()
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}
	started = append(started, s.grpcServer)

	if err := s.httpServer.Start(ctx); err != nil {
		rollback()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.ready = true
	s.log.Info().
		Str("http_addr", s.httpServer.Addr()).
		Str("grpc_addr", s.grpcServer.Addr()).
		Bool("auth", s.cfg.Auth.Enabled).
		Msg("API server started")

	return nil
}

// Stop stops the listeners, then the sinks, storage and tracing. It
// returns the first error met but always runs every step.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping API server")

	var errs []error
	if err := s.httpServer.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping HTTP server")
		errs = append(errs, err)
	}
	if err := s.grpcServer.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping gRPC server")
		errs = append(errs, err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Stop(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Error stopping metrics server")
			errs = append(errs, err)
		}
	}

	s.stopHub()
	if err := s.emitter.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.storage.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping storage")
		errs = append(errs, err)
	}
	if err := s.tracing.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error shutting down tracing")
		errs = append(errs, err)
	}

	s.ready = false
	s.log.Info().Msg("API server stopped")

	return errors.Join(errs...)
}

func (s *Server) stopHub() {
	if s.hubCancel != nil {
		s.hubCancel()
		s.hubCancel = nil
	}
}

// Ready returns true once every component is serving
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && s.grpcServer.Ready() && s.httpServer.Ready() && s.storage.Ready()
}

// HTTPAddr returns the bound HTTP address
func (s *Server) HTTPAddr() string {
	return s.httpServer.Addr()
}

// GRPCAddr returns the bound gRPC address
func (s *Server) GRPCAddr() string {
	return s.grpcServer.Addr()
}

// Registry returns the registry served by s
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// TokenStore returns the token store (for testing/admin purposes)
func (s *Server) TokenStore() auth.TokenStore {
	return s.tokenStore
}

func storageConfig(cfg *config.Config) *storage.Config {
	return &storage.Config{
		DataDir:     cfg.Storage.DataDir,
		InMemory:    cfg.Storage.InMemory,
		PageSize:    cfg.Storage.PageSize,
		BlobBackend: strings.ToLower(cfg.Blob.Backend),
		Minio: blob.MinioConfig{
			Endpoint:     cfg.Blob.Endpoint,
			AccessKey:    cfg.Blob.AccessKey,
			SecretKey:    cfg.Blob.SecretKey,
			UseSSL:       cfg.Blob.UseSSL,
			Region:       cfg.Blob.Region,
			BucketPrefix: cfg.Blob.BucketPrefix,
		},
	}
}

func tracingConfig(cfg *config.Config) tracing.TracingConfig {
	tc := tracing.DefaultTracingConfig()
	tc.Enabled = cfg.Metrics.TracingEnabled
	tc.Endpoint = cfg.Metrics.TracingEndpoint
	tc.ExporterType = cfg.Metrics.TracingExporter
	tc.Insecure = cfg.Metrics.TracingInsecure
	tc.ServiceVersion = version.Get().Version
	return tc
}
