package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalogd/registry/internal/logger"
)

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr        string
	TLSCertFile string
	TLSKeyFile  string
}

// Server represents an HTTP server
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	listener   net.Listener
	log        zerolog.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewServer creates a new HTTP server serving handler
func NewServer(cfg ServerConfig, handler http.Handler) *Server {
	return &Server{
		cfg: cfg,
		log: logger.WithComponent("http"),
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	s.log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")

	// bind synchronously so address errors surface to the caller
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	tls := s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""
	go func() {
		var err error
		if tls {
			err = s.httpServer.ServeTLS(ln, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.ready = true
	s.log.Info().Str("addr", ln.Addr().String()).Bool("tls", tls).Msg("HTTP server started")

	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping HTTP server")

	// Hijacked WebSocket connections are not tracked by Shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.httpServer.Close()
		return err
	}

	s.ready = false
	s.log.Info().Msg("HTTP server stopped")

	return nil
}

// Ready returns true if the server is ready
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}
