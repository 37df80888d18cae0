package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server is the HTTP front of the agent
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a server for handler on address
func NewServer(address string, handler http.Handler, readTimeout, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         address,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		logger: logger,
	}
}

// Serve accepts connections on l until Shutdown is called
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP API listening", zap.String("address", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until
// Shutdown is called
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests and waits for active ones to finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP API")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.httpServer.Addr
}
