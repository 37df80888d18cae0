package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// MaxJobSize bounds the bytes accepted on one connection
const MaxJobSize = 16 << 20

// ErrJobTooLarge is returned when a client sends more than MaxJobSize bytes
var ErrJobTooLarge = errors.New("print job exceeds maximum size")

// Submitter is the part of a spooler session the raw server drives
type Submitter interface {
	Open(name string) error
	IsOpen() bool
	Submit(stream []byte) error
}

// Server is a raw TCP listener: everything a client sends before closing
// its side of the connection is printed as one job.
type Server struct {
	session  Submitter
	listener net.Listener
	address  string
	conns    map[net.Conn]struct{}
	mu       sync.Mutex
	running  bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new server instance
func New(session Submitter, address string) *Server {
	return NewWithLogger(session, address, zap.NewNop())
}

// NewWithLogger creates a new server instance with a custom logger
func NewWithLogger(session Submitter, address string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session: session,
		address: address,
		conns:   make(map[net.Conn]struct{}),
		logger:  logger,
	}
}

// listen binds the listener and opens the printer if it is not already
// open. A printer that cannot be opened yet is not fatal: the session opens
// it lazily on the first job.
func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("Server already running")
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("Failed to start server", zap.Error(err))
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.running = true
	s.wg.Add(1)
	s.logger.Info("Raw print server listening", zap.String("address", listener.Addr().String()))

	if !s.session.IsOpen() {
		if err := s.session.Open(""); err != nil {
			s.logger.Warn("Printer not available yet", zap.Error(err))
		}
	}

	return nil
}

// Start starts the TCP server and blocks until Stop is called
func (s *Server) Start() error {
	if err := s.listen(); err != nil {
		return err
	}

	s.acceptConnections()
	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	if err := s.listen(); err != nil {
		return err
	}

	go s.acceptConnections()
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()

			if !running {
				s.logger.Debug("Server shutting down, stopping accept loop")
				return
			}
			s.logger.Warn("Error accepting connection", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

// handleConnection reads one job from conn and submits it
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	logger := s.logger.With(zap.String("client", conn.RemoteAddr().String()))
	logger.Debug("Client connected")

	job, err := readJob(conn)
	if err != nil {
		logger.Warn("Error reading from client", zap.Error(err))
		return
	}

	if len(job) == 0 {
		logger.Debug("Client closed connection without data")
		return
	}

	logger.Info("Received print job", zap.Int("bytes", len(job)))
	if err := s.session.Submit(job); err != nil {
		logger.Error("Failed to print job", zap.Error(err))
		return
	}
}

// readJob collects everything the client sends until EOF
func readJob(r io.Reader) ([]byte, error) {
	var job bytes.Buffer
	buf := make([]byte, 4096)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if job.Len()+n > MaxJobSize {
				return nil, ErrJobTooLarge
			}
			job.Write(buf[:n])
		}
		if err == io.EOF {
			return job.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Stop stops the TCP server, dropping clients that are still connected
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.logger.Info("Stopping raw print server")
	s.running = false
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	s.wg.Wait()
	s.logger.Info("Raw print server stopped")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the server address
func (s *Server) Address() string {
	return s.address
}

// ListenAddr returns the bound listener address, or nil when not running
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || !s.running {
		return nil
	}
	return s.listener.Addr()
}
