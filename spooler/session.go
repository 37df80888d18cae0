package spooler

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-agent/adapter"
)

// DefaultDocumentName is the spooler document name used for every job
const DefaultDocumentName = "Print Job"

// Session owns the connection to one device and runs the spooler write
// transaction for each submitted stream. Open, Close and Submit are
// serialized; a Session is safe for concurrent use.
type Session struct {
	host      adapter.Host
	handle    adapter.Handle
	device    string
	preferred string
	docName   string
	lazyOpen  bool
	isOpen    bool
	logger    *zap.Logger
	mu        sync.Mutex
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDevice sets the device bound when Open or a lazy open is not given a name
func WithDevice(name string) Option {
	return func(s *Session) {
		s.preferred = name
	}
}

// WithDocumentName sets the document name reported to the spooler
func WithDocumentName(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.docName = name
		}
	}
}

// WithLazyOpen controls whether Submit opens a closed session. When disabled
// Submit on a closed session fails with ErrNotOpen.
func WithLazyOpen(enabled bool) Option {
	return func(s *Session) {
		s.lazyOpen = enabled
	}
}

// New creates a closed session over host
func New(host adapter.Host, opts ...Option) *Session {
	s := &Session{
		host:     host,
		docName:  DefaultDocumentName,
		lazyOpen: true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open binds the session to a device. An empty name falls back to the
// configured device, then to the first device the host enumerates. Opening
// an open session succeeds without doing anything.
func (s *Session) Open(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(name)
}

func (s *Session) open(name string) error {
	if s.isOpen {
		return nil
	}

	if name == "" {
		name = s.preferred
	}

	if name == "" {
		devices, err := s.host.Enumerate()
		if err != nil {
			s.logger.Warn("Device enumeration failed", zap.Error(err))
			return &Error{Kind: KindNoDeviceFound, Code: adapter.ErrorCode(err), Err: err}
		}
		if len(devices) == 0 {
			s.logger.Warn("No printers found")
			return &Error{Kind: KindNoDeviceFound}
		}
		name = devices[0].Name
	}

	handle, err := s.host.Open(name)
	if err != nil {
		s.logger.Error("Failed to open printer", zap.String("device", name), zap.Error(err))
		return &Error{Kind: KindOpenFailed, Device: name, Code: adapter.ErrorCode(err), Err: err}
	}

	s.handle = handle
	s.device = name
	s.isOpen = true
	s.logger.Info("Printer opened", zap.String("device", name))
	return nil
}

// Close releases the device connection. Release failures are logged, never
// returned, and the session always ends up closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return nil
	}

	if err := s.handle.Close(); err != nil {
		s.logger.Warn("Error closing printer", zap.String("device", s.device), zap.Error(err))
	} else {
		s.logger.Info("Printer closed", zap.String("device", s.device))
	}

	s.handle = nil
	s.device = ""
	s.isOpen = false
	return nil
}

// Submit prints stream as one spooler document. A closed session is opened
// first. Once the document has started, EndPage and EndDoc always run so
// the spooler never keeps a dangling job, whatever step failed.
func (s *Session) Submit(stream []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		if !s.lazyOpen {
			return &Error{Kind: KindNotOpen}
		}
		if err := s.open(""); err != nil {
			return err
		}
	}

	jobID := uuid.NewString()
	logger := s.logger.With(
		zap.String("job_id", jobID),
		zap.String("device", s.device),
		zap.Int("bytes", len(stream)),
	)

	err := s.transact(logger, stream)
	if err != nil {
		logger.Error("Print job failed", zap.Error(err))
		return err
	}

	logger.Info("Print job completed")
	return nil
}

// transact runs StartDoc, StartPage, Write, EndPage, EndDoc keeping the
// begin and end calls balanced.
func (s *Session) transact(logger *zap.Logger, stream []byte) error {
	h := s.handle

	if err := h.StartDoc(s.docName); err != nil {
		return s.fail(KindJobStartFailed, err)
	}

	if err := h.StartPage(); err != nil {
		s.cleanup(logger, false)
		return s.fail(KindPageStartFailed, err)
	}

	n, err := h.Write(stream)
	if err == nil && n < len(stream) {
		err = fmt.Errorf("wrote %d of %d bytes: %w", n, len(stream), io.ErrShortWrite)
	}
	if err != nil {
		s.cleanup(logger, true)
		return s.fail(KindWriteFailed, err)
	}

	if err := h.EndPage(); err != nil {
		s.cleanup(logger, false)
		return s.fail(KindEndFailed, err)
	}

	if err := h.EndDoc(); err != nil {
		return s.fail(KindEndFailed, err)
	}

	return nil
}

// cleanup closes what is still open after a failed step. Errors are only
// logged so the original failure is the one reported.
func (s *Session) cleanup(logger *zap.Logger, pageOpen bool) {
	if pageOpen {
		if err := s.handle.EndPage(); err != nil {
			logger.Warn("EndPage failed during cleanup", zap.Error(err))
		}
	}
	if err := s.handle.EndDoc(); err != nil {
		logger.Warn("EndDoc failed during cleanup", zap.Error(err))
	}
}

func (s *Session) fail(kind Kind, err error) error {
	return &Error{Kind: kind, Device: s.device, Code: adapter.ErrorCode(err), Err: err}
}

// IsOpen returns whether a device is bound
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// Device returns the bound device name, or "" when closed
func (s *Session) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// ListDevices returns the host's devices in registry order
func (s *Session) ListDevices() ([]adapter.Device, error) {
	devices, err := s.host.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if devices == nil {
		devices = []adapter.Device{}
	}
	return devices, nil
}
