package adapter

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultRawPort is the port of the raw (JetDirect) printing protocol
const DefaultRawPort = 9100

// TCPHost drives network printers that accept raw ESC/POS on a socket.
// The registry is the configured address list.
type TCPHost struct {
	addresses   []string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// NewTCPHost creates a host over a fixed list of printer addresses. An
// address without a port gets DefaultRawPort.
func NewTCPHost(addresses []string, dialTimeout time.Duration, logger *zap.Logger) *TCPHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		normalized = append(normalized, normalizeAddress(addr))
	}
	return &TCPHost{
		addresses:   normalized,
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// normalizeAddress appends DefaultRawPort to an address without a port
func normalizeAddress(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, fmt.Sprint(DefaultRawPort))
	}
	return addr
}

// Enumerate returns the configured addresses in configuration order
func (h *TCPHost) Enumerate() ([]Device, error) {
	devices := make([]Device, 0, len(h.addresses))
	for _, addr := range h.addresses {
		devices = append(devices, Device{Name: addr, Description: "Network printer"})
	}
	return devices, nil
}

// Probe checks that a printer accepts connections at addr
func (h *TCPHost) Probe(addr string) error {
	conn, err := net.DialTimeout("tcp", normalizeAddress(addr), h.dialTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Open checks the printer is reachable. Raw printers serve one client at a
// time, so the socket is only held from StartDoc to EndDoc.
func (h *TCPHost) Open(name string) (Handle, error) {
	addr := normalizeAddress(name)
	if err := h.Probe(addr); err != nil {
		return nil, tcpError("open", err)
	}
	h.logger.Info("Network printer reachable", zap.String("device", addr))
	return &tcpHandle{host: h, addr: addr}, nil
}

type tcpHandle struct {
	host   *TCPHost
	addr   string
	conn   net.Conn
	state  docState
	closed bool
	mu     sync.Mutex
}

// StartDoc connects to the printer for the duration of the document
func (t *tcpHandle) StartDoc(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrNotOpen
	}
	if err := t.state.startDoc(); err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", t.addr, t.host.dialTimeout)
	if err != nil {
		t.state.endDoc()
		return tcpError("connect", err)
	}
	t.conn = conn
	return nil
}

func (t *tcpHandle) StartPage() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrNotOpen
	}
	return t.state.startPage()
}

func (t *tcpHandle) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrNotOpen
	}
	if err := t.state.writable(); err != nil {
		return 0, err
	}
	n, err := t.conn.Write(data)
	if err != nil {
		return n, tcpError("write", err)
	}
	return n, nil
}

func (t *tcpHandle) EndPage() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.endPage()
}

// EndDoc closes the connection, which tells the printer the job is complete
func (t *tcpHandle) EndDoc() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.state.endDoc(); err != nil {
		return err
	}
	return t.disconnect()
}

func (t *tcpHandle) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.state = docState{}
	return t.disconnect()
}

func (t *tcpHandle) disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return tcpError("close", err)
	}
	return nil
}

// tcpError wraps err, using the errno as the host code when available
func tcpError(op string, err error) error {
	code := 0
	var errno syscall.Errno
	if errors.As(err, &errno) {
		code = int(errno)
	}
	return &HostError{Op: op, Code: code, Err: err}
}
