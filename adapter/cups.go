package adapter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Runner executes an external command, feeding stdin and returning stdout
type Runner func(name string, args []string, stdin []byte) ([]byte, error)

// CommandError is a failed external command together with its stderr
type CommandError struct {
	Name   string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec
func ExecRunner(name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.Command(name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, &CommandError{Name: name, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// CUPSHost submits raw documents to the CUPS spooler through the lp and
// lpstat command line clients.
type CUPSHost struct {
	run    Runner
	logger *zap.Logger
}

// NewCUPSHost creates a CUPS host. A nil runner uses ExecRunner.
func NewCUPSHost(run Runner, logger *zap.Logger) *CUPSHost {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CUPSHost{run: run, logger: logger}
}

// Enumerate lists the CUPS destinations in the order lpstat reports them
func (h *CUPSHost) Enumerate() ([]Device, error) {
	out, err := h.run("lpstat", []string{"-e"}, nil)
	if err != nil {
		if noDestinations(out, err) {
			h.logger.Debug("lpstat reported no destinations", zap.Int("code", exitCode(err)))
			return []Device{}, nil
		}
		return nil, cupsError("enumerate", err)
	}
	return parseDestinations(out), nil
}

// noDestinations reports whether a failed lpstat run only means that no
// queue is configured. Any other diagnostic, such as a stopped scheduler,
// is a real failure.
func noDestinations(out []byte, err error) bool {
	if exitCode(err) <= 0 || len(bytes.TrimSpace(out)) > 0 {
		return false
	}
	stderr := ""
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		stderr = cmdErr.Stderr
	}
	return stderr == "" || strings.Contains(stderr, "No destinations added")
}

// parseDestinations reads one destination name per line
func parseDestinations(out []byte) []Device {
	devices := []Device{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		devices = append(devices, Device{Name: name, Description: "CUPS queue"})
	}
	return devices
}

// Open checks that the destination exists
func (h *CUPSHost) Open(name string) (Handle, error) {
	if name == "" {
		return nil, &HostError{Op: "open", Err: ErrDeviceNotFound}
	}
	if _, err := h.run("lpstat", []string{"-p", name}, nil); err != nil {
		return nil, cupsError("open", err)
	}
	return &cupsHandle{host: h, name: name, isOpen: true}, nil
}

// cupsHandle buffers one document and hands it to lp on EndDoc
type cupsHandle struct {
	host    *CUPSHost
	name    string
	docName string
	buf     bytes.Buffer
	state   docState
	isOpen  bool
	mu      sync.Mutex
}

func (c *cupsHandle) StartDoc(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen {
		return ErrNotOpen
	}
	if err := c.state.startDoc(); err != nil {
		return err
	}
	c.docName = name
	c.buf.Reset()
	return nil
}

func (c *cupsHandle) StartPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen {
		return ErrNotOpen
	}
	return c.state.startPage()
}

func (c *cupsHandle) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isOpen {
		return 0, ErrNotOpen
	}
	if err := c.state.writable(); err != nil {
		return 0, err
	}
	return c.buf.Write(data)
}

func (c *cupsHandle) EndPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.endPage()
}

// EndDoc submits the buffered document. A document ended without any
// written bytes is discarded, matching a spooler cancelling an empty job.
func (c *cupsHandle) EndDoc() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.state.endDoc(); err != nil {
		return err
	}
	if c.buf.Len() == 0 {
		return nil
	}

	data := c.buf.Bytes()
	args := []string{"-d", c.name, "-t", c.docName, "-o", "raw"}
	out, err := c.host.run("lp", args, data)
	c.buf.Reset()
	if err != nil {
		return cupsError("submit", err)
	}

	c.host.logger.Debug("Document queued",
		zap.String("device", c.name),
		zap.Int("bytes", len(data)),
		zap.String("lp", strings.TrimSpace(string(out))),
	)
	return nil
}

func (c *cupsHandle) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = false
	c.buf.Reset()
	return nil
}

// exitCode returns the exit status of a failed command, or 0
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}

func cupsError(op string, err error) error {
	return &HostError{Op: op, Code: exitCode(err), Err: err}
}
