// Package adaptertest provides an in-memory print host that records every
// call made against it.
package adaptertest

import (
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-print-agent/adapter"
)

// Call names recorded by Host
const (
	CallEnumerate = "enumerate"
	CallOpen      = "open"
	CallStartDoc  = "startDoc"
	CallStartPage = "startPage"
	CallWrite     = "write"
	CallEndPage   = "endPage"
	CallEndDoc    = "endDoc"
	CallClose     = "close"
)

// Host is a fake adapter.Host. Set the *Err fields to inject failures.
type Host struct {
	Devices      []adapter.Device
	EnumerateErr error
	OpenErr      error
	StartDocErr  error
	StartPageErr error
	WriteErr     error
	EndPageErr   error
	EndDocErr    error
	CloseErr     error

	// ShortWrite makes Write report one byte less than it was given
	ShortWrite bool

	// WriteDelay stalls Write, widening windows for concurrency tests
	WriteDelay time.Duration

	mu         sync.Mutex
	calls      []string
	opened     []string
	documents  [][]byte
	docNames   []string
	current    []byte
	active     int
	failed     bool
	interleave bool
	counts     map[string]int
}

// New creates a fake host listing the given device names
func New(names ...string) *Host {
	h := &Host{}
	for _, name := range names {
		h.Devices = append(h.Devices, adapter.Device{Name: name})
	}
	return h
}

func (h *Host) record(call string) {
	h.calls = append(h.calls, call)
	if h.counts == nil {
		h.counts = make(map[string]int)
	}
	h.counts[call]++
}

// Enumerate returns Devices or EnumerateErr
func (h *Host) Enumerate() ([]adapter.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallEnumerate)
	if h.EnumerateErr != nil {
		return nil, h.EnumerateErr
	}
	out := make([]adapter.Device, len(h.Devices))
	copy(out, h.Devices)
	return out, nil
}

// Open returns a recording handle or OpenErr
func (h *Host) Open(name string) (adapter.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallOpen)
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	h.opened = append(h.opened, name)
	return &handle{host: h, name: name}, nil
}

// Calls returns the ordered call log
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

// Count returns how many times call was made
func (h *Host) Count(call string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[call]
}

// Opened returns the device names passed to Open
func (h *Host) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.opened))
	copy(out, h.opened)
	return out
}

// Documents returns the bytes of every document that reached EndDoc
// without a failed write
func (h *Host) Documents() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.documents))
	copy(out, h.documents)
	return out
}

// DocumentNames returns the names passed to StartDoc, in order
func (h *Host) DocumentNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.docNames))
	copy(out, h.docNames)
	return out
}

// Interleaved reports whether two documents were ever open at once
func (h *Host) Interleaved() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interleave
}

// Reset clears the call log and recorded documents
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
	h.opened = nil
	h.documents = nil
	h.docNames = nil
	h.counts = nil
}

type handle struct {
	host *Host
	name string
}

func (d *handle) StartDoc(name string) error {
	h := d.host
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallStartDoc)
	if h.StartDocErr != nil {
		return h.StartDocErr
	}
	h.active++
	if h.active > 1 {
		h.interleave = true
	}
	h.docNames = append(h.docNames, name)
	h.current = nil
	h.failed = false
	return nil
}

func (d *handle) StartPage() error {
	h := d.host
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallStartPage)
	return h.StartPageErr
}

func (d *handle) Write(data []byte) (int, error) {
	h := d.host
	h.mu.Lock()
	delay := h.WriteDelay
	h.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallWrite)
	if h.WriteErr != nil {
		h.failed = true
		return 0, h.WriteErr
	}
	h.current = append(h.current, data...)
	if h.ShortWrite && len(data) > 0 {
		return len(data) - 1, nil
	}
	return len(data), nil
}

func (d *handle) EndPage() error {
	h := d.host
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallEndPage)
	return h.EndPageErr
}

func (d *handle) EndDoc() error {
	h := d.host
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallEndDoc)
	h.active--
	if h.EndDocErr != nil {
		return h.EndDocErr
	}
	if h.failed {
		h.current = nil
		return nil
	}
	h.documents = append(h.documents, h.current)
	h.current = nil
	return nil
}

func (d *handle) Close() error {
	h := d.host
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(CallClose)
	return h.CloseErr
}
