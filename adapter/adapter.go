package adapter

import (
	"errors"
	"fmt"
)

// Device identifies one output target known to a host
type Device struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Host is the narrow view of a platform print subsystem the agent needs
type Host interface {
	// Enumerate lists the devices registered with the host, in registry order
	Enumerate() ([]Device, error)

	// Open binds to the named device
	Open(name string) (Handle, error)
}

// Handle is an open connection to one device. Calls follow the spooler
// transaction StartDoc, StartPage, Write, EndPage, EndDoc.
type Handle interface {
	// StartDoc begins a raw document with the given name
	StartDoc(name string) error

	// StartPage begins a page inside the current document
	StartPage() error

	// Write transfers data to the current page
	Write(data []byte) (int, error)

	// EndPage finishes the current page
	EndPage() error

	// EndDoc finishes the current document and releases it to the device
	EndDoc() error

	// Close releases the connection
	Close() error
}

// Errors shared by host implementations
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotOpen        = errors.New("device not open")
	ErrNoDocument     = errors.New("no document started")
	ErrNoPage         = errors.New("no page started")
	ErrDocumentOpen   = errors.New("document already started")
	ErrPageOpen       = errors.New("page already started")
)

// HostError carries the host specific error code of a failed call
type HostError struct {
	Op   string
	Code int
	Err  error
}

func (e *HostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (code %d)", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed (code %d): %v", e.Op, e.Code, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the host error code from err, or 0 if there is none
func ErrorCode(err error) int {
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return hostErr.Code
	}
	return 0
}

// docState tracks the document/page nesting of a handle whose host has no
// native notion of jobs.
type docState struct {
	inDoc  bool
	inPage bool
}

func (s *docState) startDoc() error {
	if s.inDoc {
		return ErrDocumentOpen
	}
	s.inDoc = true
	return nil
}

func (s *docState) startPage() error {
	if !s.inDoc {
		return ErrNoDocument
	}
	if s.inPage {
		return ErrPageOpen
	}
	s.inPage = true
	return nil
}

func (s *docState) endPage() error {
	if !s.inPage {
		return ErrNoPage
	}
	s.inPage = false
	return nil
}

func (s *docState) endDoc() error {
	if !s.inDoc {
		return ErrNoDocument
	}
	s.inDoc = false
	s.inPage = false
	return nil
}

func (s *docState) writable() error {
	if !s.inPage {
		return ErrNoPage
	}
	return nil
}
