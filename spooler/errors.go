package spooler

import (
	"errors"
	"fmt"
)

// Kind classifies session failures
type Kind string

const (
	KindNoDeviceFound   Kind = "no_device_found"
	KindOpenFailed      Kind = "open_failed"
	KindJobStartFailed  Kind = "job_start_failed"
	KindPageStartFailed Kind = "page_start_failed"
	KindWriteFailed     Kind = "write_failed"
	KindEndFailed       Kind = "end_failed"
	KindNotOpen         Kind = "not_open"
)

// Sentinels matched by errors.Is against any *Error of the same kind
var (
	ErrNoDeviceFound   = &Error{Kind: KindNoDeviceFound}
	ErrOpenFailed      = &Error{Kind: KindOpenFailed}
	ErrJobStartFailed  = &Error{Kind: KindJobStartFailed}
	ErrPageStartFailed = &Error{Kind: KindPageStartFailed}
	ErrWriteFailed     = &Error{Kind: KindWriteFailed}
	ErrEndFailed       = &Error{Kind: KindEndFailed}
	ErrNotOpen         = &Error{Kind: KindNotOpen}
)

var messages = map[Kind]string{
	KindNoDeviceFound:   "no printer found",
	KindOpenFailed:      "failed to open printer",
	KindJobStartFailed:  "failed to start print job",
	KindPageStartFailed: "failed to start page",
	KindWriteFailed:     "failed to write to printer",
	KindEndFailed:       "failed to finish print job",
	KindNotOpen:         "printer not open",
}

// Error is a spooler failure. Code is the host error code, 0 when the host
// did not provide one.
type Error struct {
	Kind   Kind
	Device string
	Code   int
	Err    error
}

func (e *Error) Error() string {
	msg := messages[e.Kind]
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Device != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Device)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a spooler error, or "" for other errors
func KindOf(err error) Kind {
	var spErr *Error
	if errors.As(err, &spErr) {
		return spErr.Kind
	}
	return ""
}

// CodeOf returns the host error code carried by err, or 0
func CodeOf(err error) int {
	var spErr *Error
	if errors.As(err, &spErr) {
		return spErr.Code
	}
	return 0
}
