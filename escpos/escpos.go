package escpos

import (
	"bytes"
	"fmt"
)

// ESC/POS command sequences
var (
	CmdInitialize   = []byte{0x1B, 0x40}
	CmdAlignLeft    = []byte{0x1B, 0x61, 0x00}
	CmdAlignCenter  = []byte{0x1B, 0x61, 0x01}
	CmdAlignRight   = []byte{0x1B, 0x61, 0x02}
	CmdFontA        = []byte{0x1B, 0x4D, 0x00}
	CmdFeed         = []byte{0x0A}
	CmdCut          = []byte{0x1D, 0x56, 0x00}
	CmdBarcodeEAN13 = []byte{0x1D, 0x6B, 0x43, 0x0C}
)

// BarcodePayloadLength is the number of payload bytes sent after CmdBarcodeEAN13.
const BarcodePayloadLength = 12

// ticketFeedLines is the number of feeds needed to clear the cutter blade.
const ticketFeedLines = 2

// MaxCopies bounds the copies of one barcode job
const MaxCopies = 1000

// ErrInvalidCopies is returned when a barcode job asks for fewer than one
// copy or more than MaxCopies
var ErrInvalidCopies = fmt.Errorf("copies must be between 1 and %d", MaxCopies)

// Builder accumulates ESC/POS commands into a byte stream
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Initialize resets the printer to its power-on state
func (b *Builder) Initialize() *Builder {
	b.buf.Write(CmdInitialize)
	return b
}

// AlignLeft selects left justification
func (b *Builder) AlignLeft() *Builder {
	b.buf.Write(CmdAlignLeft)
	return b
}

// AlignCenter selects centered justification
func (b *Builder) AlignCenter() *Builder {
	b.buf.Write(CmdAlignCenter)
	return b
}

// AlignRight selects right justification
func (b *Builder) AlignRight() *Builder {
	b.buf.Write(CmdAlignRight)
	return b
}

// FontA selects the printer's default character font
func (b *Builder) FontA() *Builder {
	b.buf.Write(CmdFontA)
	return b
}

// Feed prints the line buffer and advances the paper n lines
func (b *Builder) Feed(n int) *Builder {
	for i := 0; i < n; i++ {
		b.buf.Write(CmdFeed)
	}
	return b
}

// Cut performs a full paper cut
func (b *Builder) Cut() *Builder {
	b.buf.Write(CmdCut)
	return b
}

// Write appends raw bytes without any translation
func (b *Builder) Write(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// Line appends the raw bytes of s followed by a line feed
func (b *Builder) Line(s string) *Builder {
	b.buf.WriteString(s)
	b.buf.Write(CmdFeed)
	return b
}

// BarcodeEAN13 appends a barcode command carrying the normalized 12 byte
// payload of code.
func (b *Builder) BarcodeEAN13(code string) *Builder {
	b.buf.Write(CmdBarcodeEAN13)
	b.buf.WriteString(NormalizeCode(code))
	return b
}

// Bytes returns a copy of the accumulated stream
func (b *Builder) Bytes() []byte {
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}
