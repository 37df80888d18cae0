package escpos

import "strings"

// BarcodeJob is a batch of codes printed Copies times, each copy optionally
// preceded by a caption line.
type BarcodeJob struct {
	Codes   []string
	Copies  int
	Caption string
}

// Ticket encodes lines as a left aligned ticket terminated by a paper cut.
// Line bytes are passed through untouched; no wrapping or codepage
// translation is applied.
func Ticket(lines []string) []byte {
	b := NewBuilder().Initialize().FontA().AlignLeft()
	for _, line := range lines {
		b.Line(line)
	}
	return b.Feed(ticketFeedLines).Cut().Bytes()
}

// Barcode encodes a barcode batch. Every code is printed as an EAN-13 class
// barcode with a 12 byte payload; the check digit is left to the printer.
func Barcode(job BarcodeJob) ([]byte, error) {
	if job.Copies < 1 || job.Copies > MaxCopies {
		return nil, ErrInvalidCopies
	}

	b := NewBuilder().Initialize().AlignCenter()
	for i := 0; i < job.Copies; i++ {
		if job.Caption != "" {
			b.Line(job.Caption)
		}
		for _, code := range job.Codes {
			b.BarcodeEAN13(code).Feed(1)
		}
	}
	return b.Cut().Bytes(), nil
}

// Text encodes a single line of plain text without any preamble
func Text(text string) []byte {
	return NewBuilder().Line(text).Bytes()
}

// NormalizeCode returns the first 12 bytes of code, left padded with '0'
// when shorter. Characters are not checked to be digits.
func NormalizeCode(code string) string {
	if len(code) >= BarcodePayloadLength {
		return code[:BarcodePayloadLength]
	}
	return strings.Repeat("0", BarcodePayloadLength-len(code)) + code
}

// CheckDigit computes the EAN-13 check digit of the normalized code.
//
// The digit is not part of the payload emitted by Barcode; printers in the
// field compute it themselves and appending it would change the bytes they
// receive.
func CheckDigit(code string) int {
	base := NormalizeCode(code)
	sum := 0
	for i := 0; i < BarcodePayloadLength; i++ {
		digit := int(base[i]) - '0'
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return (10 - sum%10) % 10
}
