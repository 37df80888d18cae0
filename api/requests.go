package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PrintTicketRequest is the body of POST /print/ticket
type PrintTicketRequest struct {
	Lines []string `json:"lines" binding:"required"`
}

// PrintBarcodeRequest is the body of POST /print/barcode. Copies defaults
// to 1 and Text to no caption.
type PrintBarcodeRequest struct {
	Codes  CodeList `json:"codes" binding:"required,min=1"`
	Copies *int     `json:"copies"`
	Text   string   `json:"text"`
}

// CopyCount returns the requested copies, 1 when omitted
func (r PrintBarcodeRequest) CopyCount() int {
	if r.Copies == nil {
		return 1
	}
	return *r.Copies
}

// PrintTextRequest is the body of POST /print/text
type PrintTextRequest struct {
	Text string `json:"text" binding:"required"`
}

// CodeList accepts either a JSON array of strings or a single string
type CodeList []string

func (l *CodeList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var code string
		if err := json.Unmarshal(data, &code); err != nil {
			return err
		}
		*l = CodeList{code}
		return nil
	}

	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return fmt.Errorf("codes must be a string or an array of strings: %w", err)
	}
	*l = codes
	return nil
}

// SuccessResponse is returned by every print endpoint on success
type SuccessResponse struct {
	Success bool `json:"success"`
}

// BarcodeResponse echoes what was printed
type BarcodeResponse struct {
	Success bool     `json:"success"`
	Codes   []string `json:"codes"`
	Copies  int      `json:"copies"`
}

// ErrorResponse describes a failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// PingResponse is returned by GET /ping
type PingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Printer string `json:"printer,omitempty"`
}

// DevicesResponse is returned by GET /printers
type DevicesResponse struct {
	Printers []string        `json:"printers"`
	Devices  []DeviceSummary `json:"devices"`
}

// DeviceSummary is one entry of DevicesResponse.Devices
type DeviceSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
