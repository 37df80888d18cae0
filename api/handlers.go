package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-agent/adapter"
	"github.com/nixxel-company-limited/escpos-print-agent/escpos"
	"github.com/nixxel-company-limited/escpos-print-agent/logging"
	"github.com/nixxel-company-limited/escpos-print-agent/spooler"
)

// Spooler is what the handlers need from a spooler session
type Spooler interface {
	Submit(stream []byte) error
	ListDevices() ([]adapter.Device, error)
	IsOpen() bool
	Device() string
}

// Handler serves the print endpoints
type Handler struct {
	spooler Spooler
}

// NewHandler creates a handler submitting to s
func NewHandler(s Spooler) *Handler {
	return &Handler{spooler: s}
}

// Ping reports agent health and the bound printer
func (h *Handler) Ping(c *gin.Context) {
	resp := PingResponse{Status: "ok"}
	if h.spooler.IsOpen() {
		resp.Message = "Print agent running (printer connected)"
		resp.Printer = h.spooler.Device()
	} else {
		resp.Message = "Print agent running (no printer detected)"
	}
	c.JSON(http.StatusOK, resp)
}

// ListPrinters returns the host devices in registry order
func (h *Handler) ListPrinters(c *gin.Context) {
	devices, err := h.spooler.ListDevices()
	if err != nil {
		logging.FromContext(c).Error("Failed to list printers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := DevicesResponse{
		Printers: make([]string, 0, len(devices)),
		Devices:  make([]DeviceSummary, 0, len(devices)),
	}
	for _, d := range devices {
		resp.Printers = append(resp.Printers, d.Name)
		resp.Devices = append(resp.Devices, DeviceSummary{Name: d.Name, Description: d.Description})
	}
	c.JSON(http.StatusOK, resp)
}

// PrintTicket prints lines as a ticket
func (h *Handler) PrintTicket(c *gin.Context) {
	var req PrintTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body must contain a 'lines' array"})
		return
	}

	if !h.submit(c, escpos.Ticket(req.Lines)) {
		return
	}

	logging.FromContext(c).Info("Ticket printed", zap.Int("lines", len(req.Lines)))
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// PrintBarcode prints a batch of barcodes
func (h *Handler) PrintBarcode(c *gin.Context) {
	var req PrintBarcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at least one code is required"})
		return
	}

	copies := req.CopyCount()
	stream, err := escpos.Barcode(escpos.BarcodeJob{
		Codes:   req.Codes,
		Copies:  copies,
		Caption: req.Text,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if !h.submit(c, stream) {
		return
	}

	logging.FromContext(c).Info("Barcodes printed",
		zap.Int("codes", len(req.Codes)),
		zap.Int("copies", copies),
	)
	c.JSON(http.StatusOK, BarcodeResponse{
		Success: true,
		Codes:   req.Codes,
		Copies:  copies,
	})
}

// PrintText prints a single line of plain text
func (h *Handler) PrintText(c *gin.Context) {
	var req PrintTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body must contain a 'text' string"})
		return
	}

	if !h.submit(c, escpos.Text(req.Text)) {
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// submit sends stream to the spooler and writes the error response on
// failure. It reports whether the job succeeded.
func (h *Handler) submit(c *gin.Context, stream []byte) bool {
	err := h.spooler.Submit(stream)
	if err == nil {
		return true
	}

	_ = c.Error(err)
	c.JSON(statusFor(err), ErrorResponse{
		Error: err.Error(),
		Kind:  string(spooler.KindOf(err)),
		Code:  spooler.CodeOf(err),
	})
	return false
}

// statusFor maps spooler failures to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, spooler.ErrNoDeviceFound), errors.Is(err, spooler.ErrNotOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
