package adapter

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassAudio   = 0x01
	IfaceClassHID     = 0x03
	IfaceClassPrinter = 0x07
	IfaceClassHub     = 0x09
)

const usbNamePrefix = "usb:"

// USBHost exposes USB printer-class devices as a print host. USB printers
// have no spooler, so documents and pages are tracked locally and bytes go
// straight to the bulk OUT endpoint.
type USBHost struct {
	ctx    *gousb.Context
	logger *zap.Logger
	mu     sync.Mutex
}

// NewUSBHost creates a USB host with its own libusb context
func NewUSBHost(logger *zap.Logger) *USBHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &USBHost{
		ctx:    gousb.NewContext(),
		logger: logger,
	}
}

// USBDeviceName builds the device name used to address a USB printer
func USBDeviceName(vid, pid gousb.ID, serial string) string {
	name := fmt.Sprintf("%s%s:%s", usbNamePrefix, vid, pid)
	if serial != "" {
		name += ":" + serial
	}
	return name
}

// parseUSBDeviceName splits "usb:VVVV:PPPP[:serial]"
func parseUSBDeviceName(name string) (vid, pid uint16, serial string, err error) {
	if !strings.HasPrefix(name, usbNamePrefix) {
		return 0, 0, "", fmt.Errorf("invalid usb device name %q", name)
	}
	parts := strings.SplitN(strings.TrimPrefix(name, usbNamePrefix), ":", 3)
	if len(parts) < 2 {
		return 0, 0, "", fmt.Errorf("invalid usb device name %q", name)
	}
	v, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, "", fmt.Errorf("invalid vendor id in %q: %w", name, err)
	}
	p, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, "", fmt.Errorf("invalid product id in %q: %w", name, err)
	}
	if len(parts) == 3 {
		serial = parts[2]
	}
	return uint16(v), uint16(p), serial, nil
}

// IsPrinter checks if a device is a printer
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}

	cfg, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}

	cfgDesc, err := dev.Config(cfg)
	if err != nil {
		return false
	}
	defer cfgDesc.Close()

	for _, iface := range cfgDesc.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return true
			}
		}
	}

	return false
}

// FindPrinters returns all USB printer devices. Callers own the returned
// devices and must close them.
func FindPrinters(ctx *gousb.Context) []*gousb.Device {
	var printers []*gousb.Device

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true // Check all devices
	})

	// OpenDevices may return the devices it could open alongside an error
	if err != nil && len(devices) == 0 {
		return printers
	}

	for _, dev := range devices {
		if IsPrinter(dev) {
			printers = append(printers, dev)
		} else {
			dev.Close()
		}
	}

	return printers
}

// GetDeviceByVIDPID opens a device by VID and PID
func GetDeviceByVIDPID(ctx *gousb.Context, vid, pid uint16) (*gousb.Device, error) {
	device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// GetDeviceBySerial opens the device with the given VID, PID and serial number
func GetDeviceBySerial(ctx *gousb.Context, vid, pid uint16, serial string) (*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	var found *gousb.Device
	for _, dev := range devices {
		if found == nil {
			if s, err := dev.SerialNumber(); err == nil && s == serial {
				found = dev
				continue
			}
		}
		dev.Close()
	}

	if found == nil {
		return nil, fmt.Errorf("device with serial number %q: %w", serial, ErrDeviceNotFound)
	}
	return found, nil
}

// describe builds the listing entry of an open device
func describe(dev *gousb.Device) Device {
	serial, _ := dev.SerialNumber()
	manufacturer, _ := dev.Manufacturer()
	product, _ := dev.Product()

	description := fmt.Sprintf("USB %s:%s", dev.Desc.Vendor, dev.Desc.Product)
	if label := strings.TrimSpace(manufacturer + " " + product); label != "" {
		description = fmt.Sprintf("%s (%s:%s)", label, dev.Desc.Vendor, dev.Desc.Product)
	}

	return Device{
		Name:        USBDeviceName(dev.Desc.Vendor, dev.Desc.Product, serial),
		Description: description,
	}
}

// Enumerate lists attached USB printers in bus order
func (h *USBHost) Enumerate() ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	printers := FindPrinters(h.ctx)
	devices := make([]Device, 0, len(printers))
	for _, dev := range printers {
		d := describe(dev)
		h.logger.Debug("Found USB printer", zap.String("device", d.Name), zap.String("description", d.Description))
		devices = append(devices, d)
		dev.Close()
	}
	return devices, nil
}

// Open claims the printer interface of the named device
func (h *USBHost) Open(name string) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	vid, pid, serial, err := parseUSBDeviceName(name)
	if err != nil {
		return nil, &HostError{Op: "open", Code: int(gousb.ErrorInvalidParam), Err: err}
	}

	var dev *gousb.Device
	if serial != "" {
		dev, err = GetDeviceBySerial(h.ctx, vid, pid, serial)
	} else {
		dev, err = GetDeviceByVIDPID(h.ctx, vid, pid)
	}
	if err != nil {
		return nil, usbError("open", err)
	}

	handle, err := claimPrinter(dev)
	if err != nil {
		dev.Close()
		return nil, usbError("open", err)
	}

	h.logger.Info("USB printer opened", zap.String("device", name))
	return handle, nil
}

// Close releases the libusb context
func (h *USBHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx.Close()
}

// usbHandle is an open USB printer with a claimed interface
type usbHandle struct {
	device      *gousb.Device
	cfg         *gousb.Config
	iface       *gousb.Interface
	outEndpoint *gousb.OutEndpoint
	state       docState
	isOpen      bool
	mu          sync.Mutex
}

// claimPrinter finds the printer interface of dev and its bulk OUT endpoint
func claimPrinter(dev *gousb.Device) (*usbHandle, error) {
	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		dev.SetAutoDetach(true)
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	printerIfaceNum := -1
	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				printerIfaceNum = iface.Number
				break
			}
		}
		if printerIfaceNum >= 0 {
			break
		}
	}

	if printerIfaceNum < 0 {
		cfg.Close()
		return nil, errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(printerIfaceNum, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	var out *gousb.OutEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				out = ep
				break
			}
		}
	}

	if out == nil {
		iface.Close()
		cfg.Close()
		return nil, errors.New("cannot find output endpoint from printer")
	}

	return &usbHandle{
		device:      dev,
		cfg:         cfg,
		iface:       iface,
		outEndpoint: out,
		isOpen:      true,
	}, nil
}

func (u *usbHandle) StartDoc(name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.isOpen {
		return ErrNotOpen
	}
	return u.state.startDoc()
}

func (u *usbHandle) StartPage() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.isOpen {
		return ErrNotOpen
	}
	return u.state.startPage()
}

// Write sends data to the printer
func (u *usbHandle) Write(data []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.isOpen {
		return 0, ErrNotOpen
	}
	if err := u.state.writable(); err != nil {
		return 0, err
	}

	n, err := u.outEndpoint.Write(data)
	if err != nil {
		return n, usbError("write", err)
	}
	return n, nil
}

func (u *usbHandle) EndPage() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state.endPage()
}

func (u *usbHandle) EndDoc() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state.endDoc()
}

// Close releases the interface, the configuration and the device
func (u *usbHandle) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.isOpen {
		return nil
	}

	var errs []error

	if u.iface != nil {
		u.iface.Close()
		u.iface = nil
	}

	if u.cfg != nil {
		if err := u.cfg.Close(); err != nil {
			errs = append(errs, err)
		}
		u.cfg = nil
	}

	if u.device != nil {
		if err := u.device.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	u.isOpen = false

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}

	return nil
}

// usbError wraps err in a HostError carrying the libusb error code
func usbError(op string, err error) error {
	var hostErr *HostError
	if errors.As(err, &hostErr) {
		return err
	}
	code := 0
	var usbErr gousb.Error
	if errors.As(err, &usbErr) {
		code = int(usbErr)
	} else if errors.Is(err, ErrDeviceNotFound) {
		code = int(gousb.ErrorNotFound)
	}
	return &HostError{Op: op, Code: code, Err: err}
}
