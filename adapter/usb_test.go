package adapter

import (
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUSBDeviceName(t *testing.T) {
	assert.Equal(t, "usb:04b8:0202", USBDeviceName(0x04b8, 0x0202, ""))
	assert.Equal(t, "usb:0519:0001:ABC123", USBDeviceName(0x0519, 0x0001, "ABC123"))
}

func TestParseUSBDeviceName(t *testing.T) {
	testCases := []struct {
		name   string
		vid    uint16
		pid    uint16
		serial string
		err    bool
	}{
		{"usb:04b8:0202", 0x04b8, 0x0202, "", false},
		{"usb:0519:0001:ABC123", 0x0519, 0x0001, "ABC123", false},
		{"usb:0519:0001:AB:CD", 0x0519, 0x0001, "AB:CD", false},
		{"POS-80", 0, 0, "", true},
		{"usb:04b8", 0, 0, "", true},
		{"usb:zzzz:0202", 0, 0, "", true},
		{"usb:04b8:12345", 0, 0, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			vid, pid, serial, err := parseUSBDeviceName(tc.name)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.vid, vid)
			assert.Equal(t, tc.pid, pid)
			assert.Equal(t, tc.serial, serial)
		})
	}
}

func TestUSBHostOpenInvalidName(t *testing.T) {
	host := NewUSBHost(nil)
	defer host.Close()

	_, err := host.Open("POS-80")
	require.Error(t, err)
	assert.Equal(t, int(gousb.ErrorInvalidParam), ErrorCode(err))
}

func TestUSBHostOpenMissingDevice(t *testing.T) {
	host := NewUSBHost(nil)
	defer host.Close()

	_, err := host.Open("usb:ffff:ffff")
	require.Error(t, err)
	assert.NotZero(t, ErrorCode(err))
}

func TestFindPrinters(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	printers := FindPrinters(ctx)

	if len(printers) == 0 {
		t.Skip("No USB printers found")
	}

	t.Logf("Found %d printer(s)", len(printers))
	for _, printer := range printers {
		assert.True(t, IsPrinter(printer))
		printer.Close()
	}
}

func TestIsPrinter(t *testing.T) {
	t.Run("NilDevice", func(t *testing.T) {
		assert.False(t, IsPrinter(nil))
	})

	t.Run("RealDevice", func(t *testing.T) {
		ctx := gousb.NewContext()
		defer ctx.Close()

		devices := FindPrinters(ctx)
		if len(devices) == 0 {
			t.Skip("No USB printers found")
		}

		for _, dev := range devices {
			defer dev.Close()
			assert.True(t, IsPrinter(dev))
		}
	})
}

func TestUSBHostEnumerate(t *testing.T) {
	host := NewUSBHost(nil)
	defer host.Close()

	devices, err := host.Enumerate()
	require.NoError(t, err)
	assert.NotNil(t, devices)

	if len(devices) == 0 {
		t.Skip("No USB printers found")
	}
	for _, d := range devices {
		_, _, _, err := parseUSBDeviceName(d.Name)
		assert.NoError(t, err)
		assert.NotEmpty(t, d.Description)
	}
}

func TestUSBHostPrint(t *testing.T) {
	host := NewUSBHost(nil)
	defer host.Close()

	devices, err := host.Enumerate()
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("No USB printer found, skipping test")
	}

	handle, err := host.Open(devices[0].Name)
	require.NoError(t, err)
	defer handle.Close()

	// Test write outside of a page
	_, err = handle.Write([]byte("test"))
	assert.ErrorIs(t, err, ErrNoPage)

	require.NoError(t, handle.StartDoc("test"))
	require.NoError(t, handle.StartPage())

	testData := []byte{0x1B, 0x40} // ESC @ (Initialize printer)
	n, err := handle.Write(testData)
	assert.NoError(t, err)
	assert.Equal(t, len(testData), n)

	require.NoError(t, handle.EndPage())
	require.NoError(t, handle.EndDoc())

	// Test double close (should not error)
	require.NoError(t, handle.Close())
	assert.NoError(t, handle.Close())

	_, err = handle.Write(testData)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestGetDeviceByVIDPID(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	// Test with invalid VID/PID
	_, err := GetDeviceByVIDPID(ctx, 0xFFFF, 0xFFFF)
	assert.Error(t, err)

	printers := FindPrinters(ctx)
	if len(printers) == 0 {
		t.Skip("No USB printers found")
	}

	desc := printers[0].Desc
	for _, p := range printers {
		p.Close()
	}

	device, err := GetDeviceByVIDPID(ctx, uint16(desc.Vendor), uint16(desc.Product))
	if err == nil {
		defer device.Close()
		assert.NotNil(t, device)
	}
}

func TestGetDeviceBySerial(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	_, err := GetDeviceBySerial(ctx, 0xFFFF, 0xFFFF, "INVALID_SERIAL_NUMBER")
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	printers := FindPrinters(ctx)
	if len(printers) == 0 {
		t.Skip("No USB printers found")
	}

	desc := printers[0].Desc
	serial, err := printers[0].SerialNumber()

	for _, p := range printers {
		p.Close()
	}

	if err != nil || serial == "" {
		t.Skip("Printer doesn't have a serial number")
	}

	device, err := GetDeviceBySerial(ctx, uint16(desc.Vendor), uint16(desc.Product), serial)
	if err == nil {
		defer device.Close()
		assert.NotNil(t, device)
	}
}
