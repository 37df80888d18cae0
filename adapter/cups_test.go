package adapter

import (
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runCall struct {
	name  string
	args  []string
	stdin []byte
}

type fakeRunner struct {
	calls   []runCall
	outputs map[string][]byte
	errs    map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) run(name string, args []string, stdin []byte) ([]byte, error) {
	f.calls = append(f.calls, runCall{name: name, args: args, stdin: append([]byte(nil), stdin...)})
	key := name + " " + strings.Join(args, " ")
	return f.outputs[key], f.errs[key]
}

// exitError produces a real *exec.ExitError with status 1
func exitError(t *testing.T) error {
	t.Helper()
	err := exec.Command("false").Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	return err
}

func TestParseDestinations(t *testing.T) {
	devices := parseDestinations([]byte("POS-80\n\n  Kitchen  \nBar\n"))
	require.Len(t, devices, 3)
	assert.Equal(t, "POS-80", devices[0].Name)
	assert.Equal(t, "Kitchen", devices[1].Name)
	assert.Equal(t, "Bar", devices[2].Name)

	assert.Empty(t, parseDestinations(nil))
	assert.NotNil(t, parseDestinations(nil))
}

func TestCUPSHostEnumerate(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["lpstat -e"] = []byte("POS-80\nKitchen\n")
	host := NewCUPSHost(runner.run, nil)

	devices, err := host.Enumerate()
	require.NoError(t, err)
	assert.Equal(t, []Device{
		{Name: "POS-80", Description: "CUPS queue"},
		{Name: "Kitchen", Description: "CUPS queue"},
	}, devices)
}

func TestCUPSHostEnumerateNoDestinations(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["lpstat -e"] = exitError(t)
	host := NewCUPSHost(runner.run, nil)

	devices, err := host.Enumerate()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestCUPSHostEnumerateNoDestinationsMessage(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["lpstat -e"] = &CommandError{Name: "lpstat", Stderr: "lpstat: No destinations added.", Err: exitError(t)}
	host := NewCUPSHost(runner.run, nil)

	devices, err := host.Enumerate()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestCUPSHostEnumerateSchedulerDown(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["lpstat -e"] = &CommandError{Name: "lpstat", Stderr: "lpstat: Scheduler is not running.", Err: exitError(t)}
	host := NewCUPSHost(runner.run, nil)

	devices, err := host.Enumerate()
	require.Error(t, err)
	assert.Nil(t, devices)
	assert.Equal(t, 1, ErrorCode(err))
	assert.Contains(t, err.Error(), "Scheduler is not running")
}

func TestExecRunnerStderr(t *testing.T) {
	_, err := ExecRunner("sh", []string{"-c", "echo boom >&2; exit 3"}, nil)
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "boom", cmdErr.Stderr)
	assert.Equal(t, 3, exitCode(err))

	out, err := ExecRunner("cat", nil, []byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), out)
}

func TestCUPSHostEnumerateFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["lpstat -e"] = errors.New("executable file not found")
	host := NewCUPSHost(runner.run, nil)

	_, err := host.Enumerate()
	require.Error(t, err)

	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "enumerate", hostErr.Op)
	assert.Zero(t, hostErr.Code)
}

func TestCUPSHostOpen(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["lpstat -p Missing"] = exitError(t)
	host := NewCUPSHost(runner.run, nil)

	handle, err := host.Open("POS-80")
	require.NoError(t, err)
	assert.NotNil(t, handle)

	_, err = host.Open("Missing")
	require.Error(t, err)
	assert.Equal(t, 1, ErrorCode(err))

	_, err = host.Open("")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestCUPSHandleSubmit(t *testing.T) {
	runner := newFakeRunner()
	host := NewCUPSHost(runner.run, nil)

	handle, err := host.Open("POS-80")
	require.NoError(t, err)
	defer handle.Close()

	require.NoError(t, handle.StartDoc("Receipt"))
	require.NoError(t, handle.StartPage())
	n, err := handle.Write([]byte{0x1B, 0x40})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = handle.Write([]byte("hi\n"))
	require.NoError(t, err)
	require.NoError(t, handle.EndPage())
	require.NoError(t, handle.EndDoc())

	last := runner.calls[len(runner.calls)-1]
	assert.Equal(t, "lp", last.name)
	assert.Equal(t, []string{"-d", "POS-80", "-t", "Receipt", "-o", "raw"}, last.args)
	assert.Equal(t, []byte{0x1B, 0x40, 'h', 'i', '\n'}, last.stdin)
}

func TestCUPSHandleEmptyDocumentDiscarded(t *testing.T) {
	runner := newFakeRunner()
	host := NewCUPSHost(runner.run, nil)

	handle, err := host.Open("POS-80")
	require.NoError(t, err)

	require.NoError(t, handle.StartDoc("Empty"))
	require.NoError(t, handle.StartPage())
	require.NoError(t, handle.EndPage())
	require.NoError(t, handle.EndDoc())

	for _, c := range runner.calls {
		assert.NotEqual(t, "lp", c.name)
	}
}

func TestCUPSHandleSubmitFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["lp -d POS-80 -t Job -o raw"] = exitError(t)
	host := NewCUPSHost(runner.run, nil)

	handle, err := host.Open("POS-80")
	require.NoError(t, err)

	require.NoError(t, handle.StartDoc("Job"))
	require.NoError(t, handle.StartPage())
	_, err = handle.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, handle.EndPage())

	err = handle.EndDoc()
	require.Error(t, err)
	assert.Equal(t, 1, ErrorCode(err))

	// the handle is usable for the next document
	require.NoError(t, handle.StartDoc("Job"))
}

func TestCUPSHandleClosed(t *testing.T) {
	host := NewCUPSHost(newFakeRunner().run, nil)

	handle, err := host.Open("POS-80")
	require.NoError(t, err)
	require.NoError(t, handle.Close())

	assert.ErrorIs(t, handle.StartDoc("x"), ErrNotOpen)
	_, err = handle.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotOpen)
}
