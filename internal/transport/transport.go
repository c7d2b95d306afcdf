// Package transport implements the byte-oriented duplex channel over a
// serial port (spec component A). Grounded on original_source's
// transport/base.py (the Transport ABC) and transport/serial.py (the
// pyserial-backed implementation, buffer sizes, and disconnection-string
// classification); backed here by go.bug.st/serial, the real third-party
// serial library used by arduino-cli, since no example repo in the pack
// touches raw serial I/O.
package transport

import (
	"strings"
	"time"

	"github.com/replx-dev/replx/internal/rerr"
	"go.bug.st/serial"
)

const (
	DefaultBaud  = 115200
	readTimeout  = 600 * time.Millisecond
	rxBufferSize = 262144
	txBufferSize = 65536
)

// Transport is the abstract duplex channel every higher layer programs
// against; the Raw-REPL codec never touches go.bug.st/serial directly.
type Transport interface {
	Write(p []byte) (int, error)
	Read(n int) ([]byte, error)
	ReadAvailable() ([]byte, error)
	InWaiting() (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
	IsOpen() bool
	KeepAlive() error
}

// disconnectSubstrings classifies platform-specific "device removed"
// error text into rerr.Disconnected, mirroring transport/serial.py's
// substring match on Windows ("clearcommerror", "not exist", "cannot
// find", "access is denied") and POSIX ("errno 6", "device not
// configured", "no such device") messages.
var disconnectSubstrings = []string{
	"clearcommerror",
	"not exist",
	"cannot find",
	"access is denied",
	"errno 6",
	"device not configured",
	"no such device",
	"input/output error",
	"resource temporarily unavailable and reopen failed",
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	for _, s := range disconnectSubstrings {
		if strings.Contains(lower, s) {
			return rerr.Wrap(rerr.Disconnected, "serial port disconnected (device removed or cable unplugged)", err)
		}
	}
	return err
}

// SerialTransport wraps a go.bug.st/serial.Port opened at 115200 baud with
// short read timeouts. The OS buffer sizes are left at the platform
// defaults; rxBufferSize and txBufferSize are not applied.
type SerialTransport struct {
	port serial.Port
	open bool
}

// Open opens portName at baud (0 selects DefaultBaud).
func Open(portName string, baud int) (*SerialTransport, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, classify(err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, classify(err)
	}
	// Best effort; not all platforms/backends support setting modem lines.
	_ = p.SetRTS(true)
	_ = p.SetDTR(true)
	return &SerialTransport{port: p, open: true}, nil
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	n, err := t.port.Write(p)
	return n, classify(err)
}

// Read blocks up to the configured read timeout and returns up to n bytes;
// fewer than n (including zero) on timeout is not itself an error.
func (t *SerialTransport) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := t.port.Read(buf)
	if err != nil {
		return nil, classify(err)
	}
	return buf[:got], nil
}

func (t *SerialTransport) ReadAvailable() ([]byte, error) {
	n, err := t.InWaiting()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return t.Read(n)
}

func (t *SerialTransport) InWaiting() (int, error) {
	// go.bug.st/serial doesn't directly expose in-waiting on all
	// platforms, so this always reports 0 and ReadAvailable returns
	// nothing; disconnects are detected by KeepAlive instead.
	return 0, nil
}

func (t *SerialTransport) ResetInputBuffer() error  { return classify(t.port.ResetInputBuffer()) }
func (t *SerialTransport) ResetOutputBuffer() error { return classify(t.port.ResetOutputBuffer()) }

func (t *SerialTransport) Close() error {
	t.open = false
	return t.port.Close()
}

func (t *SerialTransport) IsOpen() bool { return t.open }

// KeepAlive probes the line status to detect disconnection without
// blocking on the data path; higher layers call this on a timer.
func (t *SerialTransport) KeepAlive() error {
	if !t.open {
		return rerr.New(rerr.Disconnected, "transport already closed")
	}
	_, err := t.port.GetModemStatusBits()
	if err != nil {
		return classify(err)
	}
	return nil
}
