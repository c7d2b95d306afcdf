package transport

import (
	"bytes"
	"sync"

	"github.com/replx-dev/replx/internal/rerr"
)

// Fake is an in-memory Transport for codec/filesystem tests: writes land
// in WriteLog for assertions, and Read drains from a caller-fed Inbox
// buffer, the same role a real board's responses would play. No real
// example repo mocks serial hardware, so this is hand-rolled against the
// Transport interface rather than against any particular library.
type Fake struct {
	mu         sync.Mutex
	inbox      bytes.Buffer
	WriteLog   bytes.Buffer
	closed     bool
	Disconnect bool
}

func NewFake() *Fake { return &Fake{} }

// Feed appends bytes the fake device "sends" to the host.
func (f *Fake) Feed(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox.Write(p)
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, rerr.New(rerr.Disconnected, "closed")
	}
	if f.Disconnect {
		return 0, rerr.New(rerr.Disconnected, "device removed")
	}
	return f.WriteLog.Write(p)
}

func (f *Fake) Read(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, rerr.New(rerr.Disconnected, "closed")
	}
	if f.Disconnect {
		return nil, rerr.New(rerr.Disconnected, "device removed")
	}
	buf := make([]byte, n)
	got, _ := f.inbox.Read(buf)
	return buf[:got], nil
}

func (f *Fake) ReadAvailable() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.inbox.Len()
	buf := make([]byte, n)
	got, _ := f.inbox.Read(buf)
	return buf[:got], nil
}

func (f *Fake) InWaiting() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inbox.Len(), nil
}

func (f *Fake) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox.Reset()
	return nil
}

func (f *Fake) ResetOutputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteLog.Reset()
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *Fake) KeepAlive() error {
	if f.Disconnect {
		return rerr.New(rerr.Disconnected, "device removed")
	}
	return nil
}
