package replcodec

import (
	"context"
	"time"

	"github.com/replx-dev/replx/internal/rerr"
)

var friendlyPrompt = []byte(">>>")

// ReplCursor is the handle callers outside this package hold to read their
// own position in the friendly-REPL output stream.
type ReplCursor = cursor

// ReplEnter leaves raw mode and attaches a reader goroutine that pumps
// device bytes into the friendly-REPL ring buffer until ReplExit or ctx is
// cancelled. Only one attachment is allowed at a time; this is enforced by
// the Connection's busy-state machine, not here.
func (c *Codec) ReplEnter(ctx context.Context) (*cursor, error) {
	c.t.Write([]byte{'\r', ctrlB})
	if _, err := c.reader.readUntil(friendlyPrompt, 5*time.Second, nil); err != nil {
		return nil, rerr.Wrap(rerr.EnterRawFailed, "friendly REPL prompt not seen", err)
	}
	c.inRaw = false

	attachCtx, cancel := context.WithCancel(ctx)
	c.attachedMu.Lock()
	c.attached = true
	c.attachCancel = cancel
	c.attachedMu.Unlock()

	go c.replReaderLoop(attachCtx)
	return c.replBuffer.newCursor(), nil
}

// replReaderLoop is the device->buffer pump: one cooperative goroutine per
// attached session watching a shared cancel token, per the design notes'
// re-architecture of the original's thread+signal-handler pair.
func (c *Codec) replReaderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		chunk, err := c.t.Read(256)
		if err != nil {
			return
		}
		if len(chunk) > 0 {
			c.replBuffer.Write(chunk)
		}
	}
}

// ReplRead drains whatever the friendly-REPL pump has produced since c's
// last read.
func (c *Codec) ReplRead(cur *cursor) ([]byte, bool) {
	return c.replBuffer.ReadFrom(cur)
}

// ReplWrite forwards caller keystrokes verbatim to the device.
func (c *Codec) ReplWrite(p []byte) error {
	_, err := c.t.Write(p)
	return err
}

// ReplExit restores Raw mode: CR Ctrl-C Ctrl-A.
func (c *Codec) ReplExit() error {
	c.attachedMu.Lock()
	if c.attachCancel != nil {
		c.attachCancel()
		c.attachCancel = nil
	}
	c.attached = false
	c.attachedMu.Unlock()

	c.t.Write([]byte{'\r', ctrlC, ctrlA})
	_, err := c.reader.readUntil(rawReplPrompt, 5*time.Second, nil)
	if err == nil {
		c.inRaw = true
	}
	return err
}

// Attached reports whether a friendly-REPL session is currently pumping.
func (c *Codec) Attached() bool {
	c.attachedMu.Lock()
	defer c.attachedMu.Unlock()
	return c.attached
}
