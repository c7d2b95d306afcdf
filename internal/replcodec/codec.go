// Package replcodec drives a MicroPython board through its documented
// Raw REPL and Raw-Paste protocols (spec component B). Grounded closely
// on original_source/repl_protocol.py: same control bytes, same prompt
// strings, same flow-control algorithm, same adaptive chunk sizing
// thresholds and OK-wait timeout formula.
package replcodec

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/transport"
)

const (
	ctrlA = 0x01
	ctrlB = 0x02
	ctrlC = 0x03
	ctrlD = 0x04
	ctrlE = 0x05
)

var (
	rawReplPrompt = []byte("raw REPL; CTRL-B to exit\r\n>")
	softRebootMsg = []byte("soft reboot\r\n")
	okResponse    = []byte("OK")
)

const (
	minChunk      = 1024
	maxChunk      = 8192
	fastAckBound  = 10 * time.Millisecond
	slowAckBound  = 50 * time.Millisecond
	pacerInterval = 32 * 1024 // bytes between forced pacing pauses
)

// Codec drives one serial Transport through Raw REPL / Raw-Paste. It is
// not itself goroutine-safe; callers (the Connection object) serialize
// access via a mutex, per spec invariant I1.
type Codec struct {
	t    transport.Transport
	core string

	reader *streamReader

	rawPasteSupported *bool // nil = unknown; cached for the connection's lifetime
	inRaw             bool

	interruptFlag atomic.Bool

	pacer *rate.Limiter

	// replBuffer holds output produced while attached to friendly REPL.
	replBuffer   *ring
	attachedMu   sync.Mutex
	attached     bool
	attachCancel context.CancelFunc

	lastBanner string // captured from the soft-reboot banner during EnterRaw
}

// New constructs a codec bound to t. core is used only for EFR32MG-specific
// quirks (documented, not yet exercised by Execute itself).
func New(t transport.Transport, core string) *Codec {
	return &Codec{
		t:          t,
		core:       core,
		reader:     newStreamReader(t),
		pacer:      rate.NewLimiter(rate.Every(5*time.Millisecond), 1),
		replBuffer: newRing(64 * 1024),
	}
}

// LastBanner returns the soft-reboot banner text captured by the most
// recent soft-reset EnterRaw call, used to populate BoardInfo.
func (c *Codec) LastBanner() string { return c.lastBanner }

// RequestInterrupt sets the cooperative interrupt flag the codec polls
// during interactive execution.
func (c *Codec) RequestInterrupt() { c.interruptFlag.Store(true) }

func (c *Codec) clearInterrupt() { c.interruptFlag.Store(false) }

// EnterRaw performs the documented raw-REPL handshake, making up to two
// attempts; if both fail it falls back to a friendly-REPL Ctrl-B before surfacing
// EnterRawFailed, leaving the board in a recoverable state.
func (c *Codec) EnterRaw(softReset bool) error {
	for attempt := 0; attempt < 2; attempt++ {
		c.t.Write([]byte{'\r', ctrlC, ctrlC})
		c.t.ResetInputBuffer()
		c.t.Write([]byte{'\r', ctrlA})

		if _, err := c.reader.readUntil(rawReplPrompt, 5*time.Second, nil); err != nil {
			continue
		}
		if softReset {
			c.t.Write([]byte{ctrlD})
			if _, err := c.reader.readUntil(softRebootMsg, 5*time.Second, nil); err != nil {
				continue
			}
			banner, err := c.reader.readUntil(rawReplPrompt, 5*time.Second, nil)
			if err != nil {
				continue
			}
			c.lastBanner = strings.TrimSuffix(string(banner), string(rawReplPrompt))
		}
		c.inRaw = true
		return nil
	}
	c.t.Write([]byte{'\r', ctrlB})
	c.inRaw = false
	return rerr.New(rerr.EnterRawFailed, "could not reach raw REPL prompt after 2 attempts")
}

// ExitRaw returns the board to friendly REPL.
func (c *Codec) ExitRaw() error {
	_, err := c.t.Write([]byte{'\r', ctrlB})
	c.inRaw = false
	return err
}

func (c *Codec) ensureRaw() error {
	if c.inRaw {
		return nil
	}
	return c.EnterRaw(true)
}

// Execute runs payload on the board and returns (stdout, stderr). sink, if
// non-nil, receives stdout bytes as they stream in (used for interactive
// and large-output callers); it always still receives the full buffered
// copy as the return value too, since the legacy/raw-paste distinction is
// transparent to callers.
func (c *Codec) Execute(payload []byte, sink func([]byte)) (stdout, stderr []byte, err error) {
	if err := c.ensureRaw(); err != nil {
		return nil, nil, err
	}
	c.clearInterrupt()

	if c.rawPasteSupported == nil || *c.rawPasteSupported {
		stdout, stderr, err = c.execRawPaste(payload, sink)
		if err == nil {
			return stdout, stderr, nil
		}
		// Raw-Paste failed mid-flight: mark unsupported, re-enter raw,
		// retry once via the legacy path.
		no := false
		c.rawPasteSupported = &no
		if reErr := c.EnterRaw(false); reErr != nil {
			return nil, nil, reErr
		}
	}
	return c.execLegacy(payload, sink)
}

// enterRawPaste performs the Raw-Paste negotiation handshake. Returns
// supported=false (and caches the result) on an explicit refusal or a
// legacy "r..." response.
func (c *Codec) enterRawPaste() (supported bool, window uint16, err error) {
	if c.rawPasteSupported != nil && !*c.rawPasteSupported {
		return false, 0, nil
	}
	c.t.Write([]byte{ctrlE, 'A', ctrlA})
	resp, err := c.reader.readN(2, 5*time.Second)
	if err != nil {
		return false, 0, err
	}
	switch {
	case resp[0] == 'R' && resp[1] == 0x01:
		winBytes, err := c.reader.readN(2, 5*time.Second)
		if err != nil {
			return false, 0, err
		}
		w := binary.LittleEndian.Uint16(winBytes)
		if w == 0 {
			no := false
			c.rawPasteSupported = &no
			return false, 0, nil
		}
		yes := true
		c.rawPasteSupported = &yes
		return true, w, nil
	case resp[0] == 'R' && resp[1] == 0x00:
		no := false
		c.rawPasteSupported = &no
		return false, 0, nil
	case resp[0] == 'r':
		c.reader.pushback(resp[1:])
		c.reader.readUntil([]byte(">"), 5*time.Second, nil)
		no := false
		c.rawPasteSupported = &no
		return false, 0, nil
	default:
		return false, 0, rerr.New(rerr.RawPasteError, "unexpected raw-paste negotiation response")
	}
}

// execRawPaste implements the flow-controlled raw-paste send: announce
// the window, stream in window-sized chunks, and wait for flow-control
// acks between bursts.
func (c *Codec) execRawPaste(payload []byte, sink func([]byte)) (stdout, stderr []byte, err error) {
	supported, window, err := c.enterRawPaste()
	if err != nil {
		return nil, nil, err
	}
	if !supported {
		return c.execLegacy(payload, sink)
	}

	remaining := int(window) * 2
	i := 0
	aborted := false
	for i < len(payload) {
		if remaining <= 0 {
			b, err := c.reader.readByte(5 * time.Second)
			if err != nil {
				return nil, nil, rerr.Wrap(rerr.RawPasteError, "flow-control read failed", err)
			}
			switch b {
			case 0x01:
				remaining += int(window)
			case 0x04:
				aborted = true
			default:
				return nil, nil, rerr.New(rerr.RawPasteError, "unexpected flow-control byte")
			}
			if aborted {
				break
			}
			continue
		}
		n := remaining
		if left := len(payload) - i; left < n {
			n = left
		}
		if _, err := c.t.Write(payload[i : i+n]); err != nil {
			return nil, nil, err
		}
		i += n
		remaining -= n
		if avail, _ := c.t.ReadAvailable(); len(avail) > 0 {
			for _, fb := range avail {
				switch fb {
				case 0x01:
					remaining += int(window)
				case 0x04:
					aborted = true
				}
			}
		}
		if aborted {
			break
		}
	}
	c.t.Write([]byte{ctrlD})

	if _, err := c.reader.readUntil([]byte{ctrlD}, 5*time.Second, nil); err != nil {
		return nil, nil, rerr.Wrap(rerr.RawPasteError, "no compilation ack", err)
	}
	out, err := c.reader.readUntil([]byte{ctrlD}, 0, sink)
	if err != nil {
		return nil, nil, err
	}
	serr, err := c.reader.readUntil([]byte{ctrlD}, 5*time.Second, nil)
	if err != nil {
		return nil, nil, err
	}
	c.reader.readByte(2 * time.Second) // trailing '>'; mismatch tolerated

	stdout = trimTerminator(out)
	stderr = trimTerminator(serr)
	return stdout, c.filterInterrupt(stderr), nil
}

// execLegacy writes payload in adaptively-sized chunks, pacing every 32KB
// with the token-bucket limiter, then reads OK/stdout/stderr/prompt.
func (c *Codec) execLegacy(payload []byte, sink func([]byte)) (stdout, stderr []byte, err error) {
	chunk := minChunk
	sent := 0
	start := time.Now()
	for sent < len(payload) {
		n := chunk
		if left := len(payload) - sent; left < n {
			n = left
		}
		writeStart := time.Now()
		if _, err := c.t.Write(payload[sent : sent+n]); err != nil {
			return nil, nil, err
		}
		ackElapsed := time.Since(writeStart)
		switch {
		case ackElapsed < fastAckBound && chunk < maxChunk:
			chunk *= 2
			if chunk > maxChunk {
				chunk = maxChunk
			}
		case ackElapsed > slowAckBound && chunk > minChunk:
			chunk /= 2
			if chunk < minChunk {
				chunk = minChunk
			}
		}
		sent += n
		if sent%pacerInterval < n {
			c.pacer.Wait(context.Background())
		}
	}
	c.t.Write([]byte{ctrlD})

	transferTime := time.Since(start)
	okTimeout := 2 * transferTime
	if okTimeout < 5*time.Second {
		okTimeout = 5 * time.Second
	}
	if _, err := c.reader.readUntil(okResponse, okTimeout, nil); err != nil {
		return nil, nil, rerr.Wrap(rerr.EnterRawFailed, "no OK after legacy send", err)
	}
	out, err := c.reader.readUntil([]byte{ctrlD}, 0, sink)
	if err != nil {
		return nil, nil, err
	}
	serr, err := c.reader.readUntil([]byte{ctrlD}, 5*time.Second, nil)
	if err != nil {
		return nil, nil, err
	}
	c.reader.readByte(2 * time.Second) // trailing '>'

	return trimTerminator(out), c.filterInterrupt(trimTerminator(serr)), nil
}

// filterInterrupt suppresses a KeyboardInterrupt traceback from the error
// channel when the caller just requested an interrupt.
func (c *Codec) filterInterrupt(stderr []byte) []byte {
	if c.interruptFlag.Load() && containsKeyboardInterrupt(stderr) {
		return nil
	}
	return stderr
}

func trimTerminator(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	return b[:len(b)-1]
}

func containsKeyboardInterrupt(b []byte) bool {
	const needle = "KeyboardInterrupt"
	return indexOf(string(b), needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
