// Package connection implements the Connection object (spec component E):
// one Transport, one Raw-REPL codec, one filesystem/transfer pair, one
// mutex, and the busy-state machine that arbitrates concurrent sessions
// sharing a board. Grounded on the original's per-port exclusive access
// model (file_system.py/repl_protocol.py assume a single caller) combined
// with a goroutine-per-long-task idiom (an errCh/ctx pattern generalized
// here to one keep-alive goroutine per Connection instead of one per
// daemon).
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/replx-dev/replx/internal/devicefs"
	"github.com/replx-dev/replx/internal/deviceinfo"
	"github.com/replx-dev/replx/internal/replcodec"
	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/transfer"
	"github.com/replx-dev/replx/internal/transport"
)

// StreamFunc emits an intermediate stream event while a command runs.
type StreamFunc func(streamType string, data json.RawMessage)

// Handler is a registered command implementation.
type Handler func(c *Connection, sid string, args json.RawMessage, stream StreamFunc) (any, error)

var handlers = map[string]Handler{}

func register(name string, h Handler) { handlers[name] = h }

// Connection owns everything needed to talk to one physical board.
type Connection struct {
	Port string

	mu   sync.Mutex
	busy BusyState

	t     transport.Transport
	codec *replcodec.Codec
	fs    *devicefs.FS
	xfer  *transfer.Engine

	info    deviceinfo.BoardInfo
	infoSet bool

	replCursorMu sync.Mutex
	replCursors  map[string]*replcodec.ReplCursor

	onDisconnect func(port string)
	onEvent      func(port, event string)

	stopKeepAlive chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New constructs a Connection and starts its keep-alive goroutine. core
// and rootFS are provisional until the first successful EnterRaw call
// populates info from the friendly-REPL banner.
func New(port string, t transport.Transport, core string, onDisconnect func(string)) *Connection {
	codec := replcodec.New(t, core)
	fs := devicefs.New(codec, core, deviceinfo.RootFSFor(core))
	xfer := transfer.New(codec, deviceinfo.RootFSFor(core))
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		Port:          port,
		t:             t,
		codec:         codec,
		fs:            fs,
		xfer:          xfer,
		onDisconnect:  onDisconnect,
		stopKeepAlive: make(chan struct{}),
		replCursors:   make(map[string]*replcodec.ReplCursor),
		baseCtx:       ctx,
		baseCancel:    cancel,
	}
	go c.keepAliveLoop()
	c.emit("open")
	return c
}

// OnEvent registers a callback invoked on lifecycle and busy-state
// transitions ("open", "busy:<kind>", "teardown"). The daemon wires this to
// internal/history so connection activity survives in the observability
// log without the connection package depending on sqlite itself.
func (c *Connection) OnEvent(fn func(port, event string)) { c.onEvent = fn }

func (c *Connection) emit(event string) {
	if c.onEvent != nil {
		c.onEvent(c.Port, event)
	}
}

func (c *Connection) keepAliveLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopKeepAlive:
			return
		case <-ticker.C:
			if err := c.t.KeepAlive(); err != nil && rerr.Is(err, rerr.Disconnected) {
				c.teardown()
				return
			}
		}
	}
}

func (c *Connection) teardown() {
	c.emit("teardown")
	c.baseCancel()
	c.t.Close()
	if c.onDisconnect != nil {
		c.onDisconnect(c.Port)
	}
}

// Close stops the keep-alive loop and closes the transport; used on
// explicit disconnect (not transport-detected).
func (c *Connection) Close() {
	select {
	case <-c.stopKeepAlive:
	default:
		close(c.stopKeepAlive)
	}
	c.baseCancel()
	c.t.Close()
}

// Info returns the board info, populating it on first use (I4).
func (c *Connection) Info() (deviceinfo.BoardInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.infoSet {
		return c.info, nil
	}
	if err := c.codec.EnterRaw(true); err != nil {
		return deviceinfo.BoardInfo{}, err
	}
	c.info = deviceinfo.ParseBanner(c.codec.LastBanner())
	c.infoSet = true
	rootFS := deviceinfo.RootFSFor(c.info.Core)
	c.fs.SetCore(c.info.Core, rootFS)
	c.xfer.SetRootFS(rootFS)
	return c.info, nil
}

// Busy snapshots the current busy state (for session_info/status).
func (c *Connection) Busy() BusyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Execute dispatches a command per the busy-state rules in spec I2/I3; it
// is the single entry point the agent server calls.
func (c *Connection) Execute(ctx context.Context, cmd, sid string, args json.RawMessage, stream StreamFunc) (any, error) {
	h, ok := handlers[cmd]
	if !ok {
		return nil, rerr.New(rerr.ValidationError, fmt.Sprintf("unknown command %q", cmd))
	}

	c.mu.Lock()
	if err := c.checkBusy(cmd, sid); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	prevBusy := c.busy
	if cmd != "repl_enter" && cmd != "repl_exit" {
		c.busy = BusyState{Kind: RunningCommand, Command: cmd, StartedAt: time.Now()}
	}
	c.mu.Unlock()

	result, err := h(c, sid, args, stream)

	c.mu.Lock()
	if c.busy.Kind == RunningCommand && c.busy.Command == cmd {
		c.busy = prevBusy
	}
	c.mu.Unlock()

	if err != nil && rerr.Is(err, rerr.Disconnected) {
		c.teardown()
	}
	return result, err
}

// checkBusy enforces I2 (REPL attach exclusivity) and I3 (detached-allow
// set). Caller holds c.mu.
func (c *Connection) checkBusy(cmd, sid string) error {
	switch c.busy.Kind {
	case ReplAttached:
		if c.busy.OwnerSID != sid && !readOnly[cmd] && cmd != "repl_exit" {
			return rerr.New(rerr.Busy, "REPL session is active on another session")
		}
	case DetachedRunning:
		if !detachedAllow[cmd] {
			return rerr.New(rerr.Busy, fmt.Sprintf("connection is busy: a detached run is active (command %q not in detached-allow set)", cmd))
		}
	case RunningCommand:
		return rerr.New(rerr.Busy, fmt.Sprintf("connection %s is busy. Another command (%s) is currently running", c.Port, c.busy.Command))
	}
	return nil
}

// setDetached transitions into the detached_running state; only called by
// the run handler when args.Detach is true.
func (c *Connection) setDetached() {
	c.mu.Lock()
	c.busy = BusyState{Kind: DetachedRunning, StartedAt: time.Now()}
	c.mu.Unlock()
	c.emit("busy:" + DetachedRunning.String())
}

func (c *Connection) setReplAttached(sid string) {
	c.mu.Lock()
	c.busy = BusyState{Kind: ReplAttached, OwnerSID: sid, StartedAt: time.Now()}
	c.mu.Unlock()
	c.emit("busy:" + ReplAttached.String())
}

func (c *Connection) setIdle() {
	c.mu.Lock()
	c.busy = BusyState{Kind: Idle}
	c.mu.Unlock()
	c.emit("busy:" + Idle.String())
}

func (c *Connection) requestInterrupt() { c.codec.RequestInterrupt() }

// ForwardInput delivers raw keystrokes from an `input` envelope to the
// attached friendly-REPL session; no other execution mode receives input.
// Bytes arriving with no active attachment are dropped.
func (c *Connection) ForwardInput(data []byte) {
	if !c.codec.Attached() {
		return
	}
	c.codec.ReplWrite(data)
}
