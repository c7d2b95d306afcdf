// Package agentclient implements the CLI-side UDP sender (spec component
// H): it frames RequestEnvelopes, retries with exponential backoff, and
// reassembles ack/stream/response sequences keyed by seq. Grounded on
// original_source/cli/agent/client (same retry count, same ack-extends-
// deadline behavior) and on an exponential-backoff-with-ceiling shape
// adapted here from websocket reconnects to per-request UDP retries.
package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/replx-dev/replx/internal/protocol"
	"github.com/replx-dev/replx/internal/rerr"
)

// Backoff is a doubling-with-ceiling shape reused for per-request UDP
// retries instead of websocket reconnect delays.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

func NewBackoff(base, max time.Duration) *Backoff { return &Backoff{Base: base, Max: max} }

func (b *Backoff) Next() time.Duration {
	d := b.Base << b.attempt
	if d > b.Max {
		d = b.Max
	}
	b.attempt++
	return d
}

func (b *Backoff) Reset() { b.attempt = 0 }

const (
	defaultRetries   = 3
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 2 * time.Second
	pingTimeout      = 150 * time.Millisecond
	startupTimeout   = 5 * time.Second
)

// OutputCallback receives stdout/stderr stream bytes as they arrive.
type OutputCallback func(streamType protocol.StreamType, data []byte)

// ProgressCallback receives progress stream payloads as they arrive.
type ProgressCallback func(data json.RawMessage)

// Client talks to one agent instance over UDP.
type Client struct {
	addr *net.UDPAddr
	conn *net.UDPConn
	seq  atomic.Uint32
	sid  string
}

// Dial opens a UDP socket bound to the agent's address; UDP is
// connectionless, so this just resolves the address and creates the
// local socket.
func Dial(agentPort int, sid string) (*Client, error) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: agentPort}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	return &Client{addr: addr, conn: conn, sid: sid}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) nextSeq() uint32 { return c.seq.Add(1) }

// IsAgentRunning sends a ping with a short timeout.
func (c *Client) IsAgentRunning() bool {
	_, err := c.sendOnce("ping", nil, "", pingTimeout)
	return err == nil
}

// SendCommand implements send_command: framed request, up to 3 attempts
// with exponential backoff starting at 200ms; acks extend the deadline.
func (c *Client) SendCommand(ctx context.Context, command, port string, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	result, _, _, err := c.sendWithRetry(ctx, command, port, args, timeout, nil, nil, defaultRetries)
	return result, err
}

// SendCommandStreaming implements send_command_streaming: same retry
// policy, but stream envelopes are delivered to the callbacks as they
// arrive instead of being buffered.
func (c *Client) SendCommandStreaming(ctx context.Context, command, port string, args json.RawMessage, timeout time.Duration, onOutput OutputCallback, onProgress ProgressCallback) (json.RawMessage, error) {
	result, _, _, err := c.sendWithRetry(ctx, command, port, args, timeout, onOutput, onProgress, defaultRetries)
	return result, err
}

func (c *Client) sendOnce(command string, args json.RawMessage, port string, timeout time.Duration) (json.RawMessage, error) {
	result, _, _, err := c.sendWithRetry(context.Background(), command, port, args, timeout, nil, nil, 1)
	return result, err
}

// sendWithRetry is the shared implementation behind every public send
// method: it writes the framed request, waits for ack/stream/response
// envelopes on this seq, and makes up to attempts tries of the whole
// exchange, retrying on timeout.
func (c *Client) sendWithRetry(ctx context.Context, command, port string, args json.RawMessage, timeout time.Duration, onOutput OutputCallback, onProgress ProgressCallback, attempts int) (result json.RawMessage, errMsg string, acked bool, err error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	seq := c.nextSeq()
	env := protocol.NewRequest(seq, command, args, c.sid, port)
	frame, encErr := protocol.Encode(env)
	if encErr != nil {
		return nil, "", false, encErr
	}

	bo := NewBackoff(defaultBaseDelay, defaultMaxDelay)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(bo.Next()):
			case <-ctx.Done():
				return nil, "", false, ctx.Err()
			}
		}
		if _, err := c.conn.Write(frame); err != nil {
			continue
		}
		result, errMsg, acked, err = c.readUntilResponse(seq, timeout, onOutput, onProgress)
		if err == nil {
			if errMsg != "" {
				return nil, errMsg, acked, rerr.New(rerr.DeviceError, errMsg)
			}
			return result, "", acked, nil
		}
		if !rerr.Is(err, rerr.Timeout) {
			return nil, "", acked, err
		}
	}
	return nil, "", false, rerr.New(rerr.Timeout, "agent did not respond after retries")
}

// readUntilResponse reads envelopes for this seq until the terminal
// response; an ack resets the deadline to the caller's declared timeout,
// an ack-envelopes-extend-the-deadline rule.
func (c *Client) readUntilResponse(seq uint32, timeout time.Duration, onOutput OutputCallback, onProgress ProgressCallback) (result json.RawMessage, errMsg string, acked bool, err error) {
	buf := make([]byte, protocol.MaxDatagram)
	deadline := time.Now().Add(timeout)
	for {
		c.conn.SetReadDeadline(deadline)
		n, readErr := c.conn.Read(buf)
		if readErr != nil {
			return nil, "", acked, rerr.New(rerr.Timeout, "no response from agent")
		}
		env, decErr := protocol.Decode(append([]byte(nil), buf[:n]...))
		if decErr != nil || env.Seq != seq {
			continue
		}
		switch env.Type {
		case protocol.KindAck:
			acked = true
			deadline = time.Now().Add(timeout)
		case protocol.KindStream:
			deadline = time.Now().Add(timeout)
			switch env.StreamType {
			case protocol.StreamStdout, protocol.StreamStderr:
				if onOutput != nil {
					data, _ := protocol.DecodeStreamBytes(env.Data)
					onOutput(env.StreamType, data)
				}
			case protocol.StreamProgress:
				if onProgress != nil {
					onProgress(env.Data)
				}
			}
		case protocol.KindResponse:
			return env.Result, env.Error, acked, nil
		}
	}
}

// SendInput forwards interactive keystrokes for the attached session.
func (c *Client) SendInput(data []byte, port string) error {
	env := protocol.NewInput(c.nextSeq(), data, c.sid, port)
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}
