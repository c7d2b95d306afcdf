package replcodec

import (
	"bytes"
	"time"

	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/transport"
)

// streamReader accumulates bytes read from a Transport and supports
// reading up to a terminator sequence, mirroring repl_protocol.py's
// _read_ex: a streaming matcher with an idle-timeout fallback rather than
// a single fixed deadline, since output can legitimately arrive in bursts
// separated by silence (e.g. while the board computes).
type streamReader struct {
	t   transport.Transport
	buf bytes.Buffer
}

func newStreamReader(t transport.Transport) *streamReader {
	return &streamReader{t: t}
}

// readUntil reads until `ending` is found in the accumulated stream,
// feeding each newly read chunk to consume (if non-nil) as it arrives, and
// returns everything read including the terminator. idleTimeout is reset
// every time new bytes arrive; overall silence longer than idleTimeout
// (or, if that's zero, a minimum of 10s) yields rerr.Timeout.
func (r *streamReader) readUntil(ending []byte, idleTimeout time.Duration, consume func([]byte)) ([]byte, error) {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Second
	}
	deadline := time.Now().Add(idleTimeout)

	// Re-check bytes already buffered from a previous short read.
	if idx := bytes.Index(r.buf.Bytes(), ending); idx >= 0 {
		total := r.buf.Bytes()[:idx+len(ending)]
		rest := append([]byte{}, r.buf.Bytes()[idx+len(ending):]...)
		r.buf.Reset()
		r.buf.Write(rest)
		out := append([]byte{}, total...)
		return out, nil
	}

	for {
		if time.Now().After(deadline) {
			return nil, rerr.New(rerr.Timeout, "timed out waiting for device response")
		}
		chunk, err := r.t.Read(512)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		deadline = time.Now().Add(idleTimeout)
		r.buf.Write(chunk)
		if idx := bytes.Index(r.buf.Bytes(), ending); idx >= 0 {
			total := r.buf.Bytes()[:idx+len(ending)]
			rest := append([]byte{}, r.buf.Bytes()[idx+len(ending):]...)
			out := append([]byte{}, total...)
			r.buf.Reset()
			r.buf.Write(rest)
			if consume != nil {
				consume(chunk)
			}
			return out, nil
		}
		if consume != nil {
			consume(chunk)
		}
	}
}

// readByte reads exactly one byte, blocking (subject to idleTimeout).
func (r *streamReader) readByte(idleTimeout time.Duration) (byte, error) {
	out, err := r.readN(1, idleTimeout)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// readN reads exactly n bytes.
func (r *streamReader) readN(n int, idleTimeout time.Duration) ([]byte, error) {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Second
	}
	deadline := time.Now().Add(idleTimeout)
	for r.buf.Len() < n {
		if time.Now().After(deadline) {
			return nil, rerr.New(rerr.Timeout, "timed out waiting for device bytes")
		}
		chunk, err := r.t.Read(n - r.buf.Len())
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		deadline = time.Now().Add(idleTimeout)
		r.buf.Write(chunk)
	}
	out := make([]byte, n)
	r.buf.Read(out)
	return out, nil
}

// pushback returns unconsumed bytes to the front of the buffer.
func (r *streamReader) pushback(p []byte) {
	rest := append([]byte{}, r.buf.Bytes()...)
	r.buf.Reset()
	r.buf.Write(p)
	r.buf.Write(rest)
}
