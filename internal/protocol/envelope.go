// Package protocol implements the RPLX wire envelope shared by the agent
// server and agent client: a fixed 9-byte header (magic, version, length)
// followed by a JSON-encoded RequestEnvelope. Grounded on the original
// cli/agent/protocol.py AgentProtocol class: same magic, same header
// layout, same envelope kinds and stream sub-types.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/replx-dev/replx/internal/rerr"
)

const (
	Magic       = "RPLX"
	Version     = 1
	HeaderLen   = 4 + 1 + 4 // magic + version + length
	MaxPayload  = 32 * 1024
	MaxDatagram = 60 * 1024
)

// Kind is the envelope's "type" discriminant.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindAck      Kind = "ack"
	KindStream   Kind = "stream"
	KindInput    Kind = "input"
)

// StreamType distinguishes the three kinds of streamed data.
type StreamType string

const (
	StreamStdout   StreamType = "stdout"
	StreamStderr   StreamType = "stderr"
	StreamProgress StreamType = "progress"
)

// Envelope is the JSON payload inside the wire frame. Only the fields
// relevant to Kind are populated; the rest are left at zero value, same
// laxness as the Python original's single dict-shaped message.
type Envelope struct {
	Seq        uint32          `json:"seq"`
	Type       Kind            `json:"type"`
	Command    string          `json:"command,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	SID        string          `json:"sid,omitempty"`
	Port       string          `json:"port,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StreamType StreamType      `json:"stream_type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Encode frames env as magic|version|length|json.
func Encode(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if len(payload) > MaxPayload {
		return nil, rerr.New(rerr.ValidationError, "payload too large")
	}
	buf := make([]byte, HeaderLen+len(payload))
	copy(buf[0:4], Magic)
	buf[4] = Version
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(payload)))
	copy(buf[9:], payload)
	return buf, nil
}

// Decode parses a wire frame back into an Envelope. A malformed magic,
// version, or truncated length is a ProtocolError: the caller must drop
// the datagram without responding, per the agent server's framing rule.
func Decode(buf []byte) (Envelope, error) {
	var env Envelope
	if len(buf) < HeaderLen {
		return env, rerr.New(rerr.ProtocolError, "frame shorter than header")
	}
	if string(buf[0:4]) != Magic {
		return env, rerr.New(rerr.ProtocolError, "bad magic")
	}
	if buf[4] != Version {
		return env, rerr.New(rerr.ProtocolError, fmt.Sprintf("unsupported version %d", buf[4]))
	}
	length := binary.BigEndian.Uint32(buf[5:9])
	if uint32(len(buf)-HeaderLen) != length {
		return env, rerr.New(rerr.ProtocolError, "truncated frame")
	}
	if err := json.Unmarshal(buf[HeaderLen:], &env); err != nil {
		return env, rerr.New(rerr.ProtocolError, "invalid JSON payload")
	}
	if length > MaxPayload {
		// env.Seq is populated above so the caller can still address a
		// "payload too large" response back to the right in-flight request.
		return env, rerr.New(rerr.ValidationError, "payload too large")
	}
	return env, nil
}

// NewRequest builds a request envelope. args is marshaled by the caller.
func NewRequest(seq uint32, command string, args json.RawMessage, sid, port string) Envelope {
	return Envelope{Seq: seq, Type: KindRequest, Command: command, Args: args, SID: sid, Port: port}
}

func NewResponse(seq uint32, result json.RawMessage, errMsg string) Envelope {
	return Envelope{Seq: seq, Type: KindResponse, Result: result, Error: errMsg}
}

func NewAck(seq uint32) Envelope {
	return Envelope{Seq: seq, Type: KindAck}
}

// NewStream builds a stdout/stderr stream envelope; data is base64-encoded
// by json.Marshal automatically since Go encodes []byte as base64 — callers
// pass raw bytes wrapped via StreamBytes.
func NewStream(seq uint32, streamType StreamType, data json.RawMessage) Envelope {
	return Envelope{Seq: seq, Type: KindStream, StreamType: streamType, Data: data}
}

// StreamBytes marshals raw output bytes the same way MarshalJSON would
// base64-encode a []byte, producing a quoted base64 string usable as Data.
func StreamBytes(b []byte) json.RawMessage {
	encoded, _ := json.Marshal(b) // []byte marshals to a base64 JSON string
	return encoded
}

// StreamProgressData marshals a structured progress object into Data.
func StreamProgressData(v any) json.RawMessage {
	encoded, _ := json.Marshal(v)
	return encoded
}

func NewInput(seq uint32, data []byte, sid, port string) Envelope {
	return Envelope{Seq: seq, Type: KindInput, Data: StreamBytes(data), SID: sid, Port: port}
}

// DecodeStreamBytes reverses StreamBytes: unmarshals a base64 JSON string
// back into raw bytes.
func DecodeStreamBytes(data json.RawMessage) ([]byte, error) {
	var b []byte
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode stream data: %w", err)
	}
	return b, nil
}
