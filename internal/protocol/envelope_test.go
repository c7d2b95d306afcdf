package protocol

import (
	"encoding/json"
	"testing"

	"github.com/replx-dev/replx/internal/rerr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"code": "print(1+2)"})
	cases := []Envelope{
		NewRequest(1, "exec", args, "sid-1", "COM3"),
		NewResponse(1, json.RawMessage(`{"output":"3\r\n"}`), ""),
		NewResponse(2, nil, "Busy: connection is busy"),
		NewAck(3),
		NewStream(1, StreamStdout, StreamBytes([]byte("3\r\n"))),
		NewStream(1, StreamProgress, StreamProgressData(map[string]any{"current": 10, "total": 100})),
		NewInput(4, []byte{0x03}, "sid-1", "COM3"),
	}

	for _, env := range cases {
		encoded, err := Encode(env)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", env, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.Seq != env.Seq || decoded.Type != env.Type || decoded.Command != env.Command {
			t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, env)
		}
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := []byte("XXXX\x01\x00\x00\x00\x00")
	_, err := Decode(buf)
	if !rerr.Is(err, rerr.ProtocolError) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	env := NewAck(7)
	buf, _ := Encode(env)
	truncated := buf[:len(buf)-2]
	_, err := Decode(truncated)
	if !rerr.Is(err, rerr.ProtocolError) {
		t.Fatalf("expected ProtocolError on truncated frame, got %v", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxPayload+1)
	env := NewStream(1, StreamStdout, StreamBytes(big))
	_, err := Encode(env)
	if !rerr.Is(err, rerr.ValidationError) {
		t.Fatalf("expected ValidationError for oversized payload, got %v", err)
	}
}

func TestStreamBytesRoundTrip(t *testing.T) {
	want := []byte("hello\x04world")
	data := StreamBytes(want)
	got, err := DecodeStreamBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}
