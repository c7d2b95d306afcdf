package replcodec

import (
	"testing"

	"github.com/replx-dev/replx/internal/transport"
)

// scriptedRawPasteDevice feeds the fixed sequence of bytes a real board
// emits for the raw-REPL handshake plus a raw-paste window-supported exec
// on a fresh port.
func scriptedRawPasteDevice(t *testing.T, fake *transport.Fake, windowInc uint16) {
	t.Helper()
	fake.Feed(rawReplPrompt)
	low := byte(windowInc)
	high := byte(windowInc >> 8)
	fake.Feed([]byte{'R', 0x01, low, high})
	fake.Feed([]byte{ctrlD}) // compilation ack
	fake.Feed([]byte("3\r\n"))
	fake.Feed([]byte{ctrlD}) // stdout terminator
	fake.Feed([]byte{ctrlD}) // empty stderr + terminator
	fake.Feed([]byte(">"))
}

func TestExecuteRawPasteHappyPath(t *testing.T) {
	fake := transport.NewFake()
	scriptedRawPasteDevice(t, fake, 128)

	c := New(fake, "RP2350")
	stdout, stderr, err := c.Execute([]byte("print(1+2)"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(stdout) != "3\r\n" {
		t.Fatalf("stdout = %q", stdout)
	}
	if len(stderr) != 0 {
		t.Fatalf("stderr = %q, want empty", stderr)
	}
}

func TestExecuteRawPasteNeverExceedsWindow(t *testing.T) {
	fake := transport.NewFake()
	fake.Feed(rawReplPrompt)
	// window increment of 4 bytes; device never sends a flow-control byte,
	// so the codec must block waiting for one once the window (2x4=8) is
	// exhausted. We feed flow-control bytes lazily as the codec writes.
	fake.Feed([]byte{'R', 0x01, 4, 0})

	c := New(fake, "RP2350")
	payload := []byte("0123456789012345") // 16 bytes, window*2=8 initially

	done := make(chan struct{})
	go func() {
		// Drip-feed window increments and the terminal ack/stdout/stderr
		// sequence once the payload should have been fully consumed.
		for i := 0; i < 4; i++ {
			fake.Feed([]byte{0x01})
		}
		fake.Feed([]byte{ctrlD, ctrlD, ctrlD, '>'})
		close(done)
	}()

	stdout, _, err := c.Execute(payload, nil)
	<-done
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	_ = stdout
	sent := fake.WriteLog.Bytes()
	// The write log also contains the handshake control bytes; just check
	// the payload appears intact in order (flow control never drops data).
	if !containsSubslice(sent, payload) {
		t.Fatalf("payload not found intact in write log: %q", sent)
	}
}

func containsSubslice(haystack, needle []byte) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestExecuteLegacyFallbackOnRawPasteRefusal(t *testing.T) {
	fake := transport.NewFake()
	fake.Feed(rawReplPrompt)
	fake.Feed([]byte{'R', 0x00}) // refused
	// a refusal goes straight to the legacy send without re-entering raw;
	// these prompt bytes are skipped while waiting for "OK"
	fake.Feed(rawReplPrompt)
	fake.Feed([]byte("OK"))
	fake.Feed([]byte("3\r\n"))
	fake.Feed([]byte{ctrlD})
	fake.Feed([]byte{ctrlD})
	fake.Feed([]byte(">"))

	c := New(fake, "RP2350")
	stdout, _, err := c.Execute([]byte("print(1+2)"), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(stdout) != "3\r\n" {
		t.Fatalf("stdout = %q", stdout)
	}
	if c.rawPasteSupported == nil || *c.rawPasteSupported {
		t.Fatal("raw-paste should be cached as unsupported after refusal")
	}
}
