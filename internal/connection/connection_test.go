package connection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/replx-dev/replx/internal/rerr"
	"github.com/replx-dev/replx/internal/transport"
)

func newTestConnection(t *testing.T) (*Connection, *transport.Fake) {
	t.Helper()
	fake := transport.NewFake()
	c := New("/dev/ttyFAKE", fake, "RP2350", nil)
	t.Cleanup(c.Close)
	return c, fake
}

func TestExecuteRejectsUnknownCommand(t *testing.T) {
	c, _ := newTestConnection(t)
	_, err := c.Execute(context.Background(), "not_a_command", "sid-1", nil, nil)
	if !rerr.Is(err, rerr.ValidationError) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSecondConcurrentCommandIsBusy(t *testing.T) {
	c, _ := newTestConnection(t)
	c.mu.Lock()
	c.busy = BusyState{Kind: RunningCommand, Command: "exec", StartedAt: time.Now()}
	c.mu.Unlock()

	_, err := c.Execute(context.Background(), "ls", "sid-2", nil, nil)
	if !rerr.Is(err, rerr.Busy) {
		t.Fatalf("expected Busy, got %v", err)
	}
}

func TestDetachedRunningOnlyAllowsDetachedAllowSet(t *testing.T) {
	c, _ := newTestConnection(t)
	c.setDetached()

	if _, err := c.Execute(context.Background(), "ls", "sid-1", nil, nil); !rerr.Is(err, rerr.Busy) {
		t.Fatalf("expected ls to be rejected while detached, got %v", err)
	}
	if _, err := c.Execute(context.Background(), "ping", "sid-1", nil, nil); err != nil {
		t.Fatalf("expected ping (in detachedAllow) to be allowed, got %v", err)
	}
	if _, err := c.Execute(context.Background(), "status", "sid-1", nil, nil); err != nil {
		t.Fatalf("expected status (in detachedAllow) to be allowed, got %v", err)
	}
}

func TestReplAttachedBlocksOtherSessionsExceptReadOnlyAndExit(t *testing.T) {
	c, _ := newTestConnection(t)
	c.setReplAttached("owner-sid")

	if _, err := c.Execute(context.Background(), "repl_write", "other-sid", json.RawMessage(`{"data":"x"}`), nil); !rerr.Is(err, rerr.Busy) {
		t.Fatalf("expected repl_write from another session to be rejected, got %v", err)
	}
	if _, err := c.Execute(context.Background(), "mkdir", "other-sid", json.RawMessage(`{"path":"/x"}`), nil); !rerr.Is(err, rerr.Busy) {
		t.Fatalf("expected a mutating command from another session to be rejected, got %v", err)
	}
	if _, err := c.Execute(context.Background(), "ping", "other-sid", nil, nil); err != nil {
		t.Fatalf("expected a read-only command from another session to be allowed, got %v", err)
	}
}

func TestRunDetachReturnsImmediatelyAndMarksDetachedRunning(t *testing.T) {
	c, _ := newTestConnection(t)

	result, err := c.Execute(context.Background(), "run", "sid-1", json.RawMessage(`{"code":"1+1","detach":true}`), nil)
	if err != nil {
		t.Fatalf("unexpected error starting detached run: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["started"] != true {
		t.Fatalf("expected started=true, got %#v", result)
	}
	if c.Busy().Kind != DetachedRunning {
		t.Fatalf("expected DetachedRunning immediately after starting, got %v", c.Busy().Kind)
	}
	// run_stop is in the detached-allow set and must still be reachable.
	if _, err := c.Execute(context.Background(), "run_stop", "sid-1", nil, nil); err != nil {
		t.Fatalf("expected run_stop to be allowed while detached, got %v", err)
	}
}
