package session

import (
	"testing"

	"github.com/replx-dev/replx/internal/connection"
	"github.com/replx-dev/replx/internal/transport"
)

func newTestRegistry() *Registry {
	return New(func(port string) (*connection.Connection, error) {
		return connection.New(port, transport.NewFake(), "RP2350", nil), nil
	})
}

func TestSessionSetupPromotesForegroundAndDemotesPrevious(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.SessionSetup("sid-1", "COM3", true); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SessionSetup("sid-1", "COM4", true); err != nil {
		t.Fatal(err)
	}
	s := r.sessionFor("sid-1")
	if s.Foreground != "COM4" {
		t.Fatalf("expected COM4 foreground, got %q", s.Foreground)
	}
	if _, ok := s.Backgrounds["COM3"]; !ok {
		t.Fatal("expected COM3 demoted into backgrounds")
	}
	if _, ok := s.Backgrounds["COM4"]; ok {
		t.Fatal("foreground must not also appear in backgrounds (I5)")
	}
}

func TestSessionSetupForegroundNoopReportsExisting(t *testing.T) {
	r := newTestRegistry()
	r.SessionSetup("sid-1", "COM3", true)
	result, err := r.SessionSetup("sid-1", "COM3", true)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Existing {
		t.Fatal("expected existing=true for a no-op foreground re-setup")
	}
}

func TestSessionSwitchFGRequiresPriorMembership(t *testing.T) {
	r := newTestRegistry()
	r.SessionSetup("sid-1", "COM3", true)
	if err := r.SessionSwitchFG("sid-1", "COM9"); err == nil {
		t.Fatal("expected error switching to a port never set up for this session")
	}
}

func TestSessionSwitchFGSwapsForegroundAndBackground(t *testing.T) {
	r := newTestRegistry()
	r.SessionSetup("sid-1", "COM3", true)
	r.SessionSetup("sid-1", "COM4", false)

	if err := r.SessionSwitchFG("sid-1", "COM4"); err != nil {
		t.Fatal(err)
	}
	s := r.sessionFor("sid-1")
	if s.Foreground != "COM4" {
		t.Fatalf("expected COM4 foreground after switch, got %q", s.Foreground)
	}
	if _, ok := s.Backgrounds["COM3"]; !ok {
		t.Fatal("expected COM3 to become a background after the switch")
	}
}

func TestSessionDisconnectCascadesAndFreesConnection(t *testing.T) {
	r := newTestRegistry()
	r.SessionSetup("sid-1", "COM3", true)
	r.SessionSetup("sid-2", "COM3", false)

	freed, err := r.SessionDisconnect("COM3")
	if err != nil {
		t.Fatal(err)
	}
	if !freed {
		t.Fatal("expected the cascade to remove COM3 from both sessions and free the Connection in one call")
	}
	if r.portReferenced("COM3") {
		t.Fatal("expected COM3 to be unreferenced by any session after disconnect")
	}
	if _, err := r.Connection("COM3"); err == nil {
		t.Fatal("expected the Connection to be destroyed once unreferenced")
	}
}

func TestResolvePortPrefersExplicitThenForegroundThenDefault(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.ResolvePort("sid-1", "COM9"); err != nil {
		t.Fatal(err)
	}
	port, err := r.ResolvePort("sid-1", "COM9")
	if err != nil || port != "COM9" {
		t.Fatalf("expected explicit COM9, got %q err=%v", port, err)
	}

	r.SessionSetup("sid-2", "COM3", true)
	port, err = r.ResolvePort("sid-2", "")
	if err != nil || port != "COM3" {
		t.Fatalf("expected foreground COM3, got %q err=%v", port, err)
	}

	r.SetDefault("sid-3", "COM7", false, nil)
	port, err = r.ResolvePort("sid-3", "")
	if err != nil || port != "COM7" {
		t.Fatalf("expected session default COM7, got %q err=%v", port, err)
	}
}
