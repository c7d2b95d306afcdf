package workspace

import "testing"

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Default: "COM3",
		Ports: map[string]PortEntry{
			"COM3": {Version: "1.24.1", Core: "RP2350", Device: "Pico2", Manufacturer: "Raspberry Pi", AgentPort: 5005},
		},
	}
	if err := Save(dir, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Default != "COM3" {
		t.Fatalf("expected default COM3, got %q", got.Default)
	}
	entry, ok := got.Ports["COM3"]
	if !ok {
		t.Fatal("expected COM3 section")
	}
	if entry.Core != "RP2350" || entry.AgentPort != 5005 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Default != "" || len(cfg.Ports) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestSetDefaultPreservesExistingPorts(t *testing.T) {
	dir := t.TempDir()
	Save(dir, &Config{Default: "COM3", Ports: map[string]PortEntry{"COM3": {Core: "RP2350"}}})
	if err := SetDefault(dir, "COM4"); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Default != "COM4" {
		t.Fatalf("expected COM4, got %q", got.Default)
	}
	if _, ok := got.Ports["COM3"]; !ok {
		t.Fatal("expected COM3 section to survive the default change")
	}
}
