package deviceinfo

import "testing"

func TestNormalizeCoreTrailingSuffix(t *testing.T) {
	if got := NormalizeCore("RP2350B"); got != "RP2350" {
		t.Fatalf("got %q, want RP2350", got)
	}
}

func TestNormalizeCoreCompanionCollapse(t *testing.T) {
	for _, core := range []string{"ESP32P4C5", "ESP32P4C6"} {
		if got := NormalizeCore(core); got != "ESP32P4" {
			t.Fatalf("NormalizeCore(%q) = %q, want ESP32P4", core, got)
		}
	}
}

func TestNormalizeCoreMultiCoreSplit(t *testing.T) {
	if got := NormalizeCore("RP2350/ARM"); got != "RP2350" {
		t.Fatalf("got %q, want RP2350", got)
	}
}

func TestParseBannerSimple(t *testing.T) {
	banner := "MicroPython v1.24.1 on 2025-01-02; Generic Pico2 module with RP2350"
	info := ParseBanner(banner)
	if info.Version != "1.24.1" {
		t.Errorf("version = %q", info.Version)
	}
	if info.Core != "RP2350" {
		t.Errorf("core = %q", info.Core)
	}
	if info.Device != "Pico2" {
		t.Errorf("device = %q", info.Device)
	}
	if info.Manufacturer != "Generic" {
		t.Errorf("manufacturer = %q", info.Manufacturer)
	}
	if info.DeviceRootFS != "/" {
		t.Errorf("root fs = %q", info.DeviceRootFS)
	}
}

func TestParseBannerCompanionWifi(t *testing.T) {
	banner := "MicroPython v1.24.1 on 2025-01-02; Generic ESP32P4 module with WIFI module of external ESP32C6 with ESP32P4"
	info := ParseBanner(banner)
	if info.Core != "ESP32P4" {
		t.Errorf("core = %q, want ESP32P4", info.Core)
	}
	if info.Device != "ESP32P4" {
		t.Errorf("device = %q, want ESP32P4", info.Device)
	}
	if info.Manufacturer != "Generic with WIFI (ESP32C6)" {
		t.Errorf("manufacturer = %q", info.Manufacturer)
	}
}

func TestParseBannerUnknownDeviceFallsBackToCore(t *testing.T) {
	banner := "MicroPython v1.23.0 on 2024-11-11; Acme Corp with SomeWeirdBoard9"
	info := ParseBanner(banner)
	if info.Core != "SomeWeirdBoard9" {
		t.Errorf("core = %q", info.Core)
	}
	if info.Device != info.Core {
		t.Errorf("device should fall back to core, got %q vs %q", info.Device, info.Core)
	}
	if info.Manufacturer != "Acme Corp" {
		t.Errorf("manufacturer = %q", info.Manufacturer)
	}
}

func TestRootFSForFlashCores(t *testing.T) {
	if RootFSFor("EFR32MG") != "/flash" {
		t.Fatal("EFR32MG should be /flash")
	}
	if RootFSFor("RP2350") != "/" {
		t.Fatal("RP2350 should be /")
	}
}
