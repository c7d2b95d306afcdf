// Package deviceinfo parses the MicroPython friendly-REPL banner and
// normalizes the reported core name, grounded on the original
// utils/device_info.py (normalize_core, parse_device_banner,
// SUPPORT_CORE_DEVICE_TYPES, CORE_ROOT_FS).
package deviceinfo

import (
	"regexp"
	"sort"
	"strings"
)

// BoardInfo is populated exactly once per Connection lifetime (spec I4).
type BoardInfo struct {
	Version      string
	Core         string
	Device       string
	Manufacturer string
	DeviceRootFS string
}

// deviceRootFS mirrors CORE_ROOT_FS: most cores mount at "/", a small set
// mounts under "/flash".
var deviceRootFS = map[string]string{
	"EFR32MG":         "/flash",
	"MIMXRT1062DVJ6A": "/flash",
}

// RootFSFor returns the device root filesystem prefix for a normalized core.
func RootFSFor(core string) string {
	if fs, ok := deviceRootFS[core]; ok {
		return fs
	}
	return "/"
}

// knownDevices is the core-keyed set of device name suffixes used to split
// "<manufacturer> <device>" out of the banner's free-text prefix. Matching
// tries the longest candidate first so e.g. "ESP32-S3" wins over "ESP32".
var knownDevices = map[string][]string{
	"RP2350":          {"Pico2W", "Pico2"},
	"ESP32S3":         {"ESP32-S3", "ESP32S3"},
	"ESP32C5":         {"ESP32-C5", "ESP32C5"},
	"ESP32C6":         {"ESP32-C6", "ESP32C6"},
	"ESP32P4":         {"ESP32-P4", "ESP32P4"},
	"MIMXRT1062DVJ6A": {"Teensy4", "Teensy"},
	"EFR32MG":         {"xG28", "xG24"},
}

var versionRe = regexp.MustCompile(`v(\d+\.\d+(?:\.\d+)?)(?:-[\w.]+)?`)

// companionWifiRe matches banners with a companion Wi-Fi coprocessor, e.g.
// "; Generic ESP32P4 module with WIFI module of external ESP32C6 with ESP32P4"
var companionWifiRe = regexp.MustCompile(`;\s*(.+?)\s+with\s+(.+?)\s+module\s+of\s+external\s+(\w+)\s+with\s+(\w+)`)

// generalRe matches the common "; <prefix> with <device>" banner shape.
var generalRe = regexp.MustCompile(`;\s*(.+?)\s+with\s+(\S+)`)

// coreSuffixRe strips a trailing single alphabetic character that follows a
// digit, e.g. "RP2350B" -> "RP2350".
var coreSuffixRe = regexp.MustCompile(`^(.*\d)[A-Za-z]$`)

// NormalizeCore applies the multi-core split, companion-Wi-Fi collapse, and
// trailing-suffix-strip rules from normalize_core().
func NormalizeCore(core string) string {
	if i := strings.IndexByte(core, '/'); i >= 0 {
		core = core[:i]
	}
	switch core {
	case "ESP32P4C5", "ESP32P4C6":
		return "ESP32P4"
	}
	if m := coreSuffixRe.FindStringSubmatch(core); m != nil {
		return m[1]
	}
	return core
}

// ParseBanner extracts (version, core, device, manufacturer) from a
// friendly-REPL banner string, e.g.:
//
//	"MicroPython v1.24.1 on 2025-01-02; Generic Pico2 module with RP2350"
func ParseBanner(banner string) BoardInfo {
	info := BoardInfo{}

	if m := versionRe.FindStringSubmatch(banner); m != nil {
		info.Version = m[1]
	}

	if m := companionWifiRe.FindStringSubmatch(banner); m != nil {
		prefix, wifiName, companionCore, primaryCore := m[1], m[2], m[3], m[4]
		suffix := strings.TrimPrefix(companionCore, "ESP32")
		core := NormalizeCore(primaryCore + suffix)
		info.Core = core
		info.Device = core
		manufacturerPrefix := prefix
		if idx := strings.Index(strings.ToLower(prefix), strings.ToLower(primaryCore)); idx >= 0 {
			manufacturerPrefix = prefix[:idx]
		}
		info.Manufacturer = collapseManufacturer(manufacturerPrefix) + " with " + wifiName + " (" + companionCore + ")"
		info.DeviceRootFS = RootFSFor(core)
		return info
	}

	if m := generalRe.FindStringSubmatch(banner); m != nil {
		prefix, deviceRaw := m[1], m[2]
		core := NormalizeCore(firstWord(deviceRaw))
		device, manufacturer := matchDevice(core, prefix)
		info.Core = core
		info.Device = device
		info.Manufacturer = manufacturer
		info.DeviceRootFS = RootFSFor(core)
		return info
	}

	return info
}

// matchDevice finds the longest known device suffix of core present in
// prefix (case-insensitive); prefix minus that suffix becomes manufacturer.
// When nothing matches, device=core and manufacturer=prefix (collapsed).
func matchDevice(core, prefix string) (device, manufacturer string) {
	candidates := append([]string{}, knownDevices[core]...)
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	lowerPrefix := strings.ToLower(prefix)
	for _, cand := range candidates {
		idx := strings.Index(lowerPrefix, strings.ToLower(cand))
		if idx < 0 {
			continue
		}
		manufacturer = collapseManufacturer(prefix[:idx])
		return cand, manufacturer
	}
	return core, collapseManufacturer(prefix)
}

// collapseManufacturer implements the "Raspberry Pi"-prefixed special case
// and strips a trailing " module" token.
func collapseManufacturer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " module")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "raspberry pi") {
		return "Raspberry Pi"
	}
	return s
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
