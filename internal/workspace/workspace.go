// Package workspace reads and writes the `.replx` workspace configuration
// file: an INI-like document living under the workspace's `.vscode`
// directory, sections keyed by port with a `[default]` section naming the
// workspace default port. The interface-contract description leaves the
// exact dialect unspecified, so this writes the file with a
// temp-file-then-rename save and parses this INI dialect by hand,
// since no INI-parsing library appears anywhere in the retrieved example
// pack — see DESIGN.md for why this one corner stays hand-rolled.
package workspace

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// PortEntry is one `[<port>]` section's fields.
type PortEntry struct {
	Version      string
	Core         string
	Device       string
	Manufacturer string
	AgentPort    int
}

// Config is the parsed contents of a .replx file.
type Config struct {
	Default string
	Ports   map[string]PortEntry
}

func empty() *Config { return &Config{Ports: make(map[string]PortEntry)} }

// Dir returns the `.vscode` directory the `.replx` file lives under,
// relative to workspaceRoot.
func Dir(workspaceRoot string) string { return filepath.Join(workspaceRoot, ".vscode") }

// Path returns the full path to the `.replx` file for workspaceRoot.
func Path(workspaceRoot string) string { return filepath.Join(Dir(workspaceRoot), ".replx") }

// Load reads and parses the `.replx` file, returning an empty Config (not
// an error) if it does not yet exist.
func Load(workspaceRoot string) (*Config, error) {
	path := Path(workspaceRoot)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(f *os.File) (*Config, error) {
	cfg := empty()
	scanner := bufio.NewScanner(f)
	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			if section != "default" {
				if _, ok := cfg.Ports[section]; !ok {
					cfg.Ports[section] = PortEntry{}
				}
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if section == "default" {
			if key == "port" {
				cfg.Default = value
			}
			continue
		}
		entry := cfg.Ports[section]
		switch key {
		case "version":
			entry.Version = value
		case "core":
			entry.Core = value
		case "device":
			entry.Device = value
		case "manufacturer":
			entry.Manufacturer = value
		case "agent_port":
			fmt.Sscanf(value, "%d", &entry.AgentPort)
		}
		cfg.Ports[section] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg atomically via temp-file-then-rename.
func Save(workspaceRoot string, cfg *Config) error {
	dir := Dir(workspaceRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	var b strings.Builder
	if cfg.Default != "" {
		fmt.Fprintf(&b, "[default]\nport = %s\n\n", cfg.Default)
	}
	ports := make([]string, 0, len(cfg.Ports))
	for p := range cfg.Ports {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	for _, p := range ports {
		e := cfg.Ports[p]
		fmt.Fprintf(&b, "[%s]\nversion = %s\ncore = %s\ndevice = %s\nmanufacturer = %s\nagent_port = %d\n\n",
			p, e.Version, e.Core, e.Device, e.Manufacturer, e.AgentPort)
	}

	path := Path(workspaceRoot)
	tmp, err := os.CreateTemp(dir, ".replx-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// SetDefault atomically updates just the default-port field.
func SetDefault(workspaceRoot, port string) error {
	cfg, err := Load(workspaceRoot)
	if err != nil {
		return err
	}
	cfg.Default = port
	return Save(workspaceRoot, cfg)
}

// Watcher notifies callers when the `.replx` file changes on disk, so a
// long-lived agent can pick up client-side edits (e.g. a new default)
// without a restart.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher starts watching workspaceRoot's `.vscode` directory.
func NewWatcher(workspaceRoot string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := Dir(workspaceRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw}, nil
}

// Events yields every fsnotify event in the watched `.vscode` directory,
// unfiltered; a save of the `.replx` file shows up as events on its temp
// file and a rename onto `.replx`.
func (w *Watcher) Events() <-chan fsnotify.Event { return w.fsw.Events }
func (w *Watcher) Errors() <-chan error          { return w.fsw.Errors }
func (w *Watcher) Close() error                  { return w.fsw.Close() }
