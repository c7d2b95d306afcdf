package config

import (
	"os"
	"path/filepath"
)

// UserConfigDir returns the per-user directory for daemon startup config
// and agent logs (~/.replx).
func UserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".replx"), nil
}

// WorkspaceDir walks up from the current directory looking for an existing
// .replx workspace config, falling back to a .git root, then to cwd itself.
func WorkspaceDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".vscode", ".replx")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

// EnsureDirs creates the user config directory if absent.
func EnsureDirs(userConfigDir string) error {
	return os.MkdirAll(userConfigDir, 0o755)
}
