// Package config loads the agent daemon's own startup configuration:
// where to listen, how verbosely to log, and where to write logs. This is
// distinct from the workspace `.replx` port-map file (internal/workspace),
// which is a per-directory collaborator file, not daemon config.
//
// A user tier and a project tier are loaded independently and merged
// with project values taking precedence, a two-tier JSON-then-merge
// pattern.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is the daemon's resolved startup configuration.
type Config struct {
	AgentPortBase    int    `json:"agent_port_base,omitempty"`
	AgentPortCeiling int    `json:"agent_port_ceiling,omitempty"`
	LogLevel         string `json:"log_level,omitempty"`
	LogFile          string `json:"log_file,omitempty"`
}

const (
	defaultPortBase    = 7821
	defaultPortCeiling = 7871
	defaultLogLevel    = "info"
)

// projectConfigFile is the workspace-level daemon config file, named
// distinctly from the `.replx` port-map file so the two concerns never
// collide on one path.
const projectConfigFile = ".replxd.json"

type Manager struct {
	userConfig    *Config
	projectConfig *Config
	merged        *Config
}

func NewManager() *Manager {
	return &Manager{
		userConfig:    &Config{},
		projectConfig: &Config{},
		merged:        &Config{},
	}
}

// Load reads the user tier (userConfigDir/config.json) and the project
// tier (projectDir/.replxd.json), then merges with project taking
// precedence. Missing files are not an error; Config zero values fall back
// to defaults in mergeConfigs.
func (m *Manager) Load(userConfigDir, projectDir string) error {
	if err := m.loadConfig(filepath.Join(userConfigDir, "config.json"), m.userConfig); err != nil {
		return err
	}
	if err := m.loadConfig(filepath.Join(projectDir, projectConfigFile), m.projectConfig); err != nil {
		return err
	}
	m.mergeConfigs()
	return nil
}

func (m *Manager) loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, cfg)
}

func (m *Manager) mergeConfigs() {
	m.merged = &Config{
		AgentPortBase:    m.getIntValue(m.userConfig.AgentPortBase, m.projectConfig.AgentPortBase, defaultPortBase),
		AgentPortCeiling: m.getIntValue(m.userConfig.AgentPortCeiling, m.projectConfig.AgentPortCeiling, defaultPortCeiling),
		LogLevel:         m.getStringValue(m.userConfig.LogLevel, m.projectConfig.LogLevel, defaultLogLevel),
		LogFile:          m.getStringValue(m.userConfig.LogFile, m.projectConfig.LogFile, ""),
	}
}

func (m *Manager) getStringValue(user, project, defaultValue string) string {
	if project != "" {
		return project
	}
	if user != "" {
		return user
	}
	return defaultValue
}

func (m *Manager) getIntValue(user, project, defaultValue int) int {
	if project != 0 {
		return project
	}
	if user != 0 {
		return user
	}
	return defaultValue
}

func (m *Manager) Get() *Config { return m.merged }

// SaveUserConfig persists the user tier to config.json in userConfigDir.
func (m *Manager) SaveUserConfig(userConfigDir string) error {
	if err := os.MkdirAll(userConfigDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.userConfig, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(userConfigDir, "config.json"), data, 0o644)
}
