package config

import (
	"os"
	"path/filepath"
)

// DataDir returns the directory holding the transaction log.
//
// Resolution order:
//   - $SCANLOGD_DATA_DIR
//   - $XDG_DATA_HOME/scanlogd
//   - ~/.local/share/scanlogd
func DataDir() string {
	if envDir := os.Getenv("SCANLOGD_DATA_DIR"); envDir != "" {
		return envDir
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "scanlogd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "scanlogd")
}

// ConfigDir returns the directory searched for config files.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "scanlogd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "scanlogd")
}

// LogDir returns the diagnostic log directory.
func LogDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "scanlogd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "scanlogd")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if found := FindConfigFile(); found != "" {
		return found
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats returns the config file names tried, in order.
func SupportedConfigFormats() []string {
	return []string{"config.toml", "config.yaml", "config.yml", "config.json"}
}

// FindConfigFile returns the first existing config file in ConfigDir, or "".
func FindConfigFile() string {
	dir := ConfigDir()
	for _, name := range SupportedConfigFormats() {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
