// Package xdg provides XDG Base Directory paths for resetgate.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "resetgate"

// ConfigDir returns the XDG config directory for resetgate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the path of the default configuration file,
// used when no --config flag is given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
