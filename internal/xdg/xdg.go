// Package xdg provides helpers to resolve XDG Base Directory paths for mindstudio-local.
// Configuration and state live under an application-specific subdirectory of the
// XDG base directories, falling back to the traditional ~/.config and ~/.local/state
// locations when the environment variables are not set.
package xdg

import (
	"os"
	"path/filepath"
)

// AppDir is the subdirectory name used under every XDG base directory.
const AppDir = "mindstudio-local"

// ConfigDir returns the XDG config directory for mindstudio-local.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/mindstudio-local when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for mindstudio-local.
// It falls back to ~/.local/state/mindstudio-local when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func ensure(envVar, homeRel string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	dir := filepath.Join(base, AppDir)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
