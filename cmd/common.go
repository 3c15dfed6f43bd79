// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"mindstudio/local/internal/auth"
	"mindstudio/local/internal/config"
	"mindstudio/local/internal/logging"
	"mindstudio/local/internal/manifest"
	"mindstudio/local/internal/registry"

	"github.com/pterm/pterm"
)

// loadConfig reads the config file, .env and the environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *pterm.Logger {
	return logging.New(cfg.LogLevel)
}

func newManifest(cfg config.Config) (*manifest.Manifest, error) {
	return manifest.For(cfg.Environment, cfg.APIBaseURL)
}

func newRegistry(cfg config.Config) (*registry.Registry, error) {
	ps, err := registry.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return registry.New(ps...), nil
}

// newAuthService opens the keychain when available. Without one only
// MINDSTUDIO_API_KEY can authenticate.
func newAuthService(m *manifest.Manifest, log *pterm.Logger) *auth.Service {
	store, err := auth.OpenStore()
	if err != nil {
		log.Debug("Keychain unavailable", log.Args("error", err.Error()))
		return auth.NewService(m, nil)
	}
	return auth.NewService(m, store)
}
