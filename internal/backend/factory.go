// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"strings"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/manifest"
)

// New creates a backend API implementation for the manifest's deployment.
// apiKey may be empty for the device-link calls.
func New(m *manifest.Manifest, apiKey string) *HTTP {
	return newHTTP(m.BaseURL, m.HTTP, apiKey)
}

// NewControlPlane creates the client the tunnel polls through. A missing API key is a
// configuration error.
func NewControlPlane(m *manifest.Manifest, apiKey string) (*HTTP, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperrors.New(apperrors.Config,
			"no API key configured; run 'mindstudio-local auth login' or set MINDSTUDIO_API_KEY")
	}
	return New(m, apiKey), nil
}
