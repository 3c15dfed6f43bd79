// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest resolves the control-plane base URL and endpoint paths for an environment.
package manifest

import "strings"

// Manifest is the endpoint table of one control-plane deployment.
type Manifest struct {
	Environment string
	BaseURL     string
	HTTP        HTTPEndpoints
}

// HTTPEndpoints contains REST API endpoint paths relative to BaseURL.
// Paths containing {id} are expanded per request.
type HTTPEndpoints struct {
	Poll           string // e.g., "/poll"
	Progress       string // e.g., "/requests/{id}/progress"
	Result         string // e.g., "/requests/{id}/result"
	RegisterModels string // e.g., "/models/register"
	Disconnect     string // e.g., "/disconnect"
	DeviceLink     string // e.g., "/auth/device"
	Token          string // e.g., "/auth/token"
	Me             string // e.g., "/auth/me"
}

// Expand substitutes the request id into an endpoint path.
func Expand(path, id string) string {
	return strings.ReplaceAll(path, "{id}", id)
}
