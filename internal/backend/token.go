// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"net/http"
	"strings"
)

// parseBearerToken extracts token from a value like "Bearer <token>" case-insensitively.
// Returns the token string without the "Bearer " prefix, or empty string if invalid format.
func parseBearerToken(value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 7 {
		return ""
	}
	if strings.EqualFold(v[0:6], "bearer") {
		if rest := strings.TrimSpace(v[6:]); rest != "" {
			return rest
		}
	}
	return ""
}

// findBearerTokenInHeaders looks for a Bearer token in the Authorization header.
func findBearerTokenInHeaders(h http.Header) string {
	for _, v := range h.Values("Authorization") {
		if t := parseBearerToken(v); t != "" {
			return t
		}
	}
	return ""
}
