// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package providers

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ProbeTimeout bounds every reachability probe.
const ProbeTimeout = 3 * time.Second

// ProbeHTTP issues a lightweight GET and reports whether the backend answered with a
// non-5xx status. Network errors report false.
func ProbeHTTP(ctx context.Context, client *http.Client, baseURL, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, JoinURL(baseURL, path), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// JoinURL joins a base URL and a path with exactly one slash between them.
func JoinURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
