// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrUnauthorized is returned when the control plane rejects the API key.
var ErrUnauthorized = errors.New("unauthorized")

// GetMe calls GET /auth/me with the API key.
// Results are cached in memory for 10 minutes. A failed request falls back to the
// cached value when there is one.
func (h *HTTP) GetMe(ctx context.Context) (map[string]any, error) {
	h.mu.Lock()
	cached, at := h.meCache, h.meCacheTime
	h.mu.Unlock()
	if cached != nil && time.Since(at) < 10*time.Minute {
		return cached, nil
	}

	req, err := h.newRequest(ctx, http.MethodGet, h.endpoints.Me, nil)
	if err != nil {
		return nil, err
	}
	var userData map[string]any
	status, err := h.do(h.client, req, "get-me", &userData)
	if err != nil {
		if status == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	h.mu.Lock()
	h.meCache = userData
	h.meCacheTime = time.Now()
	h.mu.Unlock()
	return userData, nil
}
