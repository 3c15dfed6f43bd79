// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"mindstudio/local/internal/manifest"
	"mindstudio/local/internal/model"
)

// Poll calls GET /poll?models=... and returns the next request, or nil on 204.
func (h *HTTP) Poll(ctx context.Context, models []string) (*model.GenerationRequest, error) {
	q := url.Values{}
	q.Set("models", strings.Join(models, ","))
	req, err := h.newRequest(ctx, http.MethodGet, h.endpoints.Poll+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Request *model.GenerationRequest `json:"request"`
	}
	status, err := h.do(h.pollClient, req, "poll", &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || out.Request == nil || out.Request.ID == "" {
		return nil, nil
	}
	return out.Request, nil
}

// SendProgress calls POST /requests/{id}/progress.
func (h *HTTP) SendProgress(ctx context.Context, requestID string, p model.Progress) error {
	req, err := h.newRequest(ctx, http.MethodPost, manifest.Expand(h.endpoints.Progress, url.PathEscape(requestID)), p)
	if err != nil {
		return err
	}
	_, err = h.do(h.client, req, "progress", nil)
	return err
}

// SubmitResult calls POST /requests/{id}/result.
func (h *HTTP) SubmitResult(ctx context.Context, requestID string, r model.ResultReport) error {
	req, err := h.newRequest(ctx, http.MethodPost, manifest.Expand(h.endpoints.Result, url.PathEscape(requestID)), r)
	if err != nil {
		return err
	}
	_, err = h.do(h.client, req, "result", nil)
	return err
}

// Disconnect calls POST /disconnect.
func (h *HTTP) Disconnect(ctx context.Context) error {
	req, err := h.newRequest(ctx, http.MethodPost, h.endpoints.Disconnect, nil)
	if err != nil {
		return err
	}
	_, err = h.do(h.client, req, "disconnect", nil)
	return err
}

type registeredModel struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Type     string `json:"type"`
}

// RegisterModels calls POST /models/register with the discovered models.
func (h *HTTP) RegisterModels(ctx context.Context, models []model.ModelDescriptor) error {
	body := struct {
		Models []registeredModel `json:"models"`
	}{Models: make([]registeredModel, 0, len(models))}
	for _, m := range models {
		body.Models = append(body.Models, registeredModel{Name: m.Name, Provider: m.Provider, Type: string(m.Capability)})
	}

	req, err := h.newRequest(ctx, http.MethodPost, h.endpoints.RegisterModels, body)
	if err != nil {
		return err
	}
	_, err = h.do(h.client, req, "register models", nil)
	return err
}
