// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend provides interfaces and implementations for communicating with the
// MindStudio control plane. It defines the contract the tunnel uses to poll for work
// and report results, plus the authentication calls used by the auth commands.
package backend

import (
	"context"

	"mindstudio/local/internal/model"
)

// ControlPlane is what the dispatcher needs from the control plane.
type ControlPlane interface {
	// Poll long-polls for the next request for one of models. It returns (nil, nil)
	// when no work is available.
	Poll(ctx context.Context, models []string) (*model.GenerationRequest, error)
	// SendProgress is best-effort.
	SendProgress(ctx context.Context, requestID string, p model.Progress) error
	// SubmitResult is the terminal report of a request.
	SubmitResult(ctx context.Context, requestID string, r model.ResultReport) error
	// Disconnect tells the control plane this tunnel is going away.
	Disconnect(ctx context.Context) error
}

// API defines every backend operation the CLI depends on.
// Implementations may call real HTTP endpoints or provide mocks for tests.
type API interface {
	ControlPlane
	// RegisterModels announces the locally available models.
	RegisterModels(ctx context.Context, models []model.ModelDescriptor) error
	BeginDeviceLink(ctx context.Context) (authURL string, deviceID string, pollIntervalSeconds int, err error)
	// PollDeviceLink returns an empty key while authorization is pending.
	PollDeviceLink(ctx context.Context, deviceID string) (apiKey string, err error)
	// GetMe retrieves the account behind the API key.
	GetMe(ctx context.Context) (map[string]any, error)
}
