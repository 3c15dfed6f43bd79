// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package providers defines the contract every local inference backend adapter
// implements, plus the helpers the adapters share.
//
// A Provider is a configuration-time singleton: it is created once at process start
// from static configuration and never carries request-scoped state. What it can do is
// expressed by which of the capability interfaces (ChatProvider, ImageProvider,
// VideoProvider) it also implements; callers route with a type switch instead of
// probing for methods at runtime.
package providers

import (
	"context"

	"mindstudio/local/internal/model"
)

// Provider is implemented by every backend adapter.
type Provider interface {
	// Name is the stable key used in registration and routing.
	Name() string
	// DisplayName is shown to the user.
	DisplayName() string
	// Capabilities lists what the provider can produce.
	Capabilities() []model.Capability
	// IsRunning is a fast, side-effect-free reachability probe. It never fails;
	// an unreachable backend reports false.
	IsRunning(ctx context.Context) bool
	// DiscoverModels enumerates the models or workflows available locally.
	// Transport errors yield an empty list.
	DiscoverModels(ctx context.Context) []model.ModelDescriptor
}

// ChatOptions are the optional sampling knobs of a chat request.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   *int
}

// ChatChunk is one element of a chat stream. The last element always has Done set,
// even when Content is empty. Err is set on the last element when the stream failed.
type ChatChunk struct {
	Content string
	Done    bool
	Usage   *model.Usage
	Err     error
}

// ChatProvider produces text incrementally.
type ChatProvider interface {
	Provider
	Chat(ctx context.Context, modelName string, messages []model.ChatMessage, opts ChatOptions) (<-chan ChatChunk, error)
}

// StepProgress is reported by image and video adapters while a job runs.
type StepProgress struct {
	Step        int
	TotalSteps  int
	CurrentNode string
}

// ProgressFunc receives step progress. It may be called zero or more times.
type ProgressFunc func(StepProgress)

// GenerateOptions carries the prompt and the free-form request config.
type GenerateOptions struct {
	Prompt string
	Media  model.MediaPayload
}

// ImageProvider produces a single image per call.
type ImageProvider interface {
	Provider
	GenerateImage(ctx context.Context, modelName string, opts GenerateOptions, onProgress ProgressFunc) (*model.ImageResult, error)
}

// VideoProvider produces a single video per call.
type VideoProvider interface {
	Provider
	GenerateVideo(ctx context.Context, modelName string, opts GenerateOptions, onProgress ProgressFunc) (*model.VideoResult, error)
}

// Supports reports whether p declares the capability.
func Supports(p Provider, c model.Capability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// Status is the reachability of one provider at a point in time.
type Status struct {
	Provider Provider
	Running  bool
}
