// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package lmstudio adapts LM Studio's OpenAI-compatible local server to the chat
// provider contract using the OpenAI Go SDK.
package lmstudio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// Name is the registry key of this provider.
const Name = "lmstudio"

// DefaultBaseURL is LM Studio's default OpenAI-compatible endpoint.
const DefaultBaseURL = "http://localhost:1234/v1"

// Provider streams chat completions from LM Studio.
type Provider struct {
	baseURL string
	client  openai.Client
	probe   *http.Client
}

var _ providers.ChatProvider = (*Provider)(nil)

// New creates an LM Studio provider. LM Studio ignores the API key but the SDK
// requires one to be set.
func New(baseURL string) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		baseURL: baseURL,
		client: openai.NewClient(
			option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
			option.WithAPIKey("lm-studio"),
			option.WithMaxRetries(0),
		),
		probe: &http.Client{Timeout: providers.ProbeTimeout},
	}
}

func (p *Provider) Name() string        { return Name }
func (p *Provider) DisplayName() string { return "LM Studio" }

func (p *Provider) Capabilities() []model.Capability {
	return []model.Capability{model.CapabilityText}
}

// IsRunning probes the models endpoint.
func (p *Provider) IsRunning(ctx context.Context) bool {
	return providers.ProbeHTTP(ctx, p.probe, p.baseURL, "models")
}

// DiscoverModels lists loaded and downloaded models, skipping embedding models.
func (p *Provider) DiscoverModels(ctx context.Context) []model.ModelDescriptor {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	page, err := p.client.Models.List(ctx)
	if err != nil || page == nil {
		return nil
	}
	var out []model.ModelDescriptor
	for _, m := range page.Data {
		if strings.Contains(strings.ToLower(m.ID), "embed") {
			continue
		}
		out = append(out, model.ModelDescriptor{
			Name:       m.ID,
			Provider:   Name,
			Capability: model.CapabilityText,
		})
	}
	return out
}

// Chat streams a completion over server-sent events.
func (p *Provider) Chat(ctx context.Context, modelName string, messages []model.ChatMessage, opts providers.ChatOptions) (<-chan providers.ChatChunk, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
	}

	out := make(chan providers.ChatChunk, 64)
	go func() {
		defer close(out)

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var usage *model.Usage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
				usage = &model.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
				}
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					out <- providers.ChatChunk{Content: choice.Delta.Content}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- providers.ChatChunk{Done: true, Err: mapError(modelName, err)}
			return
		}
		out <- providers.ChatChunk{Done: true, Usage: usage}
	}()
	return out, nil
}

func convertMessages(messages []model.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func mapError(modelName string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return providers.ModelNotFound("LM Studio", modelName)
		}
		return fmt.Errorf("lm studio returned %d: %w", apiErr.StatusCode, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return providers.Unreachable("LM Studio", err)
	}
	return err
}
