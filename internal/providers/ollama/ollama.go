// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package ollama adapts a local Ollama server to the chat provider contract using the
// official Ollama API client.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	"github.com/ollama/ollama/api"
)

// Name is the registry key of this provider.
const Name = "ollama"

// DefaultBaseURL is where Ollama listens out of the box.
const DefaultBaseURL = "http://localhost:11434"

// Provider streams chat completions from Ollama.
type Provider struct {
	baseURL string
	client  *api.Client
}

var _ providers.ChatProvider = (*Provider)(nil)

// New creates an Ollama provider for baseURL.
func New(baseURL string) (*Provider, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}

	// No overall client timeout: generations can legitimately stream for minutes.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Provider{
		baseURL: baseURL,
		client:  api.NewClient(u, &http.Client{Transport: transport}),
	}, nil
}

func (p *Provider) Name() string        { return Name }
func (p *Provider) DisplayName() string { return "Ollama" }

func (p *Provider) Capabilities() []model.Capability {
	return []model.Capability{model.CapabilityText}
}

// IsRunning sends Ollama's heartbeat request.
func (p *Provider) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, providers.ProbeTimeout)
	defer cancel()
	return p.client.Heartbeat(ctx) == nil
}

// DiscoverModels lists the locally pulled models.
func (p *Provider) DiscoverModels(ctx context.Context) []model.ModelDescriptor {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil
	}
	out := make([]model.ModelDescriptor, 0, len(resp.Models))
	for _, m := range resp.Models {
		desc := strings.TrimSpace(strings.Join(nonEmpty(m.Details.Family, m.Details.ParameterSize, m.Details.QuantizationLevel), " "))
		out = append(out, model.ModelDescriptor{
			Name:        m.Name,
			Provider:    Name,
			Capability:  model.CapabilityText,
			Description: desc,
		})
	}
	return out
}

// Chat streams a completion. The returned channel is closed after the final chunk.
func (p *Provider) Chat(ctx context.Context, modelName string, messages []model.ChatMessage, opts providers.ChatOptions) (<-chan providers.ChatChunk, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		options["num_predict"] = *opts.MaxTokens
	}

	stream := true
	req := &api.ChatRequest{
		Model:    modelName,
		Messages: apiMessages,
		Stream:   &stream,
		Options:  options,
	}

	out := make(chan providers.ChatChunk, 64)
	go func() {
		defer close(out)

		finished := false
		err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Done {
				finished = true
				out <- providers.ChatChunk{
					Content: resp.Message.Content,
					Done:    true,
					Usage: &model.Usage{
						PromptTokens:     resp.PromptEvalCount,
						CompletionTokens: resp.EvalCount,
					},
				}
				return nil
			}
			if resp.Message.Content != "" {
				out <- providers.ChatChunk{Content: resp.Message.Content}
			}
			return nil
		})
		if err != nil {
			out <- providers.ChatChunk{Done: true, Err: p.mapError(modelName, err)}
			return
		}
		if !finished {
			out <- providers.ChatChunk{Done: true}
		}
	}()
	return out, nil
}

// mapError turns Ollama API errors into provider errors.
func (p *Provider) mapError(modelName string, err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(se.ErrorMessage), "not found") {
			return providers.ModelNotFound("Ollama", modelName)
		}
		return fmt.Errorf("ollama: %s", se.Error())
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return providers.Unreachable("Ollama", err)
	}
	// Streamed error lines arrive as plain errors.
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "model") && strings.Contains(msg, "not found") {
		return providers.ModelNotFound("Ollama", modelName)
	}
	return err
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
