// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sdwebui adapts a Stable-Diffusion web UI server (the /sdapi/v1 REST API)
// to the image provider contract. A generation is a single blocking txt2img call;
// step progress is recovered by polling the progress endpoint while it runs.
package sdwebui

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Name is the registry key of this provider.
const Name = "sdwebui"

// DefaultBaseURL is where the web UI serves its API by default.
const DefaultBaseURL = "http://127.0.0.1:7860"

// Defaults applied when a request does not carry its own values.
type Defaults struct {
	Steps    int
	Width    int
	Height   int
	CFGScale float64
	Sampler  string
}

// Provider generates images through txt2img.
type Provider struct {
	baseURL      string
	defaults     Defaults
	client       *http.Client
	probe        *http.Client
	pollInterval time.Duration
}

var _ providers.ImageProvider = (*Provider)(nil)

// New creates a Stable-Diffusion web UI provider.
func New(baseURL string, defaults Defaults) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if defaults.Steps <= 0 {
		defaults.Steps = 20
	}
	if defaults.Width <= 0 {
		defaults.Width = 512
	}
	if defaults.Height <= 0 {
		defaults.Height = 512
	}
	if defaults.CFGScale <= 0 {
		defaults.CFGScale = 7
	}
	return &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaults:     defaults,
		client:       &http.Client{},
		probe:        &http.Client{Timeout: providers.ProbeTimeout},
		pollInterval: time.Second,
	}
}

func (p *Provider) Name() string        { return Name }
func (p *Provider) DisplayName() string { return "Stable Diffusion WebUI" }

func (p *Provider) Capabilities() []model.Capability {
	return []model.Capability{model.CapabilityImage}
}

// IsRunning probes the checkpoint list.
func (p *Provider) IsRunning(ctx context.Context) bool {
	return providers.ProbeHTTP(ctx, p.probe, p.baseURL, "/sdapi/v1/sd-models")
}

type sdModel struct {
	Title     string `json:"title"`
	ModelName string `json:"model_name"`
	Filename  string `json:"filename"`
}

// DiscoverModels lists the installed checkpoints.
func (p *Provider) DiscoverModels(ctx context.Context) []model.ModelDescriptor {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var models []sdModel
	if err := p.getJSON(ctx, "/sdapi/v1/sd-models", &models); err != nil {
		return nil
	}
	out := make([]model.ModelDescriptor, 0, len(models))
	for _, m := range models {
		name := m.ModelName
		if name == "" {
			name = m.Title
		}
		out = append(out, model.ModelDescriptor{
			Name:        name,
			Provider:    Name,
			Capability:  model.CapabilityImage,
			Description: m.Title,
		})
	}
	return out
}

type txt2imgRequest struct {
	Prompt           string         `json:"prompt"`
	NegativePrompt   string         `json:"negative_prompt,omitempty"`
	Steps            int            `json:"steps"`
	CFGScale         float64        `json:"cfg_scale"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	Seed             int64          `json:"seed"`
	SamplerName      string         `json:"sampler_name,omitempty"`
	OverrideSettings map[string]any `json:"override_settings,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

type progressResponse struct {
	Progress float64 `json:"progress"`
	State    struct {
		SamplingStep  int `json:"sampling_step"`
		SamplingSteps int `json:"sampling_steps"`
	} `json:"state"`
}

// GenerateImage runs txt2img and reports sampling steps while it runs.
func (p *Provider) GenerateImage(ctx context.Context, modelName string, opts providers.GenerateOptions, onProgress providers.ProgressFunc) (*model.ImageResult, error) {
	cfg := opts.Media
	seed := cfg.Int(-1, "seed")
	if seed < 0 {
		seed = rand.Int64N(1 << 32)
	}
	body := txt2imgRequest{
		Prompt:         opts.Prompt,
		NegativePrompt: cfg.String("", "negativePrompt", "negative_prompt"),
		Steps:          int(cfg.Int(int64(p.defaults.Steps), "steps")),
		CFGScale:       cfg.Float(p.defaults.CFGScale, "cfgScale", "cfg_scale", "cfg"),
		Width:          int(cfg.Int(int64(p.defaults.Width), "width")),
		Height:         int(cfg.Int(int64(p.defaults.Height), "height")),
		Seed:           seed,
		SamplerName:    cfg.String(p.defaults.Sampler, "sampler", "samplerName"),
		OverrideSettings: map[string]any{
			"sd_model_checkpoint": modelName,
		},
	}

	stopPolling := p.pollProgress(ctx, body.Steps, onProgress)
	resp, err := p.txt2img(ctx, modelName, body)
	stopPolling()
	if err != nil {
		return nil, err
	}

	if len(resp.Images) == 0 {
		return nil, providers.ErrNoArtifact
	}
	raw := resp.Images[0]
	if i := strings.Index(raw, ","); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if s, ok := seedFromInfo(resp.Info); ok {
		seed = s
	}
	return &model.ImageResult{
		ImageBytes: img,
		MimeType:   http.DetectContentType(img),
		Seed:       &seed,
	}, nil
}

func (p *Provider) txt2img(ctx context.Context, modelName string, body txt2imgRequest) (*txt2imgResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, providers.Unreachable("Stable Diffusion WebUI", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return nil, providers.ModelNotFound("Stable Diffusion WebUI", modelName)
		}
		return nil, fmt.Errorf("txt2img failed: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode txt2img response: %w", err)
	}
	return &out, nil
}

// pollProgress reports sampling progress until the returned stop function is called.
func (p *Provider) pollProgress(ctx context.Context, steps int, onProgress providers.ProgressFunc) func() {
	if onProgress == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		last := -1
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var pr progressResponse
				if err := p.getJSON(ctx, "/sdapi/v1/progress?skip_current_image=true", &pr); err != nil {
					continue
				}
				step, total := pr.State.SamplingStep, pr.State.SamplingSteps
				if total <= 0 {
					total = steps
					step = int(pr.Progress * float64(steps))
				}
				if step != last && step > 0 {
					last = step
					onProgress(providers.StepProgress{Step: step, TotalSteps: total})
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// seedFromInfo extracts the seed from the info JSON string of a txt2img response.
func seedFromInfo(info string) (int64, bool) {
	if info == "" {
		return 0, false
	}
	var parsed struct {
		Seed *int64 `json:"seed"`
	}
	if err := json.Unmarshal([]byte(info), &parsed); err != nil || parsed.Seed == nil {
		return 0, false
	}
	return *parsed.Seed, true
}
