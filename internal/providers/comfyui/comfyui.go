// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package comfyui adapts a ComfyUI server to the image and video provider contracts.
//
// Models are workflow templates: API-format graphs stored as <name>.json in a
// workflows directory. A request may also carry its own graph in config.workflow,
// which takes precedence over the template. Placeholders such as {{prompt}} and
// {{seed}} are substituted before the graph is submitted to the Engine.
package comfyui

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Name is the registry key of this provider.
const Name = "comfyui"

// DefaultBaseURL is where ComfyUI listens by default.
const DefaultBaseURL = "http://127.0.0.1:8188"

// Provider runs workflow templates on a ComfyUI server.
type Provider struct {
	baseURL      string
	workflowsDir string
	engine       *Engine
	probe        *http.Client
}

var (
	_ providers.ImageProvider = (*Provider)(nil)
	_ providers.VideoProvider = (*Provider)(nil)
)

// New creates a ComfyUI provider. timeout bounds each job; zero uses DefaultTimeout.
func New(baseURL, workflowsDir string, timeout time.Duration) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Provider{
		baseURL:      baseURL,
		workflowsDir: workflowsDir,
		engine:       NewEngine(baseURL, timeout),
		probe:        &http.Client{Timeout: providers.ProbeTimeout},
	}
}

func (p *Provider) Name() string        { return Name }
func (p *Provider) DisplayName() string { return "ComfyUI" }

func (p *Provider) Capabilities() []model.Capability {
	return []model.Capability{model.CapabilityImage, model.CapabilityVideo}
}

// IsRunning probes the system stats endpoint.
func (p *Provider) IsRunning(ctx context.Context) bool {
	return providers.ProbeHTTP(ctx, p.probe, p.baseURL, "/system_stats")
}

// DiscoverModels lists the workflow templates. Reachability of the server is not
// required to list them; the registry only asks running providers.
func (p *Provider) DiscoverModels(ctx context.Context) []model.ModelDescriptor {
	workflows, _ := LoadWorkflows(p.workflowsDir)
	out := make([]model.ModelDescriptor, 0, len(workflows))
	for _, wf := range workflows {
		out = append(out, model.ModelDescriptor{
			Name:        wf.Name,
			Provider:    Name,
			Capability:  wf.Capability,
			Description: "workflow " + filepath.Base(wf.Path),
		})
	}
	return out
}

// GenerateImage runs the workflow and returns its still output.
func (p *Provider) GenerateImage(ctx context.Context, modelName string, opts providers.GenerateOptions, onProgress providers.ProgressFunc) (*model.ImageResult, error) {
	graph, params, err := p.prepare(modelName, opts)
	if err != nil {
		return nil, err
	}
	art, err := p.engine.Execute(ctx, graph, onProgress)
	if err != nil {
		return nil, err
	}
	seed := params.Seed
	return &model.ImageResult{
		ImageBytes: art.Data,
		MimeType:   art.MimeType,
		Seed:       &seed,
	}, nil
}

// GenerateVideo runs the workflow and returns its animated output.
func (p *Provider) GenerateVideo(ctx context.Context, modelName string, opts providers.GenerateOptions, onProgress providers.ProgressFunc) (*model.VideoResult, error) {
	graph, params, err := p.prepare(modelName, opts)
	if err != nil {
		return nil, err
	}
	art, err := p.engine.Execute(ctx, graph, onProgress)
	if err != nil {
		return nil, err
	}

	frames, fps := float64(params.Frames), params.FPS
	if !opts.Media.Has("frames", "frameCount", "numFrames", "length") {
		if n, ok := graphNumber(graph, "length", "frame_count", "num_frames", "video_frames"); ok && n > 0 {
			frames = n
		}
	}
	if !opts.Media.Has("fps", "frameRate", "frame_rate") {
		if n, ok := graphNumber(graph, "frame_rate", "fps"); ok && n > 0 {
			fps = n
		}
	}
	var duration float64
	if fps > 0 {
		duration = frames / fps
	}

	seed := params.Seed
	return &model.VideoResult{
		VideoBytes:      art.Data,
		MimeType:        art.MimeType,
		DurationSeconds: duration,
		FPS:             fps,
		Seed:            &seed,
	}, nil
}

// prepare resolves the graph for a request and substitutes its placeholders.
func (p *Provider) prepare(modelName string, opts providers.GenerateOptions) (map[string]any, Params, error) {
	media := opts.Media
	if media.Prompt == "" {
		media.Prompt = opts.Prompt
	}
	params, _ := ParamsFrom(media)

	graph, embedded, err := EmbeddedGraph(media)
	if err != nil {
		return nil, params, err
	}
	if !embedded {
		wf, err := p.template(modelName)
		if err != nil {
			return nil, params, err
		}
		graph = wf.Graph
	}
	return Substitute(graph, params), params, nil
}

func (p *Provider) template(modelName string) (*Workflow, error) {
	if p.workflowsDir == "" || strings.ContainsAny(modelName, `/\`) {
		return nil, providers.ModelNotFound("ComfyUI", modelName)
	}
	wf, err := LoadWorkflow(filepath.Join(p.workflowsDir, modelName+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, providers.ModelNotFound("ComfyUI", modelName)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "could not load workflow "+modelName, err)
	}
	return wf, nil
}
