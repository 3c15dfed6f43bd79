// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package comfyui

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/model"
)

// videoNodes are output node classes whose results are animations or videos.
var videoNodes = map[string]bool{
	"VHS_VideoCombine": true,
	"SaveAnimatedWEBP": true,
	"SaveAnimatedPNG":  true,
	"SaveWEBM":         true,
	"SaveVideo":        true,
	"CreateVideo":      true,
}

// Workflow is an API-format graph template stored as <name>.json.
type Workflow struct {
	Name       string
	Path       string
	Capability model.Capability
	Graph      map[string]any
}

// LoadWorkflows reads every *.json template in dir, sorted by name. A missing
// directory yields no workflows. Unreadable or malformed files are returned in skipped.
func LoadWorkflows(dir string) (workflows []Workflow, skipped map[string]error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil
	}
	sort.Strings(matches)

	for _, path := range matches {
		wf, err := LoadWorkflow(path)
		if err != nil {
			if skipped == nil {
				skipped = map[string]error{}
			}
			skipped[path] = err
			continue
		}
		workflows = append(workflows, *wf)
	}
	return workflows, skipped
}

// LoadWorkflow reads a single template file.
func LoadWorkflow(path string) (*Workflow, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	graph, err := parseGraph(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &Workflow{
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:       path,
		Capability: DetectCapability(graph),
		Graph:      graph,
	}, nil
}

func parseGraph(b []byte) (map[string]any, error) {
	var graph map[string]any
	if err := json.Unmarshal(b, &graph); err != nil {
		return nil, apperrors.Wrap(apperrors.Validation, "workflow is not valid JSON", err)
	}
	// UI-format exports carry a top-level "nodes" array instead of id-keyed nodes.
	if _, ok := graph["nodes"].([]any); ok {
		return nil, apperrors.New(apperrors.Validation, "workflow is in UI format; export it with \"Save (API Format)\"")
	}
	if len(graph) == 0 {
		return nil, apperrors.New(apperrors.Validation, "workflow has no nodes")
	}
	return graph, nil
}

// DetectCapability reports video when the graph has an animation or video output node.
func DetectCapability(graph map[string]any) model.Capability {
	for _, raw := range graph {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if class, _ := node["class_type"].(string); videoNodes[class] {
			return model.CapabilityVideo
		}
	}
	return model.CapabilityImage
}

// EmbeddedGraph returns the workflow carried in a request's config, if any. It may be
// an object or a JSON-encoded string.
func EmbeddedGraph(media model.MediaPayload) (map[string]any, bool, error) {
	raw, ok := media.Raw("workflow")
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, true, nil
	case string:
		graph, err := parseGraph([]byte(v))
		if err != nil {
			return nil, true, err
		}
		return graph, true, nil
	}
	return nil, true, apperrors.New(apperrors.Validation, "workflow must be an object or a JSON string")
}

// Params are the values substituted into a template.
type Params struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
	Steps          int64
	CFG            float64
	Width          int64
	Height         int64
	Frames         int64
	FPS            float64
}

// ParamsFrom resolves substitution values from a request, randomizing a missing seed.
// The second return reports whether the seed was generated.
func ParamsFrom(media model.MediaPayload) (Params, bool) {
	p := Params{
		Prompt:         media.Prompt,
		NegativePrompt: media.String("", "negativePrompt", "negative_prompt"),
		Steps:          media.Int(20, "steps"),
		CFG:            media.Float(7, "cfg", "cfgScale", "cfg_scale", "guidance"),
		Width:          media.Int(512, "width"),
		Height:         media.Int(512, "height"),
		Frames:         media.Int(16, "frames", "frameCount", "numFrames", "length"),
		FPS:            media.Float(8, "fps", "frameRate", "frame_rate"),
	}
	generated := false
	if media.Has("seed") {
		p.Seed = media.Int(0, "seed")
	} else {
		p.Seed = rand.Int64N(1 << 48)
		generated = true
	}
	return p, generated
}

func (p Params) values() map[string]any {
	return map[string]any{
		"prompt":          p.Prompt,
		"negative_prompt": p.NegativePrompt,
		"seed":            p.Seed,
		"steps":           p.Steps,
		"cfg":             p.CFG,
		"width":           p.Width,
		"height":          p.Height,
		"frames":          p.Frames,
		"fps":             p.FPS,
	}
}

// Substitute returns a deep copy of graph with {{name}} placeholders replaced. A string
// that is exactly one placeholder takes the value's own type; placeholders inside longer
// strings are replaced textually.
func Substitute(graph map[string]any, p Params) map[string]any {
	vals := p.values()
	out, _ := substitute(graph, vals).(map[string]any)
	return out
}

// placeholder matches {{name}} with optional inner spaces.
var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// substitute replaces placeholders in one pass, so substituted values are never rescanned.
func substitute(v any, vals map[string]any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[k] = substitute(child, vals)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, child := range t {
			s[i] = substitute(child, vals)
		}
		return s
	case string:
		if !strings.Contains(t, "{{") {
			return t
		}
		trimmed := strings.TrimSpace(t)
		if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
			strings.Count(trimmed, "{{") == 1 {
			key := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
			if val, ok := vals[key]; ok {
				return val
			}
			return t
		}
		return placeholder.ReplaceAllStringFunc(t, func(match string) string {
			key := placeholder.FindStringSubmatch(match)[1]
			if val, ok := vals[key]; ok {
				return fmt.Sprint(val)
			}
			return match
		})
	}
	return v
}

// graphNumber finds the first numeric input named key on any node, in node-id order.
func graphNumber(graph map[string]any, keys ...string) (float64, bool) {
	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sortNodeIDs(ids)
	for _, id := range ids {
		node, ok := graph[id].(map[string]any)
		if !ok {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range keys {
			switch n := inputs[k].(type) {
			case float64:
				return n, true
			case int64:
				return float64(n), true
			case int:
				return float64(n), true
			}
		}
	}
	return 0, false
}
