package registry

import (
	"fmt"

	"mindstudio/local/internal/config"
	"mindstudio/local/internal/providers"
	"mindstudio/local/internal/providers/comfyui"
	"mindstudio/local/internal/providers/lmstudio"
	"mindstudio/local/internal/providers/ollama"
	"mindstudio/local/internal/providers/sdwebui"
)

// FromConfig builds the enabled providers in priority order: Ollama, LM Studio,
// Stable-Diffusion web UI, ComfyUI.
func FromConfig(cfg config.Config) ([]providers.Provider, error) {
	var ps []providers.Provider
	pc := cfg.Providers

	if pc.Ollama.Enabled {
		p, err := ollama.New(pc.Ollama.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		ps = append(ps, p)
	}
	if pc.LMStudio.Enabled {
		ps = append(ps, lmstudio.New(pc.LMStudio.BaseURL))
	}
	if pc.SDWebUI.Enabled {
		ps = append(ps, sdwebui.New(pc.SDWebUI.BaseURL, sdwebui.Defaults{
			Steps:    pc.SDWebUI.Steps,
			Width:    pc.SDWebUI.Width,
			Height:   pc.SDWebUI.Height,
			CFGScale: pc.SDWebUI.CFGScale,
			Sampler:  pc.SDWebUI.Sampler,
		}))
	}
	if pc.ComfyUI.Enabled {
		ps = append(ps, comfyui.New(pc.ComfyUI.BaseURL, pc.ComfyUI.WorkflowsDir, cfg.WorkflowTimeout.D()))
	}
	return ps, nil
}
