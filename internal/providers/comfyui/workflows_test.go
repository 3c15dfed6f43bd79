package comfyui

import (
	"os"
	"path/filepath"
	"testing"

	"mindstudio/local/internal/model"
)

func TestSelectArtifact(t *testing.T) {
	tests := []struct {
		name       string
		outputs    map[string]nodeOutput
		wantFile   string
		wantMotion bool
		wantOK     bool
	}{
		{
			name: "gifs preferred over images",
			outputs: map[string]nodeOutput{
				"9":  {Images: []fileRef{{Filename: "still.png"}}},
				"12": {Gifs: []fileRef{{Filename: "anim.gif"}}},
			},
			wantFile:   "anim.gif",
			wantMotion: true,
			wantOK:     true,
		},
		{
			name: "videos preferred over images",
			outputs: map[string]nodeOutput{
				"2": {Images: []fileRef{{Filename: "still.png"}}},
				"5": {Videos: []fileRef{{Filename: "clip.mp4"}}},
			},
			wantFile:   "clip.mp4",
			wantMotion: true,
			wantOK:     true,
		},
		{
			name: "lowest node id wins among images",
			outputs: map[string]nodeOutput{
				"10": {Images: []fileRef{{Filename: "ten.png"}}},
				"9":  {Images: []fileRef{{Filename: "nine.png"}}},
			},
			wantFile: "nine.png",
			wantOK:   true,
		},
		{
			name:    "no files",
			outputs: map[string]nodeOutput{"9": {}},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, motion, ok := selectArtifact(tt.outputs)
			if ok != tt.wantOK {
				t.Fatalf("selectArtifact() ok = %v, want %v", ok, tt.wantOK)
			}
			if ref.Filename != tt.wantFile || motion != tt.wantMotion {
				t.Errorf("selectArtifact() = %s (motion %v), want %s (motion %v)", ref.Filename, motion, tt.wantFile, tt.wantMotion)
			}
		})
	}
}

func TestMimeType(t *testing.T) {
	tests := map[string]string{
		"out.mp4":  "video/mp4",
		"out.webm": "video/webm",
		"out.webp": "image/webp",
		"out.gif":  "image/gif",
		"out.png":  "image/png",
		"out.jpg":  "image/jpeg",
		"OUT.JPEG": "image/jpeg",
		"out.bin":  "application/octet-stream",
		"noext":    "application/octet-stream",
	}
	for name, want := range tests {
		if got := MimeType(name); got != want {
			t.Errorf("MimeType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSubstitute(t *testing.T) {
	graph := map[string]any{
		"6": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "{{prompt}}", "clip": []any{"4", float64(1)}},
		},
		"3": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"seed":  "{{seed}}",
				"steps": "{{ steps }}",
				"cfg":   "{{cfg}}",
			},
		},
		"7": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "blurry, {{negative_prompt}}"},
		},
	}
	p := Params{Prompt: "a red fox", NegativePrompt: "text", Seed: 42, Steps: 30, CFG: 6.5}

	out := Substitute(graph, p)

	inputs := func(id string) map[string]any {
		return out[id].(map[string]any)["inputs"].(map[string]any)
	}
	if got := inputs("6")["text"]; got != "a red fox" {
		t.Errorf("prompt = %v, want a red fox", got)
	}
	if got := inputs("3")["seed"]; got != int64(42) {
		t.Errorf("seed = %#v, want int64(42)", got)
	}
	if got := inputs("3")["steps"]; got != int64(30) {
		t.Errorf("steps = %#v, want int64(30)", got)
	}
	if got := inputs("3")["cfg"]; got != 6.5 {
		t.Errorf("cfg = %#v, want 6.5", got)
	}
	if got := inputs("7")["text"]; got != "blurry, text" {
		t.Errorf("negative = %v, want blurry, text", got)
	}

	orig := graph["6"].(map[string]any)["inputs"].(map[string]any)["text"]
	if orig != "{{prompt}}" {
		t.Errorf("Substitute() modified its input: %v", orig)
	}
}

func TestSubstituteLeavesPlaceholdersInValues(t *testing.T) {
	graph := map[string]any{
		"6": map[string]any{"inputs": map[string]any{"text": "style, {{prompt}}, {{ seed }}, {{unknown}}"}},
	}
	p := Params{Prompt: "literal {{seed}} braces", Seed: 42, Steps: 20, CFG: 7}

	for i := 0; i < 50; i++ {
		out := Substitute(graph, p)
		got := out["6"].(map[string]any)["inputs"].(map[string]any)["text"]
		if got != "style, literal {{seed}} braces, 42, {{unknown}}" {
			t.Fatalf("Substitute() text = %q, want user text kept verbatim", got)
		}
	}
}

func TestParamsFromRandomizesMissingSeed(t *testing.T) {
	_, generated := ParamsFrom(model.MediaPayload{Prompt: "x"})
	if !generated {
		t.Error("ParamsFrom() without seed: generated = false, want true")
	}

	p, generated := ParamsFrom(model.MediaPayload{Prompt: "x", Config: map[string]any{"seed": float64(7)}})
	if generated || p.Seed != 7 {
		t.Errorf("ParamsFrom() seed = %d (generated %v), want 7 (false)", p.Seed, generated)
	}
}

func TestLoadWorkflows(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("sdxl.json", `{"9":{"class_type":"SaveImage","inputs":{}}}`)
	write("animate.json", `{"9":{"class_type":"VHS_VideoCombine","inputs":{"frame_rate":12}}}`)
	write("ui-export.json", `{"nodes":[],"links":[]}`)
	write("notes.txt", `ignored`)

	workflows, skipped := LoadWorkflows(dir)

	if len(workflows) != 2 {
		t.Fatalf("LoadWorkflows() = %d workflows, want 2", len(workflows))
	}
	want := map[string]model.Capability{"animate": model.CapabilityVideo, "sdxl": model.CapabilityImage}
	for _, wf := range workflows {
		if wf.Capability != want[wf.Name] {
			t.Errorf("workflow %s capability = %s, want %s", wf.Name, wf.Capability, want[wf.Name])
		}
	}
	if _, ok := skipped[filepath.Join(dir, "ui-export.json")]; !ok {
		t.Errorf("LoadWorkflows() skipped = %v, want ui-export.json", skipped)
	}
}

func TestLoadWorkflowsMissingDir(t *testing.T) {
	workflows, skipped := LoadWorkflows(filepath.Join(t.TempDir(), "absent"))
	if len(workflows) != 0 || len(skipped) != 0 {
		t.Errorf("LoadWorkflows() = %v, %v, want nothing", workflows, skipped)
	}
}
