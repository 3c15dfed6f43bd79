package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaultsWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if c.Environment != "prod" || c.LogLevel != "info" {
		t.Errorf("LoadFile() = %+v, want defaults", c)
	}
	if c.PollBackoff.D() != 5*time.Second || c.ProgressInterval.D() != 100*time.Millisecond {
		t.Errorf("LoadFile() timing = %v/%v, want 5s/100ms", c.PollBackoff.D(), c.ProgressInterval.D())
	}
	if !c.Providers.Ollama.Enabled || !c.Providers.ComfyUI.Enabled {
		t.Error("LoadFile() providers disabled by default, want enabled")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	c := Defaults()
	c.Concurrency = 3
	c.WorkflowTimeout = Duration(10 * time.Minute)
	c.Providers.ComfyUI.WorkflowsDir = "/srv/workflows"
	c.Providers.SDWebUI.Steps = 28
	if err := Save(c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "mindstudio-local", "config.json"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	got, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got.Concurrency != 3 || got.WorkflowTimeout.D() != 10*time.Minute ||
		got.Providers.ComfyUI.WorkflowsDir != "/srv/workflows" || got.Providers.SDWebUI.Steps != 28 {
		t.Errorf("LoadFile() = %+v, want saved values", got)
	}
}

func TestDurationAcceptsSeconds(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`2.5`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if d.D() != 2500*time.Millisecond {
		t.Errorf("UnmarshalJSON(2.5) = %v, want 2.5s", d.D())
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MINDSTUDIO_BASE_URL":    "http://localhost:3000/v2",
		"MINDSTUDIO_CONCURRENCY": "2",
		"OLLAMA_HOST":            "0.0.0.0:11500",
		"COMFYUI_WORKFLOWS_DIR":  "/tmp/wf",
	}
	c := Defaults()
	ApplyEnv(&c, func(k string) string { return env[k] })

	if c.APIBaseURL != "http://localhost:3000/v2" {
		t.Errorf("APIBaseURL = %q", c.APIBaseURL)
	}
	if c.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", c.Concurrency)
	}
	if c.Providers.Ollama.BaseURL != "http://0.0.0.0:11500" {
		t.Errorf("Ollama.BaseURL = %q, want http://0.0.0.0:11500", c.Providers.Ollama.BaseURL)
	}
	if c.Providers.ComfyUI.WorkflowsDir != "/tmp/wf" {
		t.Errorf("ComfyUI.WorkflowsDir = %q", c.Providers.ComfyUI.WorkflowsDir)
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
		check   func(Config) bool
	}{
		{name: "concurrency", key: "concurrency", value: "4", check: func(c Config) bool { return c.Concurrency == 4 }},
		{name: "negative concurrency", key: "concurrency", value: "-1", wantErr: true},
		{name: "poll backoff", key: "poll_backoff", value: "2s", check: func(c Config) bool { return c.PollBackoff.D() == 2*time.Second }},
		{name: "bad duration", key: "workflow_timeout", value: "soon", wantErr: true},
		{name: "disable provider", key: "lmstudio.enabled", value: "false", check: func(c Config) bool { return !c.Providers.LMStudio.Enabled }},
		{name: "comfyui base url", key: "comfyui.base_url", value: "http://gpu:8188", check: func(c Config) bool { return c.Providers.ComfyUI.BaseURL == "http://gpu:8188" }},
		{name: "bad log level", key: "log_level", value: "loud", wantErr: true},
		{name: "unknown key", key: "nope", value: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			err := c.Set(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(c) {
				t.Errorf("Set(%q, %q) did not apply: %+v", tt.key, tt.value, c)
			}
		})
	}
}
