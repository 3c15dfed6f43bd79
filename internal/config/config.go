// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the API key goes to the OS keychain.
//
// Values are layered: built-in defaults, then config.json, then a .env file in the
// working directory, then MINDSTUDIO_* and provider host environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mindstudio/local/internal/xdg"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds non-sensitive settings.
type Config struct {
	Environment      string    `json:"environment"`
	APIBaseURL       string    `json:"api_base_url,omitempty"`
	LogLevel         string    `json:"log_level"`
	Concurrency      int       `json:"concurrency"`
	PollBackoff      Duration  `json:"poll_backoff"`
	ProgressInterval Duration  `json:"progress_interval"`
	WorkflowTimeout  Duration  `json:"workflow_timeout"`
	Providers        Providers `json:"providers"`
}

// Providers holds one block per supported local backend.
type Providers struct {
	Ollama   Provider `json:"ollama"`
	LMStudio Provider `json:"lmstudio"`
	SDWebUI  SDWebUI  `json:"sdwebui"`
	ComfyUI  ComfyUI  `json:"comfyui"`
}

// Provider is the common part of a backend block. An empty BaseURL uses the backend's default.
type Provider struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty"`
}

// SDWebUI adds generation defaults for the Stable-Diffusion web UI.
type SDWebUI struct {
	Provider
	Steps    int     `json:"steps,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	CFGScale float64 `json:"cfg_scale,omitempty"`
	Sampler  string  `json:"sampler,omitempty"`
}

// ComfyUI adds the directory of workflow templates.
type ComfyUI struct {
	Provider
	WorkflowsDir string `json:"workflows_dir,omitempty"`
}

// Duration is a time.Duration stored as a string such as "5s".
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Bare numbers are seconds.
		var n float64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		*d = Duration(n * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	c := Config{
		Environment:      "prod",
		LogLevel:         "info",
		Concurrency:      0, // unlimited
		PollBackoff:      Duration(5 * time.Second),
		ProgressInterval: Duration(100 * time.Millisecond),
		WorkflowTimeout:  Duration(30 * time.Minute),
	}
	c.Providers.Ollama.Enabled = true
	c.Providers.LMStudio.Enabled = true
	c.Providers.SDWebUI.Enabled = true
	c.Providers.ComfyUI.Enabled = true
	if home, err := os.UserHomeDir(); err == nil {
		c.Providers.ComfyUI.WorkflowsDir = filepath.Join(home, ".mindstudio", "workflows")
	}
	return c
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; missing file returns defaults. Environment overrides are applied.
func Load() (Config, error) {
	c, err := LoadFile()
	if err != nil {
		return c, err
	}
	// A missing .env is normal.
	_ = godotenv.Load()
	ApplyEnv(&c, os.Getenv)
	return c, nil
}

// LoadFile reads config.json without environment overrides. Zero-valued timing fields
// keep their defaults.
func LoadFile() (Config, error) {
	c := Defaults()
	p, err := Path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", p, err)
	}
	d := Defaults()
	if c.PollBackoff <= 0 {
		c.PollBackoff = d.PollBackoff
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	if c.WorkflowTimeout <= 0 {
		c.WorkflowTimeout = d.WorkflowTimeout
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// ApplyEnv overrides c with environment values read through getenv.
func ApplyEnv(c *Config, getenv func(string) string) {
	if v := getenv("MINDSTUDIO_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("MINDSTUDIO_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := getenv("MINDSTUDIO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("MINDSTUDIO_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := getenv("OLLAMA_HOST"); v != "" {
		c.Providers.Ollama.BaseURL = hostURL(v)
	}
	if v := getenv("LMSTUDIO_BASE_URL"); v != "" {
		c.Providers.LMStudio.BaseURL = v
	}
	if v := getenv("SDWEBUI_BASE_URL"); v != "" {
		c.Providers.SDWebUI.BaseURL = v
	}
	if v := getenv("COMFYUI_BASE_URL"); v != "" {
		c.Providers.ComfyUI.BaseURL = v
	}
	if v := getenv("COMFYUI_WORKFLOWS_DIR"); v != "" {
		c.Providers.ComfyUI.WorkflowsDir = v
	}
}

// hostURL accepts OLLAMA_HOST in its bare host:port form.
func hostURL(v string) string {
	if strings.Contains(v, "://") {
		return v
	}
	return "http://" + v
}

// Keys lists the settings accepted by Set, in display order.
var Keys = []string{
	"environment",
	"api_base_url",
	"log_level",
	"concurrency",
	"poll_backoff",
	"progress_interval",
	"workflow_timeout",
	"ollama.enabled", "ollama.base_url",
	"lmstudio.enabled", "lmstudio.base_url",
	"sdwebui.enabled", "sdwebui.base_url", "sdwebui.steps", "sdwebui.width", "sdwebui.height",
	"sdwebui.cfg_scale", "sdwebui.sampler",
	"comfyui.enabled", "comfyui.base_url", "comfyui.workflows_dir",
}

// Set assigns one dotted key from its string form.
func (c *Config) Set(key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "environment":
		if value != "prod" && value != "local" {
			return fmt.Errorf("environment must be prod or local")
		}
		c.Environment = value
	case "api_base_url":
		c.APIBaseURL = value
	case "log_level":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		default:
			return fmt.Errorf("log_level must be one of debug, info, warn, error")
		}
	case "concurrency":
		c.Concurrency, err = nonNegative(value)
	case "poll_backoff":
		err = setDuration(&c.PollBackoff, value)
	case "progress_interval":
		err = setDuration(&c.ProgressInterval, value)
	case "workflow_timeout":
		err = setDuration(&c.WorkflowTimeout, value)
	case "ollama.enabled":
		c.Providers.Ollama.Enabled, err = strconv.ParseBool(value)
	case "ollama.base_url":
		c.Providers.Ollama.BaseURL = value
	case "lmstudio.enabled":
		c.Providers.LMStudio.Enabled, err = strconv.ParseBool(value)
	case "lmstudio.base_url":
		c.Providers.LMStudio.BaseURL = value
	case "sdwebui.enabled":
		c.Providers.SDWebUI.Enabled, err = strconv.ParseBool(value)
	case "sdwebui.base_url":
		c.Providers.SDWebUI.BaseURL = value
	case "sdwebui.steps":
		c.Providers.SDWebUI.Steps, err = nonNegative(value)
	case "sdwebui.width":
		c.Providers.SDWebUI.Width, err = nonNegative(value)
	case "sdwebui.height":
		c.Providers.SDWebUI.Height, err = nonNegative(value)
	case "sdwebui.cfg_scale":
		c.Providers.SDWebUI.CFGScale, err = strconv.ParseFloat(value, 64)
	case "sdwebui.sampler":
		c.Providers.SDWebUI.Sampler = value
	case "comfyui.enabled":
		c.Providers.ComfyUI.Enabled, err = strconv.ParseBool(value)
	case "comfyui.base_url":
		c.Providers.ComfyUI.BaseURL = value
	case "comfyui.workflows_dir":
		c.Providers.ComfyUI.WorkflowsDir = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func nonNegative(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

func setDuration(d *Duration, v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	if parsed <= 0 {
		return errors.New("must be positive")
	}
	*d = Duration(parsed)
	return nil
}
