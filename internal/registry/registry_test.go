package registry

import (
	"context"
	"reflect"
	"testing"
	"time"

	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"
)

type fakeProvider struct {
	name    string
	running bool
	delay   time.Duration
	models  []string
	caps    []model.Capability
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) DisplayName() string              { return f.name }
func (f *fakeProvider) Capabilities() []model.Capability { return f.caps }

// IsRunning ignores ctx on purpose to simulate a hung backend.
func (f *fakeProvider) IsRunning(ctx context.Context) bool {
	time.Sleep(f.delay)
	return f.running
}

func (f *fakeProvider) DiscoverModels(ctx context.Context) []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, 0, len(f.models))
	for _, m := range f.models {
		out = append(out, model.ModelDescriptor{Name: m, Provider: f.name, Capability: model.CapabilityText})
	}
	return out
}

func TestRefreshFirstProviderWins(t *testing.T) {
	a := &fakeProvider{name: "ollama", running: true, models: []string{"llama3", "shared"}}
	b := &fakeProvider{name: "lmstudio", running: true, models: []string{"shared", "qwen"}}
	r := New(a, b)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	p, d, ok := r.FindByModel("shared")
	if !ok || p.Name() != "ollama" || d.Provider != "ollama" {
		t.Errorf("FindByModel(shared) = %v, %+v, %v, want ollama", p, d, ok)
	}
	if got, want := r.ModelNames(), []string{"llama3", "qwen", "shared"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ModelNames() = %v, want %v", got, want)
	}
	want := []Conflict{{Model: "shared", Kept: "ollama", Skipped: "lmstudio"}}
	if got := r.Conflicts(); !reflect.DeepEqual(got, want) {
		t.Errorf("Conflicts() = %+v, want %+v", got, want)
	}
}

func TestRefreshSkipsStoppedProviders(t *testing.T) {
	up := &fakeProvider{name: "ollama", running: true, models: []string{"llama3"}}
	down := &fakeProvider{name: "lmstudio", running: false, models: []string{"qwen"}}
	r := New(up, down)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, _, ok := r.FindByModel("qwen"); ok {
		t.Error("FindByModel(qwen) found a model from a stopped provider")
	}
	if _, _, ok := r.FindByModel("missing"); ok {
		t.Error("FindByModel(missing) = true, want false")
	}
}

func TestRefreshReplacesPreviousSnapshot(t *testing.T) {
	p := &fakeProvider{name: "ollama", running: true, models: []string{"old"}}
	r := New(p)
	_ = r.Refresh(context.Background())

	p.models = []string{"new"}
	_ = r.Refresh(context.Background())

	if _, _, ok := r.FindByModel("old"); ok {
		t.Error("FindByModel(old) still found after refresh")
	}
	if _, _, ok := r.FindByModel("new"); !ok {
		t.Error("FindByModel(new) not found after refresh")
	}
}

func TestStatusesBoundsSlowProvider(t *testing.T) {
	fast := &fakeProvider{name: "ollama", running: true}
	slow := &fakeProvider{name: "comfyui", running: true, delay: 2 * time.Second}
	r := New(fast, slow)
	r.probeTimeout = 100 * time.Millisecond

	start := time.Now()
	got := r.Statuses(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Statuses() took %s, want bounded by probe timeout", elapsed)
	}

	want := []providers.Status{{Provider: fast, Running: true}, {Provider: slow, Running: false}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Statuses() = %+v, want %+v", got, want)
	}
}

func TestAnyRunning(t *testing.T) {
	tests := []struct {
		name      string
		providers []providers.Provider
		want      bool
	}{
		{name: "none registered", want: false},
		{name: "all stopped", providers: []providers.Provider{
			&fakeProvider{name: "a"}, &fakeProvider{name: "b"},
		}, want: false},
		{name: "one running behind a slow one", providers: []providers.Provider{
			&fakeProvider{name: "slow", running: true, delay: 2 * time.Second},
			&fakeProvider{name: "fast", running: true},
		}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.providers...)
			r.probeTimeout = 500 * time.Millisecond
			start := time.Now()
			if got := r.AnyRunning(context.Background()); got != tt.want {
				t.Errorf("AnyRunning() = %v, want %v", got, tt.want)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("AnyRunning() took %s", elapsed)
			}
		})
	}
}
