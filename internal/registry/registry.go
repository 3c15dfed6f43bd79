// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package registry maps model names to the provider that serves them.
//
// The provider list is fixed at construction. The model map is rebuilt by Refresh,
// which asks every running provider for its models concurrently and swaps the new
// map in atomically, so lookups from in-flight requests never observe a partial map.
// When two providers report the same model name the first provider in registration
// order keeps it; the others are recorded as conflicts.
package registry

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	"golang.org/x/sync/errgroup"
)

// Conflict records a model name reported by more than one provider.
type Conflict struct {
	Model   string
	Kept    string
	Skipped string
}

type entry struct {
	provider   providers.Provider
	descriptor model.ModelDescriptor
}

type snapshot struct {
	byName    map[string]entry
	models    []model.ModelDescriptor
	conflicts []Conflict
}

// Registry routes model names to providers.
type Registry struct {
	providers    []providers.Provider
	probeTimeout time.Duration
	current      atomic.Pointer[snapshot]
}

// New creates a registry over providers in priority order.
func New(ps ...providers.Provider) *Registry {
	r := &Registry{
		providers:    ps,
		probeTimeout: providers.ProbeTimeout,
	}
	r.current.Store(&snapshot{byName: map[string]entry{}})
	return r
}

// Refresh rediscovers models from every running provider. Providers that are not
// running contribute nothing. Discovery never fails; only ctx cancellation is returned.
func (r *Registry) Refresh(ctx context.Context) error {
	found := make([][]model.ModelDescriptor, len(r.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range r.providers {
		g.Go(func() error {
			if !r.probe(gctx, p) {
				return nil
			}
			found[i] = p.DiscoverModels(gctx)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	next := &snapshot{byName: map[string]entry{}}
	for i, p := range r.providers {
		for _, d := range found[i] {
			if d.Provider == "" {
				d.Provider = p.Name()
			}
			if prev, ok := next.byName[d.Name]; ok {
				next.conflicts = append(next.conflicts, Conflict{
					Model:   d.Name,
					Kept:    prev.provider.Name(),
					Skipped: p.Name(),
				})
				continue
			}
			next.byName[d.Name] = entry{provider: p, descriptor: d}
			next.models = append(next.models, d)
		}
	}
	r.current.Store(next)
	return nil
}

// FindByModel returns the provider serving name.
func (r *Registry) FindByModel(name string) (providers.Provider, model.ModelDescriptor, bool) {
	e, ok := r.current.Load().byName[name]
	return e.provider, e.descriptor, ok
}

// Models returns the descriptors of the last refresh in provider priority order.
func (r *Registry) Models() []model.ModelDescriptor {
	return append([]model.ModelDescriptor(nil), r.current.Load().models...)
}

// ModelNames returns the known model names, sorted.
func (r *Registry) ModelNames() []string {
	s := r.current.Load()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Conflicts returns the duplicate names skipped by the last refresh.
func (r *Registry) Conflicts() []Conflict {
	return append([]Conflict(nil), r.current.Load().conflicts...)
}

// Statuses probes every provider concurrently. Each probe is bounded on its own,
// so one slow provider does not delay the others' answers.
func (r *Registry) Statuses(ctx context.Context) []providers.Status {
	out := make([]providers.Status, len(r.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range r.providers {
		g.Go(func() error {
			out[i] = providers.Status{Provider: p, Running: r.probe(gctx, p)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AnyRunning reports whether at least one provider answers. It returns as soon as
// one does.
func (r *Registry) AnyRunning(ctx context.Context) bool {
	if len(r.providers) == 0 {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(r.providers))
	for _, p := range r.providers {
		go func() { results <- r.probe(ctx, p) }()
	}
	for range r.providers {
		if <-results {
			return true
		}
	}
	return false
}

// probe runs IsRunning under its own deadline. A provider that ignores its context
// is abandoned and reported as not running.
func (r *Registry) probe(ctx context.Context, p providers.Provider) bool {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() { done <- p.IsRunning(ctx) }()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}
