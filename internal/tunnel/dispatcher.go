// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package tunnel runs the dispatch loop: long-poll the control plane for generation
// requests, route each one to the local provider serving its model, and report
// progress and a terminal result back.
//
// The loop never blocks on a request. Every request runs in its own goroutine and is
// converted into exactly one result report whatever happens inside the provider. Only
// startup configuration problems end Run with an error; poll failures back off and retry.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mindstudio/local/internal/backend"
	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/logging"
	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	"github.com/pterm/pterm"
)

// Router resolves model names to providers.
type Router interface {
	Refresh(ctx context.Context) error
	FindByModel(name string) (providers.Provider, model.ModelDescriptor, bool)
	ModelNames() []string
	AnyRunning(ctx context.Context) bool
}

// State is the lifecycle position of a Dispatcher.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Options tune the loop. Zero values use the defaults below.
type Options struct {
	// Concurrency caps requests in flight. 0 means unlimited.
	Concurrency int
	// PollBackoff is the fixed delay after a failed poll.
	PollBackoff time.Duration
	// ProgressInterval is the minimum spacing of chat progress reports.
	ProgressInterval time.Duration
	// DisconnectTimeout bounds the shutdown notice.
	DisconnectTimeout time.Duration
	Logger            *pterm.Logger
}

const (
	DefaultPollBackoff       = 5 * time.Second
	DefaultProgressInterval  = 100 * time.Millisecond
	DefaultDisconnectTimeout = 3 * time.Second
)

// Stats are cumulative counters since Run started.
type Stats struct {
	InFlight  int64
	Completed int64
	Failed    int64
}

// Dispatcher is the poll, route, execute, report loop.
type Dispatcher struct {
	cp     backend.ControlPlane
	router Router
	opts   Options
	log    *pterm.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	events chan Event
	sem    chan struct{}
	wg     sync.WaitGroup

	state     atomic.Int32
	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	models    atomic.Pointer[[]string]
}

// New creates a dispatcher polling cp for the models router knows.
func New(cp backend.ControlPlane, router Router, opts Options) *Dispatcher {
	if opts.PollBackoff <= 0 {
		opts.PollBackoff = DefaultPollBackoff
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = DefaultDisconnectTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	d := &Dispatcher{
		cp:     cp,
		router: router,
		opts:   opts,
		log:    log,
		sleep:  sleepCtx,
		now:    time.Now,
		events: make(chan Event, 256),
	}
	if opts.Concurrency > 0 {
		d.sem = make(chan struct{}, opts.Concurrency)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Events delivers UI events. Events are dropped when nobody keeps up.
func (d *Dispatcher) Events() <-chan Event { return d.events }

// State returns the current lifecycle state.
func (d *Dispatcher) State() State { return State(d.state.Load()) }

// Models returns the model set the loop polls for.
func (d *Dispatcher) Models() []string {
	if p := d.models.Load(); p != nil {
		return append([]string(nil), (*p)...)
	}
	return nil
}

// Stats returns the request counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		InFlight:  d.inFlight.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
	}
}

// Wait blocks until every dispatched request has reported, or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) emit(ev Event) {
	ev.Time = d.now()
	select {
	case d.events <- ev:
	default:
	}
}

// Run discovers models and polls until ctx is cancelled. It returns an error only
// when the loop cannot start; cancellation is a clean shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.New("dispatcher already started")
	}
	defer d.state.Store(int32(StateStopped))

	names, err := d.prepare(ctx)
	if err != nil {
		return err
	}
	d.models.Store(&names)
	d.log.Info("Tunnel ready", d.log.Args("models", len(names)))
	d.emit(Event{Type: EventReady, Models: names})

	d.loop(ctx, names)

	d.state.Store(int32(StateDraining))
	d.disconnect(ctx)
	d.emit(Event{Type: EventStopped})
	return nil
}

// prepare checks that something can serve requests and returns the model set.
func (d *Dispatcher) prepare(ctx context.Context) ([]string, error) {
	if !d.router.AnyRunning(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, apperrors.New(apperrors.Config, "no local model server is running")
	}
	if err := d.router.Refresh(ctx); err != nil {
		return nil, err
	}
	names := d.router.ModelNames()
	if len(names) == 0 {
		return nil, apperrors.New(apperrors.Config, "no models found on the running local model servers")
	}
	return names, nil
}

func (d *Dispatcher) loop(ctx context.Context, names []string) {
	// Handlers outlive the poll loop so results of in-flight requests still get reported.
	handlerCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		if d.sem != nil {
			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}

		req, err := d.cp.Poll(ctx, names)
		if err != nil {
			d.release()
			if ctx.Err() != nil {
				return
			}
			msg := logging.Mask(err.Error())
			d.log.Warn("Poll failed", d.log.Args("error", msg, "retry_in", d.opts.PollBackoff.String()))
			d.emit(Event{Type: EventPollError, Message: msg})
			if d.sleep(ctx, d.opts.PollBackoff) != nil {
				return
			}
			continue
		}
		if req == nil {
			d.release()
			continue
		}

		d.wg.Add(1)
		d.inFlight.Add(1)
		go d.handle(handlerCtx, req)
	}
}

func (d *Dispatcher) release() {
	if d.sem != nil {
		<-d.sem
	}
}

func (d *Dispatcher) disconnect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.DisconnectTimeout)
	defer cancel()
	if err := d.cp.Disconnect(ctx); err != nil {
		d.log.Debug("Disconnect notice failed", d.log.Args("error", logging.Mask(err.Error())))
	}
}

// handle runs one request and reports its result exactly once.
func (d *Dispatcher) handle(ctx context.Context, req *model.GenerationRequest) {
	defer d.wg.Done()
	defer d.release()
	defer d.inFlight.Add(-1)

	start := d.now()
	report := d.execute(ctx, req)

	if err := d.cp.SubmitResult(ctx, req.ID, report); err != nil {
		d.log.Error("Could not report result", d.log.Args("request", req.ID, "error", logging.Mask(err.Error())))
	}

	ev := Event{
		RequestID:   req.ID,
		ModelID:     req.ModelID,
		RequestType: req.RequestType,
		Elapsed:     d.now().Sub(start),
	}
	if report.Success {
		d.completed.Add(1)
		ev.Type = EventCompleted
		d.log.Info("Request completed", d.log.Args("request", req.ID, "model", req.ModelID, "elapsed", ev.Elapsed.Round(time.Millisecond).String()))
	} else {
		d.failed.Add(1)
		ev.Type = EventFailed
		ev.Message = report.Error
		d.log.Warn("Request failed", d.log.Args("request", req.ID, "model", req.ModelID, "reason", report.Error))
	}
	d.emit(ev)
}

// execute routes req and converts every outcome, panics included, into a report.
func (d *Dispatcher) execute(ctx context.Context, req *model.GenerationRequest) (report model.ResultReport) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Provider panicked", d.log.Args("request", req.ID, "panic", fmt.Sprint(r)))
			report = model.Failed(fmt.Sprintf("internal error: %v", r))
		}
	}()

	p, _, ok := d.router.FindByModel(req.ModelID)
	if !ok {
		return model.Failed(fmt.Sprintf("model %q is not registered on local server", req.ModelID))
	}
	need, ok := req.RequestType.Capability()
	if !ok {
		return model.Failed(fmt.Sprintf("unknown request type %q", req.RequestType))
	}
	if !providers.Supports(p, need) {
		return model.Failed(providers.ErrUnsupported.Error())
	}

	d.emit(Event{Type: EventStarted, RequestID: req.ID, ModelID: req.ModelID, RequestType: req.RequestType, Provider: p.Name()})
	d.log.Debug("Request started", d.log.Args("request", req.ID, "model", req.ModelID, "provider", p.Name()))

	switch need {
	case model.CapabilityText:
		if cp, ok := p.(providers.ChatProvider); ok {
			return d.runChat(ctx, req, cp)
		}
	case model.CapabilityImage:
		if ip, ok := p.(providers.ImageProvider); ok {
			return d.runImage(ctx, req, ip)
		}
	case model.CapabilityVideo:
		if vp, ok := p.(providers.VideoProvider); ok {
			return d.runVideo(ctx, req, vp)
		}
	}
	return model.Failed(providers.ErrUnsupported.Error())
}
