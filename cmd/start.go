// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"mindstudio/local/internal/backend"
	"mindstudio/local/internal/logging"
	"mindstudio/local/internal/tunnel"
	"mindstudio/local/internal/xdg"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long in-flight requests may finish after Ctrl+C.
const shutdownGrace = 30 * time.Second

var (
	startRegister    bool
	startConcurrency int
)

// startCmd runs the tunnel: it polls MindStudio for requests addressed to local
// models and executes them against the local model servers.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tunnel and serve local models to MindStudio",
	Long: `The start command discovers the models available on the running local model servers,
then polls MindStudio for requests addressed to them. Each request is executed locally
and its progress and result are streamed back.

Press Ctrl+C to stop. Requests already running are allowed to finish.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Concurrency = startConcurrency
		}

		interactive := isInteractive() && !verbose
		log := newLogger(cfg)
		if interactive {
			// The live view owns the terminal; logs go to the state directory.
			f, path, err := openTunnelLog()
			if err != nil {
				log = logging.Discard()
			} else {
				defer f.Close()
				log = logging.NewWithWriter(cfg.LogLevel, f)
				pterm.Debug.Printf("Logging to %s\n", path)
			}
		}

		m, err := newManifest(cfg)
		if err != nil {
			return err
		}
		key, source, err := newAuthService(m, log).APIKey()
		if err != nil {
			return err
		}
		cp, err := backend.NewControlPlane(m, key)
		if err != nil {
			return err
		}
		log.Debug("Using API key", log.Args("source", string(source), "key", logging.MaskKey(key)))

		reg, err := newRegistry(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if startRegister {
			if err := reg.Refresh(ctx); err != nil {
				return err
			}
			if err := cp.RegisterModels(ctx, reg.Models()); err != nil {
				return fmt.Errorf("register models: %w", err)
			}
			pterm.Success.Printf("Registered %d models with MindStudio\n", len(reg.Models()))
		}

		d := tunnel.New(cp, reg, tunnel.Options{
			Concurrency:      cfg.Concurrency,
			PollBackoff:      cfg.PollBackoff.D(),
			ProgressInterval: cfg.ProgressInterval.D(),
			Logger:           log,
		})

		view := startLiveView(d.Events(), interactive)
		runErr := d.Run(ctx)
		if runErr == nil && d.Stats().InFlight > 0 {
			view.note(fmt.Sprintf("Waiting up to %s for %d running requests", shutdownGrace, d.Stats().InFlight))
		}

		graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		waitErr := d.Wait(graceCtx)
		snap := view.stop()

		if runErr != nil {
			return runErr
		}
		if snap.LastPollError != "" {
			pterm.Println(logging.FormatPollError(snap.LastPollError, cfg.PollBackoff.D().String()))
		}
		s := d.Stats()
		pterm.Info.Printf("Tunnel stopped · %d completed · %d failed\n", s.Completed, s.Failed)
		if waitErr != nil {
			pterm.Warning.Printf("%d requests were still running and did not report a result\n", s.InFlight)
		}
		return nil
	},
}

// openTunnelLog opens the append-only log used while the live view is shown.
func openTunnelLog() (*os.File, string, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(dir, "tunnel.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// liveView consumes dispatcher events. In interactive mode it redraws an area with
// the tunnel status; otherwise it only tracks state for the final summary.
type liveView struct {
	act      *tunnel.Activity
	renderer *tunnel.Renderer
	area     *pterm.AreaPrinter

	mu    sync.Mutex
	notes []string

	done chan struct{}
	wg   sync.WaitGroup
}

func startLiveView(events <-chan tunnel.Event, interactive bool) *liveView {
	v := &liveView{
		act:      tunnel.NewActivity(),
		renderer: tunnel.NewRenderer(),
		done:     make(chan struct{}),
	}
	if interactive {
		cursor.Hide()
		area, err := pterm.DefaultArea.Start()
		if err != nil {
			cursor.Show()
		} else {
			v.area = area
		}
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case ev := <-events:
				v.act.Apply(ev)
			case <-t.C:
				v.redraw()
			case <-v.done:
				// Drain what is already queued so the summary is complete.
				for {
					select {
					case ev := <-events:
						v.act.Apply(ev)
					default:
						v.redraw()
						return
					}
				}
			}
		}
	}()
	return v
}

func (v *liveView) redraw() {
	if v.area == nil {
		return
	}
	text := v.renderer.Render(v.act.Snapshot())
	v.mu.Lock()
	for _, n := range v.notes {
		text += "\n" + pterm.FgGray.Sprint(n)
	}
	v.mu.Unlock()
	v.area.Update(text)
}

// note adds a line under the status display, or prints it when not interactive.
func (v *liveView) note(line string) {
	if v.area == nil {
		pterm.Info.Println(line)
		return
	}
	v.mu.Lock()
	v.notes = append(v.notes, line)
	v.mu.Unlock()
}

// stop ends rendering and returns the final state.
func (v *liveView) stop() tunnel.ActivitySnapshot {
	close(v.done)
	v.wg.Wait()
	if v.area != nil {
		_ = v.area.Stop()
		cursor.Show()
	}
	return v.act.Snapshot()
}

func init() {
	startCmd.Flags().BoolVar(&startRegister, "register", false, "Register discovered models with MindStudio before starting")
	startCmd.Flags().IntVar(&startConcurrency, "concurrency", 0, "Maximum requests executed at once (0 means unlimited)")
	rootCmd.AddCommand(startCmd)
}
