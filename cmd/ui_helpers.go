package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/logging"
	"mindstudio/local/internal/model"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

var stickFrames = []string{"|", "/", "-", "\\"}

// startInlineSpinner starts a simple inline spinner animation on a single line.
// It displays rotating animation frames followed by the provided text, updating
// the same line in the terminal. The returned function stops the spinner and
// clears the line.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				// Clear the spinner line completely, then return
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

// isInteractive reports whether stdout is a terminal.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// presentError renders a command error for the user. Configuration errors are shown
// as their bare message; everything else is masked.
func presentError(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.Config, apperrors.Validation:
		return "❌ " + apperrors.MessageOf(err)
	}
	return "❌ " + logging.PresentError("Error", err)
}

// capabilityList joins capabilities for table cells.
func capabilityList(caps []model.Capability) string {
	parts := make([]string, 0, len(caps))
	for _, c := range caps {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ", ")
}

func runningMark(running bool) string {
	if running {
		return pterm.FgGreen.Sprint("● running")
	}
	return pterm.FgGray.Sprint("○ not running")
}
