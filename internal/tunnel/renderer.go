package tunnel

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Renderer turns an ActivitySnapshot into the lines of the live display.
// Lines are padded to the widest line seen so shorter redraws do not leave residue.
type Renderer struct {
	mu         sync.Mutex
	frameIdx   int
	maxLineLen int
	now        func() time.Time
}

// NewRenderer creates a renderer instance.
func NewRenderer() *Renderer { return &Renderer{now: time.Now} }

// Render formats s and advances the spinner.
func (r *Renderer) Render(s ActivitySnapshot) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame := spinnerFrames[r.frameIdx%len(spinnerFrames)]
	r.frameIdx++

	var lines []string
	header := fmt.Sprintf("%s Tunnel running · %d models · %d in flight · %d done · %d failed",
		pterm.FgGreen.Sprint("●"), len(s.Models), len(s.Active), s.Completed, s.Failed)
	lines = append(lines, header)

	if s.LastPollError != "" {
		lines = append(lines, pterm.FgYellow.Sprintf("  ⚠ poll failed (%d so far): %s", s.PollErrors, truncate(s.LastPollError, 80)))
	}

	for _, rs := range s.Active {
		lines = append(lines, fmt.Sprintf("  %s %s %s %s",
			pterm.FgCyan.Sprint(frame), shortID(rs.ID), rs.Model, pterm.FgGray.Sprint(r.progressText(rs))))
	}
	for i := len(s.Recent) - 1; i >= 0; i-- {
		rs := s.Recent[i]
		if rs.Failed {
			lines = append(lines, fmt.Sprintf("  %s %s %s %s",
				pterm.FgRed.Sprint("✗"), shortID(rs.ID), rs.Model, pterm.FgGray.Sprint(truncate(rs.Message, 80))))
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s %s",
			pterm.FgGreen.Sprint("✓"), shortID(rs.ID), rs.Model, pterm.FgGray.Sprint(rs.Elapsed.Round(100*time.Millisecond))))
	}

	for i, l := range lines {
		lines[i] = r.formatLine(l)
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) progressText(rs RequestStatus) string {
	elapsed := r.now().Sub(rs.Started).Round(time.Second)
	switch {
	case rs.TotalSteps > 0:
		return fmt.Sprintf("step %d/%d · %s", rs.Step, rs.TotalSteps, elapsed)
	case rs.Chars > 0:
		return fmt.Sprintf("%d chars · %s", rs.Chars, elapsed)
	}
	return fmt.Sprintf("%s · %s", rs.Type, elapsed)
}

// formatLine pads line to the widest line seen so far.
func (r *Renderer) formatLine(line string) string {
	n := utf8.RuneCountInString(pterm.RemoveColorFromString(line))
	if n > r.maxLineLen {
		r.maxLineLen = n
	}
	if pad := r.maxLineLen - n; pad > 0 {
		return line + strings.Repeat(" ", pad)
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
