// Package terminal erases prompts the CLI has already printed, so secrets typed by
// the user (an API key for `auth set-key`) leave nothing behind on screen.
package terminal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 80

// ClearPrompt erases a prompt of promptLen characters after the user pressed Enter.
// Input read with echo disabled takes no room, so only the prompt and the line the
// cursor moved to are cleared.
func ClearPrompt(promptLen int) {
	width := defaultWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	clearLines(wrappedLines(promptLen, width) + 1)
}

// wrappedLines is the number of rows n characters occupy at the given width.
func wrappedLines(n, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	if n <= 0 {
		return 1
	}
	return (n + width - 1) / width
}

// clearLines blanks the current row and the n-1 rows above it, leaving the cursor
// at the start of the topmost one.
func clearLines(n int) {
	for i := 0; i < n; i++ {
		fmt.Print("\r\x1b[2K")
		if i < n-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
