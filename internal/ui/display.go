package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/jonasfh/picobell/internal/doorbell"
)

// Display prints the status panel to a writer whenever it changes. It
// implements doorbell.Display.
type Display struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	last  string
}

// NewDisplay returns a Display writing to out. A width of 0 uses the
// terminal width.
func NewDisplay(out io.Writer, width int) *Display {
	if width <= 0 {
		width = GetTerminalWidth()
	}
	return &Display{out: out, width: width}
}

func (d *Display) Show(s doorbell.Status) {
	// Uptime and the window countdown change every call; they do not
	// count as a change on their own.
	key := s
	key.Uptime = 0
	key.WindowRemaining = 0
	key.OTA = nil
	ident := fmt.Sprintf("%+v|%+v", key, s.OTA)

	d.mu.Lock()
	defer d.mu.Unlock()
	if ident == d.last {
		return
	}
	d.last = ident
	_, _ = fmt.Fprintln(d.out, RenderPanel(s, d.width))
}
