// Package progress prints scan counters, rewriting a single line when the
// output is a terminal.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

type Counter struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	total int
	n     int
	done  bool

	// InPlace rewrites the line with a carriage return on every update.
	// Otherwise only the final count is printed.
	InPlace bool
}

// New returns a counter for total items. A nil writer discards output.
func New(w io.Writer, label string, total int) *Counter {
	if w == nil {
		w = io.Discard
	}
	return &Counter{w: w, label: label, total: total, InPlace: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Add advances the counter by delta.
func (c *Counter) Add(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += delta
	if c.InPlace && !c.done {
		_, _ = fmt.Fprintf(c.w, "\r%s", c.line())
	}
}

// Done prints the final count and ends the line. Later calls are no-ops.
func (c *Counter) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	if c.InPlace {
		_, _ = fmt.Fprintf(c.w, "\r%s\n", c.line())
		return
	}
	_, _ = fmt.Fprintln(c.w, c.line())
}

func (c *Counter) line() string {
	if c.total <= 0 {
		return fmt.Sprintf("%s %s", c.label, humanize.Comma(int64(c.n)))
	}
	return fmt.Sprintf("%s %s/%s", c.label, humanize.Comma(int64(c.n)), humanize.Comma(int64(c.total)))
}
