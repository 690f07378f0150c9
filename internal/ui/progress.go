package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	defaultBarWidth = 40
	maxBarWidth     = 60
)

// Progress draws a single-line bar that is redrawn in place with \r.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	width int
	last  int // last drawn percentage, -1 before the first draw
	label string
	color bool
}

// NewProgress returns a bar on f, or nil when f is not a terminal. A nil
// *Progress is safe to use and draws nothing.
func NewProgress(f *os.File, label string) *Progress {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	width := defaultBarWidth
	if cols, _, err := term.GetSize(fd); err == nil {
		// Leave room for the label and the percentage.
		width = min(max(cols-len(label)-10, 10), maxBarWidth)
	}
	p := NewProgressWriter(f, label, width)
	p.color = ShouldUseColor(f)
	return p
}

// NewProgressWriter returns an uncolored bar on w with a fixed width.
func NewProgressWriter(w io.Writer, label string, width int) *Progress {
	return &Progress{w: w, width: width, last: -1, label: label}
}

// Update redraws the bar for fraction in [0, 1]. Redraws are skipped when
// the visible percentage has not changed.
func (p *Progress) Update(fraction float64) {
	if p == nil {
		return
	}
	fraction = min(max(fraction, 0), 1)
	pct := int(fraction * 100)

	p.mu.Lock()
	defer p.mu.Unlock()
	if pct == p.last {
		return
	}
	p.last = pct

	filled := int(fraction * float64(p.width))
	done, rest := strings.Repeat("#", filled), strings.Repeat(".", p.width-filled)
	if p.color {
		done, rest = RenderAccent(done), RenderMuted(rest)
	}
	bar := done + rest
	fmt.Fprintf(p.w, "\r%s [%s] %3d%%", p.label, bar, pct)
}

// Done ends the line so later log output starts on a fresh line.
func (p *Progress) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}
