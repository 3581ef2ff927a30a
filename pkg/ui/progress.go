package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressBar renders a single-line download progress bar. It implements
// the orchestrator's progress callback and is safe for concurrent use.
type ProgressBar struct {
	out   io.Writer
	width int
	quiet bool

	mu       sync.Mutex
	rendered bool
}

// NewProgressBar creates a progress bar writing to stdout.
func NewProgressBar() *ProgressBar {
	return &ProgressBar{out: os.Stdout, width: 30}
}

// SetQuiet suppresses all output when enabled.
func (p *ProgressBar) SetQuiet(quiet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quiet = quiet
}

// Update redraws the bar with the current counts.
func (p *ProgressBar) Update(completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quiet {
		return
	}

	p.rendered = true

	filled := 0
	percent := 0
	if total > 0 {
		filled = completed * p.width / total
		percent = completed * 100 / total
	}
	if filled > p.width {
		filled = p.width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.out, "\r%s %3d%% (%d/%d)", Cyan(bar), percent, completed, total)
}

// Finish terminates the progress line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quiet || !p.rendered {
		return
	}
	fmt.Fprintln(p.out)
}
