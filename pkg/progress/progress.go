// Package progress reports progress of long scans such as full audit
// verification.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Callback receives a progress update after each unit of work.
type Callback func(done, total int, label string)

// Noop discards progress updates.
func Noop(done, total int, label string) {}

const barWidth = 30

// Bar draws a single-line progress bar, redrawn in place.
type Bar struct {
	mu      sync.Mutex
	w       io.Writer
	op      string
	enabled bool
	lastLen int
	drawn   bool
}

// NewBar returns a bar for op writing to w. A disabled bar draws nothing.
func NewBar(w io.Writer, op string, enabled bool) *Bar {
	return &Bar{w: w, op: op, enabled: enabled}
}

// Callback returns a Callback that redraws b.
func (b *Bar) Callback() Callback {
	return func(done, total int, label string) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.enabled {
			return
		}
		b.render(done, total, label)
	}
}

func (b *Bar) render(done, total int, label string) {
	if total <= 0 {
		total = 1
	}
	if done > total {
		done = total
	}
	filled := barWidth * done / total
	line := fmt.Sprintf("%s [%s%s] %d/%d",
		b.op, strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled), done, total)
	if label != "" {
		line += " " + label
	}
	pad := ""
	if n := b.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(b.w, "\r"+line+pad)
	b.lastLen = len(line)
	b.drawn = true
}

// Finish ends the bar's line. It does nothing if the bar never drew.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled && b.drawn {
		fmt.Fprintln(b.w)
		b.drawn = false
	}
}
