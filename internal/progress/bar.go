// Package progress renders a single-line terminal progress bar for the
// upload and catalog-build phases.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	barWidth      = 40
	refreshEvery  = 500 * time.Millisecond
	filledSegment = "█"
	emptySegment  = "░"
)

// Bar tracks completion of a fixed number of items. Safe for concurrent
// Increment calls from the worker pool.
type Bar struct {
	label string
	total int

	mu       sync.Mutex
	current  int
	started  time.Time
	rendered time.Time
	done     bool
}

// New returns a bar for total items, prefixed with label.
func New(total int, label string) *Bar {
	return &Bar{
		label:   label,
		total:   total,
		started: time.Now(),
	}
}

// Increment records one completed item and redraws at most twice a
// second, plus once at completion.
func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	if time.Since(b.rendered) > refreshEvery || b.current >= b.total {
		b.render()
	}
}

// Finish draws the full bar and releases the terminal line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.current = b.total
	b.render()
	fmt.Println()
	b.done = true
}

// render redraws in place. Caller holds mu.
func (b *Bar) render() {
	if b.done || b.total <= 0 {
		return
	}

	elapsed := time.Since(b.started)
	var eta time.Duration
	if b.current > 0 {
		eta = elapsed / time.Duration(b.current) * time.Duration(b.total-b.current)
	}

	filled := barWidth * b.current / b.total
	bar := strings.Repeat(filledSegment, filled) + strings.Repeat(emptySegment, barWidth-filled)

	fmt.Printf("\r%s [%s] %d/%d (%.1f%%) - Elapsed: %s - ETA: %s   ",
		b.label,
		bar,
		b.current,
		b.total,
		float64(b.current)/float64(b.total)*100,
		formatDuration(elapsed),
		formatDuration(eta),
	)
	b.rendered = time.Now()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
