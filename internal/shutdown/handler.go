// Package shutdown turns interrupt signals into context cancellation so
// an upload run can stop cleanly between tracks.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler owns the run context. The first signal cancels it and runs the
// registered cleanups; a second signal exits immediately.
type Handler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cleanups []func()
	once     sync.Once
	finished chan struct{}
}

func New() *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// AddCleanup registers a function to run when shutdown begins. Cleanups
// run in registration order.
func (h *Handler) AddCleanup(fn func()) {
	h.mu.Lock()
	h.cleanups = append(h.cleanups, fn)
	h.mu.Unlock()
}

// Listen installs the signal handler.
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupt received, finishing current tracks (press again to abort)")
		h.Shutdown()

		<-sigChan
		os.Exit(130)
	}()
}

// Shutdown cancels the run context and executes the cleanups once.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.cancel()

		h.mu.Lock()
		fns := h.cleanups
		h.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
		close(h.finished)
	})
}

// Wait blocks until cleanups complete if a shutdown is in progress,
// and returns immediately otherwise.
func (h *Handler) Wait() {
	select {
	case <-h.ctx.Done():
		<-h.finished
	default:
	}
}
