package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/james-see/dfam2cv/pkg/event"
)

// ErrStopped is returned by Exec once the runner loop has exited
var ErrStopped = errors.New("engine runner stopped")

// TickInterval is the period of Engine.Update in the run loop
const TickInterval = time.Millisecond

// Runner owns an Engine from a single goroutine. Events and commands from
// other goroutines are passed in over channels.
type Runner struct {
	engine *Engine
	events chan event.Event
	cmds   chan func(*Engine)
	done   chan struct{}
	log    *slog.Logger
}

// NewRunner wraps e. depth bounds the event queue.
func NewRunner(e *Engine, depth int) *Runner {
	if depth <= 0 {
		depth = 256
	}
	return &Runner{
		engine: e,
		events: make(chan event.Event, depth),
		cmds:   make(chan func(*Engine)),
		done:   make(chan struct{}),
		log:    e.log.With("component", "runner"),
	}
}

// Submit queues an event without blocking. It returns false when the queue
// is full or the runner has stopped.
func (r *Runner) Submit(ev event.Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	default:
		r.log.Warn("event queue full, dropping", "event", ev.String())
		return false
	}
}

// Exec runs fn on the engine goroutine and waits for it to finish
func (r *Runner) Exec(ctx context.Context, fn func(*Engine)) error {
	finished := make(chan struct{})
	wrapped := func(e *Engine) {
		fn(e)
		close(finished)
	}
	select {
	case r.cmds <- wrapped:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the engine until ctx is cancelled (blocking - run in goroutine)
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	defer close(r.done)

	r.log.Info("engine running")
	for {
		select {
		case <-ctx.Done():
			r.engine.AllNotesOff()
			r.log.Info("engine stopped")
			return
		case ev := <-r.events:
			r.engine.HandleEvent(ev)
		case fn := <-r.cmds:
			fn(r.engine)
		case <-ticker.C:
			r.engine.Update()
		}
	}
}
