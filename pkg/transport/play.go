package transport

import (
	"context"
	"time"

	"github.com/james-see/dfam2cv/pkg/event"
)

// Submitter accepts events for the engine, reporting whether each was queued
type Submitter func(event.Event) bool

// Play submits events in real time, each at its offset from the call. It
// returns how many were queued and stops early when ctx is cancelled.
func Play(ctx context.Context, events []Timed, submit Submitter) (int, error) {
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	queued := 0
	for _, te := range events {
		due := start.Add(time.Duration(te.At) * time.Millisecond)
		if wait := time.Until(due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return queued, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return queued, err
		}
		if submit(te.Event) {
			queued++
		}
	}
	return queued, nil
}
