// Package clock provides the millisecond time base and the software timer
// wheel used by the CV engine.
package clock

import (
	"sync/atomic"
	"time"
)

// Source is a free-running millisecond counter. Values wrap modulo 2^32, so
// callers compute elapsed time with unsigned subtraction.
type Source interface {
	Millis() uint32
}

// Counter is a manually advanced Source. Tick plays the role of the 1 ms
// timer interrupt; reads and writes are atomic so a ticking goroutine and
// the engine loop can share it.
type Counter struct {
	ms atomic.Uint32
}

// NewCounter creates a Counter starting at the given value
func NewCounter(start uint32) *Counter {
	c := &Counter{}
	c.ms.Store(start)
	return c
}

// Millis returns the current count
func (c *Counter) Millis() uint32 {
	return c.ms.Load()
}

// Tick advances the counter by one millisecond
func (c *Counter) Tick() {
	c.ms.Add(1)
}

// Advance advances the counter by n milliseconds
func (c *Counter) Advance(n uint32) {
	c.ms.Add(n)
}

// Wall is a Source backed by the monotonic wall clock
type Wall struct {
	start time.Time
}

// NewWall creates a Wall source that reads zero now
func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

// Millis returns milliseconds since the source was created
func (w *Wall) Millis() uint32 {
	return uint32(time.Since(w.start) / time.Millisecond)
}

// Since returns now-then, correct across a counter wrap
func Since(now, then uint32) uint32 {
	return now - then
}
