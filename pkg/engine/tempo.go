package engine

import "github.com/james-see/dfam2cv/pkg/ringbuf"

const (
	// TempoWindow is the number of clock periods averaged
	TempoWindow = 12
	// maxClockGap drops periods longer than this as a transport pause (ms)
	maxClockGap = 1000
)

// Tempo tracks the average MIDI clock period
type Tempo struct {
	periods *ringbuf.Buffer[uint32]
	last    uint32
	seen    bool
}

// NewTempo creates an empty tracker
func NewTempo() *Tempo {
	return &Tempo{periods: ringbuf.NewOverwrite[uint32](TempoWindow)}
}

// Clock records a clock message received at now
func (t *Tempo) Clock(now uint32) {
	if t.seen {
		if d := now - t.last; d > 0 && d < maxClockGap {
			t.periods.Put(d)
		}
	}
	t.last = now
	t.seen = true
}

// Restart forgets the previous clock time so a paused transport does not
// register as a long period
func (t *Tempo) Restart() {
	t.seen = false
}

// ClockPeriod returns the average clock period in ms, or zero when unknown
func (t *Tempo) ClockPeriod() float64 {
	n := t.periods.Ready()
	if n == 0 {
		return 0
	}
	var sum uint32
	t.periods.Each(func(d uint32) { sum += d })
	return float64(sum) / float64(n)
}

// BPM returns the tempo in quarter notes per minute, or zero when unknown
func (t *Tempo) BPM() float64 {
	p := t.ClockPeriod()
	if p == 0 {
		return 0
	}
	return 60000 / (p * 24)
}
