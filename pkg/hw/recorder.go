package hw

import (
	"fmt"
	"time"
)

// Op names a recorded Sink call
type Op string

const (
	OpDAC      Op = "dac"
	OpGate     Op = "gate"
	OpVelocity Op = "velocity"
	OpAdvance  Op = "advance"
	OpLED      Op = "led"
)

// Call is one recorded Sink call. At is filled from the Recorder's clock.
type Call struct {
	At      uint32        `json:"at"`
	Op      Op            `json:"op"`
	Channel Channel       `json:"channel"`
	Code    uint16        `json:"code,omitempty"`
	High    bool          `json:"high,omitempty"`
	Duty    uint8         `json:"duty,omitempty"`
	Width   time.Duration `json:"width,omitempty"`
	LED     LED           `json:"led,omitempty"`
}

func (c Call) String() string {
	switch c.Op {
	case OpDAC:
		return fmt.Sprintf("%8d dac      %s %4d", c.At, c.Channel, c.Code)
	case OpGate:
		return fmt.Sprintf("%8d gate     %s %v", c.At, c.Channel, c.High)
	case OpVelocity:
		return fmt.Sprintf("%8d velocity %s %3d", c.At, c.Channel, c.Duty)
	case OpAdvance:
		return fmt.Sprintf("%8d advance  %v", c.At, c.Width)
	case OpLED:
		return fmt.Sprintf("%8d led      %s %v", c.At, c.LED, c.High)
	default:
		return fmt.Sprintf("%8d %s", c.At, c.Op)
	}
}

// Recorder is a Sink that keeps every call. It is the fake hardware used by
// tests and by offline rendering.
type Recorder struct {
	now   func() uint32
	Calls []Call

	dac   [2]uint16
	gate  [2]bool
	duty  [2]uint8
	leds  map[LED]bool
	wrote [2]bool
}

// NewRecorder creates a Recorder stamping calls with now (may be nil)
func NewRecorder(now func() uint32) *Recorder {
	if now == nil {
		now = func() uint32 { return 0 }
	}
	return &Recorder{now: now, leds: make(map[LED]bool)}
}

func (r *Recorder) WriteDAC(ch Channel, code uint16) {
	r.Calls = append(r.Calls, Call{At: r.now(), Op: OpDAC, Channel: ch, Code: code})
	r.dac[ch&1] = code
	r.wrote[ch&1] = true
}

func (r *Recorder) SetGate(ch Channel, high bool) {
	r.Calls = append(r.Calls, Call{At: r.now(), Op: OpGate, Channel: ch, High: high})
	r.gate[ch&1] = high
}

func (r *Recorder) SetVelocity(ch Channel, duty uint8) {
	r.Calls = append(r.Calls, Call{At: r.now(), Op: OpVelocity, Channel: ch, Duty: duty})
	r.duty[ch&1] = duty
}

func (r *Recorder) PulseClockAdvance(width time.Duration) {
	r.Calls = append(r.Calls, Call{At: r.now(), Op: OpAdvance, Width: width})
}

func (r *Recorder) SetLED(led LED, on bool) {
	r.Calls = append(r.Calls, Call{At: r.now(), Op: OpLED, LED: led, High: on})
	r.leds[led] = on
}

// DAC returns the last code written to ch and whether any was written
func (r *Recorder) DAC(ch Channel) (uint16, bool) {
	return r.dac[ch&1], r.wrote[ch&1]
}

// Gate returns the current state of the gate/trigger line for ch
func (r *Recorder) Gate(ch Channel) bool {
	return r.gate[ch&1]
}

// Velocity returns the last duty written for ch
func (r *Recorder) Velocity(ch Channel) uint8 {
	return r.duty[ch&1]
}

// LED returns the state of an indicator
func (r *Recorder) LED(led LED) bool {
	return r.leds[led]
}

// Count returns the number of recorded calls of op
func (r *Recorder) Count(op Op) int {
	n := 0
	for _, c := range r.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps line state
func (r *Recorder) Reset() {
	r.Calls = r.Calls[:0]
}
