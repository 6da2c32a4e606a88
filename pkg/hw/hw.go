// Package hw defines the hardware boundary of the engine: the sink that
// receives DAC codes, gate, velocity, clock-advance and LED writes, and the
// debounced physical controls it reads.
package hw

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Channel selects one of the two CV lanes
type Channel uint8

const (
	ChannelA Channel = iota
	ChannelB
)

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return fmt.Sprintf("ch%d", uint8(c))
	}
}

// ParseChannel accepts "a", "b", "0" or "1"
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "0":
		return ChannelA, nil
	case "b", "1":
		return ChannelB, nil
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// LED identifies an indicator
type LED uint8

const (
	LEDMode  LED = iota // lit in clock-controlled mode
	LEDClock            // flashes on each clock advance
	LEDError            // raw MIDI buffer overflow
)

func (l LED) String() string {
	switch l {
	case LEDMode:
		return "mode"
	case LEDClock:
		return "clock"
	case LEDError:
		return "error"
	default:
		return fmt.Sprintf("led%d", uint8(l))
	}
}

// Sink receives every output the engine produces. Implementations must not
// block; the engine calls them from its real-time loop.
type Sink interface {
	WriteDAC(ch Channel, code uint16)
	SetGate(ch Channel, high bool)
	SetVelocity(ch Channel, duty uint8)
	PulseClockAdvance(width time.Duration)
	SetLED(led LED, on bool)
}

// Controls supplies debounced physical inputs
type Controls interface {
	// ModeSwitch is true for clock-controlled mode, false for keyboard mode
	ModeSwitch() bool
	// SyncButton is true while the resync button is held
	SyncButton() bool
}

// StaticControls is a Controls with fixed, settable values
type StaticControls struct {
	ClockControlled bool
	Sync            bool
}

// ModeSwitch implements Controls
func (s *StaticControls) ModeSwitch() bool { return s.ClockControlled }

// SyncButton implements Controls
func (s *StaticControls) SyncButton() bool { return s.Sync }

// Switches is a Controls that other goroutines can operate while the engine
// polls it. A sync press is latched until the next poll reads it.
type Switches struct {
	clockControlled atomic.Bool
	sync            atomic.Bool
}

// NewSwitches creates Switches with the mode switch in the given position
func NewSwitches(clockControlled bool) *Switches {
	s := &Switches{}
	s.clockControlled.Store(clockControlled)
	return s
}

// SetModeSwitch moves the mode switch
func (s *Switches) SetModeSwitch(clockControlled bool) { s.clockControlled.Store(clockControlled) }

// PressSync presses the sync button once
func (s *Switches) PressSync() { s.sync.Store(true) }

// ModeSwitch implements Controls
func (s *Switches) ModeSwitch() bool { return s.clockControlled.Load() }

// SyncButton implements Controls and releases a latched press
func (s *Switches) SyncButton() bool { return s.sync.Swap(false) }

// VelocityDuty scales a 0-127 MIDI velocity to the 8-bit PWM duty range
func VelocityDuty(velocity uint8) uint8 {
	if velocity > 127 {
		velocity = 127
	}
	return uint8(uint16(velocity) * 0xFF / 0x7F)
}

// Multi fans every call out to several sinks in order
type Multi []Sink

func (m Multi) WriteDAC(ch Channel, code uint16) {
	for _, s := range m {
		s.WriteDAC(ch, code)
	}
}

func (m Multi) SetGate(ch Channel, high bool) {
	for _, s := range m {
		s.SetGate(ch, high)
	}
}

func (m Multi) SetVelocity(ch Channel, duty uint8) {
	for _, s := range m {
		s.SetVelocity(ch, duty)
	}
}

func (m Multi) PulseClockAdvance(width time.Duration) {
	for _, s := range m {
		s.PulseClockAdvance(width)
	}
}

func (m Multi) SetLED(led LED, on bool) {
	for _, s := range m {
		s.SetLED(led, on)
	}
}
