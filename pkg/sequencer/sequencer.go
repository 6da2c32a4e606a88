// Package sequencer keeps an external 8-step analog sequencer in sync with
// MIDI transport, or jumps it to keyboard-selected steps, by emitting
// clock-advance pulses.
package sequencer

import (
	"log/slog"
	"time"

	"github.com/james-see/dfam2cv/pkg/hw"
)

const (
	// PPQN is the MIDI clock resolution
	PPQN = 24
	// Steps is the length of the external sequence
	Steps = 8

	DefaultDivision = 4
	DefaultWidth    = 2 * time.Millisecond
	MaxWidth        = 10 * time.Millisecond
)

// Divisions are the legal clock divisions, in steps per quarter note
var Divisions = []uint8{1, 2, 3, 4, 6, 8, 12}

// DefaultKeys maps C3 major scale notes to steps 1..8
var DefaultKeys = [Steps]uint8{48, 50, 52, 53, 55, 57, 59, 60}

// StepsBetween returns the number of advances that, followed by one more,
// move the sequence from start to end. An unknown start (0) or start equal
// to end yields a full revolution less one.
func StepsBetween(start, end uint8) uint8 {
	if start == 0 || start == end {
		return Steps - 1
	}
	n := int(end) - int(start) - 1
	if n < 0 {
		n += Steps
	}
	return uint8(n)
}

// DivisionFromCC scales a 0-127 value onto Divisions
func DivisionFromCC(value uint8) uint8 {
	idx := int(value&0x7F) * len(Divisions) / 127
	if idx >= len(Divisions) {
		idx = len(Divisions) - 1
	}
	return Divisions[idx]
}

// WidthFromCC scales a 0-127 value onto 1..MaxWidth
func WidthFromCC(value uint8) time.Duration {
	ms := 1 + int(value&0x7F)*9/127
	return time.Duration(ms) * time.Millisecond
}

// ValidDivision snaps d to the largest legal division not above it
func ValidDivision(d uint8) uint8 {
	best := Divisions[0]
	for _, v := range Divisions {
		if v <= d {
			best = v
		}
	}
	return best
}

// Config configures a Sequencer
type Config struct {
	Sink     hw.Sink
	Division uint8
	Width    time.Duration
	Keys     [Steps]uint8
	Logger   *slog.Logger
}

// State is a snapshot for display
type State struct {
	Step            uint8 `json:"step"`
	Count           uint8 `json:"count"`
	Following       bool  `json:"following"`
	ClockControlled bool  `json:"clockControlled"`
	Division        uint8 `json:"division"`
	WidthMs         int64 `json:"widthMs"`
}

// Sequencer is the mode controller. Transport events only act in
// clock-controlled mode and keyboard notes only in keyboard mode. It is not
// safe for concurrent use.
type Sequencer struct {
	sink hw.Sink
	log  *slog.Logger

	clockControlled bool
	modeKnown       bool
	following       bool
	step            uint8
	count           uint8
	division        uint8
	width           time.Duration
	keys            [Steps]uint8
}

// New creates a Sequencer. The mode is unknown until the first SetMode.
func New(cfg Config) *Sequencer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Sequencer{
		sink: cfg.Sink,
		log:  cfg.Logger.With("component", "sequencer"),
		keys: cfg.Keys,
	}
	s.SetDivision(cfg.Division)
	s.SetWidth(cfg.Width)
	return s
}

func (s *Sequencer) advance(n uint8) {
	for i := uint8(0); i < n; i++ {
		s.sink.PulseClockAdvance(s.width)
	}
	s.sink.SetLED(hw.LEDClock, s.step%2 == 1)
}

// Start restarts the sequence and begins following the MIDI clock
func (s *Sequencer) Start() {
	if !s.clockControlled {
		return
	}
	s.advance(StepsBetween(s.step, 1))
	s.following = true
	s.count = 0
	s.step = 0
	s.log.Debug("start")
}

// Stop freezes the sequence position
func (s *Sequencer) Stop() {
	if !s.clockControlled {
		return
	}
	s.following = false
	s.log.Debug("stop", "step", s.step)
}

// Continue resumes following without repositioning
func (s *Sequencer) Continue() {
	if !s.clockControlled {
		return
	}
	s.following = true
	s.log.Debug("continue", "step", s.step)
}

// Clock counts one MIDI clock and reports whether it advanced a step
func (s *Sequencer) Clock() bool {
	if !s.clockControlled || !s.following {
		return false
	}
	per := PPQN / s.division
	s.count = s.count%per + 1
	if s.count != 1 {
		return false
	}
	s.step = s.step%Steps + 1
	s.advance(1)
	return true
}

// KeyboardNote jumps to the step mapped to note. It reports whether the note
// matched a step.
func (s *Sequencer) KeyboardNote(note uint8) bool {
	if s.clockControlled {
		return false
	}
	for i, k := range s.keys {
		if k != note {
			continue
		}
		target := uint8(i + 1)
		s.advance(StepsBetween(s.step, target) + 1)
		s.step = target
		s.log.Debug("keyboard step", "note", note, "step", target)
		return true
	}
	return false
}

// SetMode applies the mode switch position and reports whether it changed.
// The first call always counts as a change. On a change the sequence is
// driven back to step 1.
func (s *Sequencer) SetMode(clockControlled bool) bool {
	if s.modeKnown && s.clockControlled == clockControlled {
		return false
	}
	s.modeKnown = true
	s.clockControlled = clockControlled
	s.count = 0
	s.advance(StepsBetween(s.step, 1) + 1)
	if clockControlled {
		s.step = 0
	} else {
		s.following = false
		s.step = 1
	}
	s.sink.SetLED(hw.LEDMode, clockControlled)
	s.log.Info("mode changed", "clock_controlled", clockControlled)
	return true
}

// Sync marks the current position as step 1 without emitting pulses
func (s *Sequencer) Sync() {
	s.step = 1
}

// AdvanceToBeginning drives the sequence to step 1
func (s *Sequencer) AdvanceToBeginning() {
	s.advance(StepsBetween(s.step, 1) + 1)
	s.step = 1
	s.count = 0
}

// SetDivision sets the steps per quarter note, snapped to Divisions
func (s *Sequencer) SetDivision(d uint8) {
	if d == 0 {
		d = DefaultDivision
	}
	s.division = ValidDivision(d)
	if per := PPQN / s.division; s.count > per {
		s.count = per
	}
}

// SetWidth sets the clock-advance pulse width, clamped to (0, MaxWidth]
func (s *Sequencer) SetWidth(w time.Duration) {
	if w <= 0 {
		w = DefaultWidth
	}
	s.width = min(w, MaxWidth)
}

// SetKeys replaces the keyboard-to-step table
func (s *Sequencer) SetKeys(keys [Steps]uint8) { s.keys = keys }

func (s *Sequencer) Keys() [Steps]uint8    { return s.keys }
func (s *Sequencer) Step() uint8           { return s.step }
func (s *Sequencer) Division() uint8       { return s.division }
func (s *Sequencer) Width() time.Duration  { return s.width }
func (s *Sequencer) Following() bool       { return s.following }
func (s *Sequencer) ClockControlled() bool { return s.clockControlled }

// State returns a snapshot
func (s *Sequencer) State() State {
	return State{
		Step:            s.step,
		Count:           s.count,
		Following:       s.following,
		ClockControlled: s.clockControlled,
		Division:        s.division,
		WidthMs:         s.width.Milliseconds(),
	}
}
