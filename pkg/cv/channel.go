// Package cv implements one monophonic CV lane: pitch with glide, vibrato and
// bend, a held-note history for retrigger priority, gate/trigger and velocity.
package cv

import (
	"log/slog"

	"github.com/james-see/dfam2cv/pkg/ccmap"
	"github.com/james-see/dfam2cv/pkg/clock"
	"github.com/james-see/dfam2cv/pkg/dac"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/ringbuf"
)

// HistorySize is the number of note-ons remembered for latest-note retrigger
const HistorySize = 20

// Config wires a Channel to its collaborators
type Config struct {
	ID        hw.Channel
	Settings  Settings
	CCMap     ccmap.Map
	Clock     clock.Source
	Scheduler *clock.Scheduler
	Sink      hw.Sink
	Tempo     TempoSource
	Logger    *slog.Logger
}

// Channel is the state of one CV lane. It is not safe for concurrent use;
// the engine owns it from a single goroutine.
type Channel struct {
	id       hw.Channel
	settings Settings
	ccMap    ccmap.Map
	clock    clock.Source
	sched    *clock.Scheduler
	sink     hw.Sink
	tempo    TempoSource
	log      *slog.Logger

	held     [128]bool
	velocity [128]uint8
	history  *ringbuf.Buffer[uint8]

	hasNote     bool
	startNote   uint8
	endNote     uint8
	sliding     bool
	slideStart  uint32
	slideLength uint32

	vibrato      float64
	bend         float64
	lastNoteOn   uint32
	sendVelocity bool

	release     clock.Handle
	output      uint16
	hasOutput   bool
	calibrating bool
}

// New creates a channel. A nil logger uses slog.Default and a nil CC map
// uses the latest table.
func New(cfg Config) *Channel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CCMap == nil {
		cfg.CCMap = ccmap.ForVersion(ccmap.Latest)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = clock.NewScheduler(cfg.Clock)
	}
	cfg.Settings.Validate()
	return &Channel{
		id:       cfg.ID,
		settings: cfg.Settings,
		ccMap:    cfg.CCMap,
		clock:    cfg.Clock,
		sched:    cfg.Scheduler,
		sink:     cfg.Sink,
		tempo:    cfg.Tempo,
		log:      cfg.Logger.With("component", "cv", "channel", cfg.ID.String()),
		history:  ringbuf.NewOverwrite[uint8](HistorySize),
	}
}

// ID returns the lane this channel drives
func (c *Channel) ID() hw.Channel { return c.id }

// Settings returns a copy of the current settings
func (c *Channel) Settings() Settings { return c.settings }

// SetSettings replaces the settings after validating them
func (c *Channel) SetSettings(s Settings) {
	s.Validate()
	prev := c.settings.TriggerMode
	c.settings = s
	if prev == TriggerGate && s.TriggerMode != TriggerGate {
		c.ReleaseGate()
	}
}

// SetCCMap swaps the CC table
func (c *Channel) SetCCMap(m ccmap.Map) {
	if m != nil {
		c.ccMap = m
	}
}

// NoteOn starts a note. addToHistory is false when a release retriggers an
// already held note.
func (c *Channel) NoteOn(note, velocity uint8, sendVelocity, addToHistory bool) {
	note &= 0x7F
	now := c.clock.Millis()

	c.held[note] = true
	c.velocity[note] = velocity
	if addToHistory {
		c.history.Put(note)
	}
	c.sendVelocity = sendVelocity
	c.lastNoteOn = now
	c.vibrato = 0
	c.calibrating = false

	if c.hasNote {
		c.startNote = c.endNote
	} else {
		c.startNote = note
		c.hasNote = true
	}
	c.endNote = note
	c.slideStart = now
	c.slideLength = c.glideLength(c.startNote, c.endNote)
	c.sliding = c.slideLength > 0
	c.emit(c.currentCode(now))

	if sendVelocity {
		c.sink.SetVelocity(c.id, hw.VelocityDuty(velocity))
	}
	switch c.settings.TriggerMode {
	case TriggerTrig:
		c.pulse()
	case TriggerGate:
		c.sched.Cancel(c.release)
		c.release = 0
		c.sink.SetGate(c.id, true)
	}
	c.log.Debug("note on", "note", note, "velocity", velocity, "slide_ms", c.slideLength)
}

// NoteOff releases a note. When other notes are still held and a retrigger
// mode is set, the selected held note is played again.
func (c *Channel) NoteOff(note, velocity uint8) {
	note &= 0x7F
	if !c.held[note] {
		return
	}
	c.held[note] = false
	c.log.Debug("note off", "note", note, "velocity", velocity)

	if next, ok := c.retriggerNote(); ok {
		c.NoteOn(next, c.velocity[next], c.sendVelocity, false)
		return
	}
	if c.settings.TriggerMode == TriggerGate && c.HeldCount() == 0 {
		c.ReleaseGate()
	}
}

func (c *Channel) retriggerNote() (uint8, bool) {
	switch c.settings.RetriggerMode {
	case RetriggerHighest:
		for n := 127; n >= 0; n-- {
			if c.held[n] {
				return uint8(n), true
			}
		}
	case RetriggerLowest:
		for n := 0; n < 128; n++ {
			if c.held[n] {
				return uint8(n), true
			}
		}
	case RetriggerLatest:
		return c.latestInHistory()
	}
	return 0, false
}

func (c *Channel) latestInHistory() (uint8, bool) {
	for i := 0; i < c.history.Ready(); i++ {
		n, _ := c.history.Last(i)
		if c.held[n] {
			return n, true
		}
	}
	return 0, false
}

// Latest returns the most recently started note that is still held
func (c *Channel) Latest() (uint8, bool) {
	if n, ok := c.latestInHistory(); ok {
		return n, true
	}
	// notes that fell out of the history are still held
	for n := 127; n >= 0; n-- {
		if c.held[n] {
			return uint8(n), true
		}
	}
	return 0, false
}

// Held reports whether note is currently held
func (c *Channel) Held(note uint8) bool { return c.held[note&0x7F] }

// HeldCount returns the number of held notes
func (c *Channel) HeldCount() int {
	n := 0
	for _, h := range c.held {
		if h {
			n++
		}
	}
	return n
}

// Sliding reports whether a glide is in progress
func (c *Channel) Sliding() bool { return c.sliding }

// VibratoOffset returns the current vibrato offset in semitones
func (c *Channel) VibratoOffset() float64 { return c.vibrato }

// Bend returns the normalized pitch bend in [-1, 1]
func (c *Channel) Bend() float64 { return c.bend }

// Output returns the last DAC code written, if any
func (c *Channel) Output() (uint16, bool) { return c.output, c.hasOutput }

// Note returns the target note of the current or last glide
func (c *Channel) Note() (uint8, bool) { return c.endNote, c.hasNote }

// PitchBend applies a 14-bit signed bend amount. Center is exactly zero.
func (c *Channel) PitchBend(amount int16) {
	amount = max(min(amount, 8191), -8192)
	if amount < 0 {
		c.bend = float64(amount) / 8192
	} else {
		c.bend = float64(amount) / 8191
	}
	if c.hasNote && !c.calibrating {
		c.emit(c.currentCode(c.clock.Millis()))
	}
}

// Progress advances the glide and vibrato and rewrites the DAC. The engine
// calls it every millisecond. A held calibration anchor is left alone.
func (c *Channel) Progress() {
	if !c.hasNote || c.calibrating {
		return
	}
	now := c.clock.Millis()
	c.updateVibrato(now)
	if c.sliding && now-c.slideStart >= c.slideLength {
		c.sliding = false
	}
	c.emit(c.currentCode(now))
}

// AllNotesOff clears every held note, the history and any glide
func (c *Channel) AllNotesOff() {
	c.held = [128]bool{}
	c.history.Reset()
	c.sliding = false
	c.vibrato = 0
	if c.settings.TriggerMode == TriggerGate {
		c.ReleaseGate()
	}
	if c.hasNote && !c.calibrating {
		c.emit(c.currentCode(c.clock.Millis()))
	}
	c.log.Debug("all notes off")
}

// Fire strikes the trigger without changing pitch. A gate that is held
// open by a note is re-struck (low then high) and stays high.
func (c *Channel) Fire() {
	switch c.settings.TriggerMode {
	case TriggerNone:
		return
	case TriggerGate:
		if c.HeldCount() > 0 {
			c.sched.Cancel(c.release)
			c.release = 0
			c.sink.SetGate(c.id, false)
			c.sink.SetGate(c.id, true)
			return
		}
	}
	c.pulse()
}

// OutputAnchor writes the code for a calibration anchor and returns it.
// The anchor is held until EndCalibration or the next note on.
func (c *Channel) OutputAnchor(point int) uint16 {
	code := c.settings.Calibration.AnchorCode(point)
	c.calibrating = true
	c.emit(code)
	return code
}

// Calibrating reports whether a calibration anchor is being held
func (c *Channel) Calibrating() bool { return c.calibrating }

// EndCalibration releases a held anchor and restores the note output
func (c *Channel) EndCalibration() {
	if !c.calibrating {
		return
	}
	c.calibrating = false
	if c.hasNote {
		c.emit(c.currentCode(c.clock.Millis()))
	}
}

// AdjustAnchor corrects a calibration anchor from a measured voltage
func (c *Channel) AdjustAnchor(point int, measuredVolts float64) bool {
	return c.settings.Calibration.Adjust(point, measuredVolts)
}

func (c *Channel) pulse() {
	c.sink.SetGate(c.id, true)
	c.sched.Cancel(c.release)
	c.release = c.sched.After(uint32(c.settings.TriggerLength), func() {
		c.release = 0
		c.sink.SetGate(c.id, false)
	})
}

// ReleaseGate lowers the gate/trigger line and cancels a pending pulse end
func (c *Channel) ReleaseGate() {
	c.sched.Cancel(c.release)
	c.release = 0
	c.sink.SetGate(c.id, false)
}

func (c *Channel) glideLength(from, to uint8) uint32 {
	if !c.settings.Portamento || from == to {
		return 0
	}
	if to > from {
		return uint32(c.settings.GlideUp)
	}
	return uint32(c.settings.GlideDown)
}

func (c *Channel) code(note uint8) uint16 {
	return dac.Code(note, c.bend, c.settings.BendRange, c.vibrato, &c.settings.Calibration)
}

func (c *Channel) currentCode(now uint32) uint16 {
	end := c.code(c.endNote)
	if !c.sliding {
		return end
	}
	elapsed := now - c.slideStart
	if elapsed >= c.slideLength {
		return end
	}
	start := int(c.code(c.startNote))
	return uint16(start + int(elapsed)*(int(end)-start)/int(c.slideLength))
}

func (c *Channel) emit(code uint16) {
	c.output = code
	c.hasOutput = true
	c.sink.WriteDAC(c.id, code)
}
