// Package engine routes MIDI events to the two CV lanes and the step
// sequencer, and drives their time-based updates.
package engine

import (
	"log/slog"
	"time"

	"github.com/james-see/dfam2cv/pkg/ccmap"
	"github.com/james-see/dfam2cv/pkg/clock"
	"github.com/james-see/dfam2cv/pkg/cv"
	"github.com/james-see/dfam2cv/pkg/event"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/sequencer"
)

// SwitchPollInterval is how often the mode switch and sync button are read
const SwitchPollInterval = 20 // ms

// Config wires an Engine
type Config struct {
	Clock    clock.Source
	Sink     hw.Sink
	Controls hw.Controls
	Profile  Profile
	Logger   *slog.Logger
}

// Engine is the whole real-time core. It is not safe for concurrent use;
// wrap it in a Runner to drive it from several goroutines.
type Engine struct {
	clk      clock.Source
	sched    *clock.Scheduler
	sink     hw.Sink
	controls hw.Controls
	log      *slog.Logger

	settings Settings
	ccMap    ccmap.Map
	a, b     *cv.Channel
	seq      *sequencer.Sequencer
	tempo    *Tempo
}

// New builds an engine and performs the first switch poll, which drives the
// external sequencer to step 1. A nil Clock uses wall time and nil Controls
// default to clock-controlled mode.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewWall()
	}
	if cfg.Controls == nil {
		cfg.Controls = &hw.StaticControls{ClockControlled: true}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Profile.Validate()

	e := &Engine{
		clk:      cfg.Clock,
		sched:    clock.NewScheduler(cfg.Clock),
		sink:     cfg.Sink,
		controls: cfg.Controls,
		log:      cfg.Logger.With("component", "engine"),
		settings: cfg.Profile.Global,
		ccMap:    ccmap.ForVersion(cfg.Profile.Global.CCMapVersion),
		tempo:    NewTempo(),
	}
	e.a = e.newChannel(hw.ChannelA, cfg.Profile.A, cfg.Logger)
	e.b = e.newChannel(hw.ChannelB, cfg.Profile.B, cfg.Logger)
	e.seq = sequencer.New(sequencer.Config{
		Sink:     cfg.Sink,
		Division: e.settings.ClockDivision,
		Width:    time.Duration(e.settings.AdvanceWidth) * time.Millisecond,
		Keys:     e.settings.Keys,
		Logger:   cfg.Logger,
	})

	e.pollControls()
	return e
}

func (e *Engine) newChannel(id hw.Channel, s cv.Settings, logger *slog.Logger) *cv.Channel {
	return cv.New(cv.Config{
		ID:        id,
		Settings:  s,
		CCMap:     e.ccMap,
		Clock:     e.clk,
		Scheduler: e.sched,
		Sink:      e.sink,
		Tempo:     e.tempo,
		Logger:    logger,
	})
}

func (e *Engine) pollControls() {
	e.seq.SetMode(e.controls.ModeSwitch())
	if e.controls.SyncButton() {
		e.seq.Sync()
	}
	e.sched.After(SwitchPollInterval, e.pollControls)
}

// Update is the 1 ms tick: it runs due timers, then lets both lanes
// recompute glide and vibrato
func (e *Engine) Update() {
	e.sched.Poll(e.clk.Millis())
	e.a.Progress()
	e.b.Progress()
}

// HandleEvent dispatches a decoded MIDI event
func (e *Engine) HandleEvent(ev event.Event) {
	switch ev.Kind {
	case event.NoteOn:
		e.NoteOn(ev.Channel, ev.Note, ev.Velocity)
	case event.NoteOff:
		e.NoteOff(ev.Channel, ev.Note, ev.Velocity)
	case event.ControlChange:
		e.ControlChange(ev.Channel, ev.Controller, ev.Value)
	case event.PitchBend:
		e.PitchBend(ev.Channel, ev.Bend)
	case event.Start:
		e.Start()
	case event.Stop:
		e.Stop()
	case event.Continue:
		e.Continue()
	case event.Clock:
		e.Clock()
	}
}

// velocityB reports whether lane B passes velocity through
func (e *Engine) velocityB() bool {
	return !e.settings.SuppressVelocityBInKCS || e.seq.ClockControlled()
}

// NoteOn routes a note on. channel is 1-16.
func (e *Engine) NoteOn(channel, note, velocity uint8) {
	if velocity == 0 {
		e.NoteOff(channel, note, 0)
		return
	}
	note &= 0x7F
	if channel == e.settings.KeyboardChannel && !e.seq.ClockControlled() {
		if e.seq.KeyboardNote(note) {
			e.sink.SetVelocity(hw.ChannelB, hw.VelocityDuty(velocity))
		}
		return
	}

	if e.settings.Mode == Poly {
		if channel != e.settings.ChannelA {
			return
		}
		// a note already sounding is struck again on its own lane
		if e.a.Held(note) {
			e.a.NoteOn(note, velocity, true, true)
			return
		}
		if _, busy := e.a.Latest(); !busy && !e.b.Held(note) {
			e.a.NoteOn(note, velocity, true, true)
			return
		}
		e.b.NoteOn(note, velocity, e.velocityB(), true)
		e.a.Fire()
		return
	}

	if channel == e.settings.ChannelA {
		e.a.NoteOn(note, velocity, true, true)
	}
	if channel == e.settings.ChannelB {
		e.b.NoteOn(note, velocity, e.velocityB(), true)
	}
}

// NoteOff routes a note off
func (e *Engine) NoteOff(channel, note, velocity uint8) {
	note &= 0x7F
	if channel == e.settings.KeyboardChannel && !e.seq.ClockControlled() {
		return
	}

	if e.settings.Mode == Poly {
		if channel != e.settings.ChannelA {
			return
		}
		for _, ch := range []*cv.Channel{e.a, e.b} {
			if !ch.Held(note) {
				continue
			}
			ch.NoteOff(note, velocity)
			if ch.HeldCount() == 0 {
				ch.ReleaseGate()
			}
			return
		}
		return
	}

	if channel == e.settings.ChannelA {
		e.a.NoteOff(note, velocity)
	}
	if channel == e.settings.ChannelB {
		e.b.NoteOff(note, velocity)
	}
}

// lanes returns the channels addressed by a MIDI channel
func (e *Engine) lanes(channel uint8) []*cv.Channel {
	if e.settings.Mode == Poly {
		if channel == e.settings.ChannelA {
			return []*cv.Channel{e.a, e.b}
		}
		return nil
	}
	var out []*cv.Channel
	if channel == e.settings.ChannelA {
		out = append(out, e.a)
	}
	if channel == e.settings.ChannelB {
		out = append(out, e.b)
	}
	return out
}

func (e *Engine) routed(channel uint8) bool {
	return channel == e.settings.ChannelA || channel == e.settings.ChannelB ||
		channel == e.settings.KeyboardChannel
}

// ControlChange routes a CC. Global actions apply from any routed channel;
// the rest are forwarded to the lanes on that channel.
func (e *Engine) ControlChange(channel, cc, value uint8) {
	if cc == ccmap.CCAllNotesOff {
		for _, ch := range e.lanes(channel) {
			ch.AllNotesOff()
		}
		return
	}

	if action, ok := e.ccMap.Lookup(cc); ok && action.Global() {
		if !e.routed(channel) {
			return
		}
		switch action {
		case ccmap.ClockDivision:
			e.settings.ClockDivision = sequencer.DivisionFromCC(value)
			e.seq.SetDivision(e.settings.ClockDivision)
		case ccmap.ClockAdvanceWidth:
			w := sequencer.WidthFromCC(value)
			e.settings.AdvanceWidth = uint8(w.Milliseconds())
			e.seq.SetWidth(w)
		}
		e.log.Debug("global control change", "action", action.String(), "value", value)
		return
	}

	for _, ch := range e.lanes(channel) {
		ch.ControlChange(cc, value)
	}
}

// PitchBend routes a bend
func (e *Engine) PitchBend(channel uint8, bend int16) {
	for _, ch := range e.lanes(channel) {
		ch.PitchBend(bend)
	}
}

// Start handles MIDI Start
func (e *Engine) Start() {
	e.tempo.Restart()
	e.seq.Start()
}

// Stop handles MIDI Stop
func (e *Engine) Stop() {
	e.seq.Stop()
}

// Continue handles MIDI Continue
func (e *Engine) Continue() {
	e.tempo.Restart()
	e.seq.Continue()
}

// Clock handles a MIDI timing clock
func (e *Engine) Clock() {
	e.tempo.Clock(e.clk.Millis())
	e.seq.Clock()
}

// AllNotesOff silences both lanes
func (e *Engine) AllNotesOff() {
	e.a.AllNotesOff()
	e.b.AllNotesOff()
}

// UpdateMIDIChannels assigns the channels for lane A, lane B and keyboard
// control. Held notes are released so nothing hangs on the old channel.
func (e *Engine) UpdateMIDIChannels(channels [3]uint8) {
	e.AllNotesOff()
	e.settings.ChannelA = channels[0]
	e.settings.ChannelB = channels[1]
	e.settings.KeyboardChannel = channels[2]
	e.settings.Validate()
	e.log.Info("midi channels updated",
		"a", e.settings.ChannelA, "b", e.settings.ChannelB, "keyboard", e.settings.KeyboardChannel)
}

// UpdateKeyboardPrefs replaces the keyboard-to-step table
func (e *Engine) UpdateKeyboardPrefs(keys [sequencer.Steps]uint8) {
	e.settings.Keys = keys
	e.settings.Validate()
	e.seq.SetKeys(e.settings.Keys)
}

// AdvanceToBeginning drives the external sequencer to step 1
func (e *Engine) AdvanceToBeginning() {
	e.seq.AdvanceToBeginning()
}

// Calibrate outputs the code for a calibration anchor on a lane
func (e *Engine) Calibrate(ch hw.Channel, point int) uint16 {
	return e.lane(ch).OutputAnchor(point)
}

// EndCalibration releases a held anchor on a lane
func (e *Engine) EndCalibration(ch hw.Channel) {
	e.lane(ch).EndCalibration()
}

// AdjustCalibration corrects an anchor from a measured voltage
func (e *Engine) AdjustCalibration(ch hw.Channel, point int, volts float64) bool {
	return e.lane(ch).AdjustAnchor(point, volts)
}

func (e *Engine) lane(ch hw.Channel) *cv.Channel {
	if ch == hw.ChannelB {
		return e.b
	}
	return e.a
}

// Snapshot returns the persisted configuration
func (e *Engine) Snapshot() Profile {
	return Profile{Global: e.settings, A: e.a.Settings(), B: e.b.Settings()}
}

// Apply replaces the whole configuration
func (e *Engine) Apply(p Profile) {
	p.Validate()
	if p.Global.Mode != e.settings.Mode || p.Global.ChannelA != e.settings.ChannelA ||
		p.Global.ChannelB != e.settings.ChannelB || p.Global.KeyboardChannel != e.settings.KeyboardChannel {
		e.AllNotesOff()
	}
	e.settings = p.Global
	e.ccMap = ccmap.ForVersion(p.Global.CCMapVersion)
	e.a.SetCCMap(e.ccMap)
	e.b.SetCCMap(e.ccMap)
	e.a.SetSettings(p.A)
	e.b.SetSettings(p.B)
	e.seq.SetDivision(p.Global.ClockDivision)
	e.seq.SetWidth(time.Duration(p.Global.AdvanceWidth) * time.Millisecond)
	e.seq.SetKeys(p.Global.Keys)
}

// CCMap returns the active CC table
func (e *Engine) CCMap() ccmap.Map { return e.ccMap }

// Millis returns the engine clock
func (e *Engine) Millis() uint32 { return e.clk.Millis() }

// LaneState describes one CV lane for display
type LaneState struct {
	Note        uint8   `json:"note"`
	Sounding    bool    `json:"sounding"`
	Held        int     `json:"held"`
	Sliding     bool    `json:"sliding"`
	Vibrato     float64 `json:"vibrato"`
	Bend        float64 `json:"bend"`
	Code        uint16  `json:"code"`
	HasOutput   bool    `json:"hasOutput"`
	Calibrating bool    `json:"calibrating"`
}

// State summarizes the engine for display
type State struct {
	Mode      Mode            `json:"mode"`
	Lanes     [2]LaneState    `json:"lanes"`
	Sequencer sequencer.State `json:"sequencer"`
	BPM       float64         `json:"bpm"`
	Millis    uint32          `json:"millis"`
}

// State returns a snapshot of the runtime state
func (e *Engine) State() State {
	st := State{
		Mode:      e.settings.Mode,
		Sequencer: e.seq.State(),
		BPM:       e.tempo.BPM(),
		Millis:    e.clk.Millis(),
	}
	for i, ch := range []*cv.Channel{e.a, e.b} {
		note, ok := ch.Note()
		code, wrote := ch.Output()
		st.Lanes[i] = LaneState{
			Note:        note,
			Sounding:    ok && ch.HeldCount() > 0,
			Held:        ch.HeldCount(),
			Sliding:     ch.Sliding(),
			Vibrato:     ch.VibratoOffset(),
			Bend:        ch.Bend(),
			Code:        code,
			HasOutput:   wrote,
			Calibrating: ch.Calibrating(),
		}
	}
	return st
}
