package cv

import (
	"math"
	"testing"

	"github.com/james-see/dfam2cv/pkg/ccmap"
	"github.com/james-see/dfam2cv/pkg/clock"
	"github.com/james-see/dfam2cv/pkg/dac"
	"github.com/james-see/dfam2cv/pkg/hw"
)

type rig struct {
	clk   *clock.Counter
	sched *clock.Scheduler
	rec   *hw.Recorder
	ch    *Channel
}

func newRig(t *testing.T, s Settings) *rig {
	t.Helper()
	clk := clock.NewCounter(0)
	sched := clock.NewScheduler(clk)
	rec := hw.NewRecorder(clk.Millis)
	ch := New(Config{
		ID:        hw.ChannelA,
		Settings:  s,
		Clock:     clk,
		Scheduler: sched,
		Sink:      rec,
	})
	return &rig{clk: clk, sched: sched, rec: rec, ch: ch}
}

// step advances time one millisecond at a time the way the engine loop does
func (r *rig) step(ms int) {
	for i := 0; i < ms; i++ {
		r.clk.Tick()
		r.sched.Poll(r.clk.Millis())
		r.ch.Progress()
	}
}

func nominal(note uint8) uint16 {
	ns := dac.NominalScale
	return uint16(float64(int(note)-dac.MinNote) * ns)
}

type fixedTempo float64

func (f fixedTempo) ClockPeriod() float64 { return float64(f) }

func TestNoteOnWritesCodeAndTrigger(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.NoteOn(60, 100, true, true)

	code, ok := r.rec.DAC(hw.ChannelA)
	if !ok || code != nominal(60) {
		t.Fatalf("DAC = %d,%v, want %d", code, ok, nominal(60))
	}
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("trigger not raised")
	}
	if got := r.rec.Velocity(hw.ChannelA); got != hw.VelocityDuty(100) {
		t.Errorf("velocity duty = %d, want %d", got, hw.VelocityDuty(100))
	}

	r.step(1)
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("trigger cleared after 1 ms")
	}
	r.step(1)
	if r.rec.Gate(hw.ChannelA) {
		t.Fatal("trigger still high after 2 ms")
	}
}

func TestNoteOnWithoutVelocity(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.NoteOn(60, 100, false, true)
	if n := r.rec.Count(hw.OpVelocity); n != 0 {
		t.Errorf("velocity writes = %d, want 0", n)
	}
}

func TestRepeatedNoteOnIsIdempotent(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.NoteOn(60, 100, true, true)
	r.ch.NoteOn(60, 100, true, true)
	if r.ch.HeldCount() != 1 {
		t.Errorf("HeldCount = %d, want 1", r.ch.HeldCount())
	}
	if code, _ := r.ch.Output(); code != nominal(60) {
		t.Errorf("output = %d, want %d", code, nominal(60))
	}
	if r.ch.Sliding() {
		t.Error("repeated note started a slide")
	}
}

func TestRetriggerPriority(t *testing.T) {
	tests := []struct {
		name string
		mode RetriggerMode
		want uint8
		ok   bool
	}{
		{"highest", RetriggerHighest, 44, true},
		{"lowest", RetriggerLowest, 40, true},
		{"latest", RetriggerLatest, 44, true},
		{"off", RetriggerOff, 48, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.RetriggerMode = tt.mode
			r := newRig(t, s)
			// history [40, 48, 44], then release 48
			r.ch.NoteOn(40, 90, true, true)
			r.ch.NoteOn(48, 90, true, true)
			r.ch.NoteOn(44, 90, true, true)
			r.ch.NoteOff(48, 0)

			note, _ := r.ch.Note()
			if tt.ok {
				if note != tt.want {
					t.Errorf("note = %d, want %d", note, tt.want)
				}
				if code, _ := r.ch.Output(); code != nominal(tt.want) {
					t.Errorf("output = %d, want %d", code, nominal(tt.want))
				}
			} else if note != 44 {
				t.Errorf("note changed to %d with retrigger off", note)
			}
			if r.ch.Held(48) {
				t.Error("48 still held")
			}
		})
	}
}

func TestRetriggerLatestSkipsReleased(t *testing.T) {
	s := DefaultSettings()
	s.RetriggerMode = RetriggerLatest
	r := newRig(t, s)
	r.ch.NoteOn(40, 90, true, true)
	r.ch.NoteOn(44, 90, true, true)
	r.ch.NoteOn(48, 90, true, true)
	r.ch.NoteOff(44, 0)
	r.ch.NoteOff(48, 0)
	if note, _ := r.ch.Note(); note != 40 {
		t.Errorf("note = %d, want 40", note)
	}
	if n, ok := r.ch.Latest(); !ok || n != 40 {
		t.Errorf("Latest = %d,%v, want 40,true", n, ok)
	}
}

func TestLatestEmpty(t *testing.T) {
	r := newRig(t, DefaultSettings())
	if _, ok := r.ch.Latest(); ok {
		t.Error("Latest reported a note on an idle channel")
	}
	r.ch.NoteOn(50, 90, true, true)
	r.ch.NoteOff(50, 0)
	if _, ok := r.ch.Latest(); ok {
		t.Error("Latest reported a released note")
	}
}

func TestGateMode(t *testing.T) {
	s := DefaultSettings()
	s.TriggerMode = TriggerGate
	r := newRig(t, s)

	r.ch.NoteOn(50, 90, true, true)
	r.ch.NoteOn(52, 90, true, true)
	r.step(10)
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("gate dropped while notes held")
	}
	r.ch.NoteOff(50, 0)
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("gate dropped with one note still held")
	}
	r.ch.NoteOff(52, 0)
	if r.rec.Gate(hw.ChannelA) {
		t.Fatal("gate still high after last release")
	}
}

func TestTriggerNone(t *testing.T) {
	s := DefaultSettings()
	s.TriggerMode = TriggerNone
	r := newRig(t, s)
	r.ch.NoteOn(50, 90, true, true)
	r.ch.Fire()
	if n := r.rec.Count(hw.OpGate); n != 0 {
		t.Errorf("gate writes = %d, want 0", n)
	}
}

func TestFireRestartsPulse(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.Fire()
	r.step(1)
	r.ch.Fire()
	r.step(1)
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("refired pulse cut short")
	}
	r.step(1)
	if r.rec.Gate(hw.ChannelA) {
		t.Fatal("pulse not released")
	}
	if r.sched.Pending() != 0 {
		t.Errorf("pending callbacks = %d, want 0", r.sched.Pending())
	}
}

func TestGlide(t *testing.T) {
	s := DefaultSettings()
	s.Portamento = true
	s.GlideUp = 100
	s.GlideDown = 50
	r := newRig(t, s)

	r.ch.NoteOn(48, 90, true, true)
	if r.ch.Sliding() {
		t.Fatal("first note slid")
	}
	r.ch.NoteOn(60, 90, true, true)
	if !r.ch.Sliding() {
		t.Fatal("second note did not slide")
	}
	if code, _ := r.ch.Output(); code != nominal(48) {
		t.Errorf("slide start = %d, want %d", code, nominal(48))
	}

	r.step(50)
	lo, hi := int(nominal(48)), int(nominal(60))
	want := uint16(lo + 50*(hi-lo)/100)
	if code, _ := r.ch.Output(); code != want {
		t.Errorf("mid slide = %d, want %d", code, want)
	}

	r.step(50)
	if r.ch.Sliding() {
		t.Error("slide did not finish")
	}
	if code, _ := r.ch.Output(); code != nominal(60) {
		t.Errorf("slide end = %d, want %d", code, nominal(60))
	}

	// descending uses the down time
	r.ch.NoteOn(48, 90, true, true)
	r.step(49)
	if !r.ch.Sliding() {
		t.Fatal("descending slide ended early")
	}
	r.step(1)
	if code, _ := r.ch.Output(); code != nominal(48) {
		t.Errorf("descending end = %d, want %d", code, nominal(48))
	}
}

func TestGlideMonotonic(t *testing.T) {
	s := DefaultSettings()
	s.Portamento = true
	s.GlideUp = 200
	r := newRig(t, s)
	r.ch.NoteOn(30, 90, true, true)
	r.ch.NoteOn(90, 90, true, true)

	prev, _ := r.ch.Output()
	for i := 0; i < 220; i++ {
		r.step(1)
		code, _ := r.ch.Output()
		if code < prev {
			t.Fatalf("code fell from %d to %d at %d ms", prev, code, i+1)
		}
		prev = code
	}
	if prev != nominal(90) {
		t.Errorf("final = %d, want %d", prev, nominal(90))
	}
}

func TestPitchBend(t *testing.T) {
	tests := []struct {
		name   string
		amount int16
		bend   float64
	}{
		{"center", 0, 0},
		{"min", -8192, -1},
		{"max", 8191, 1},
		{"clamped", 8192 + 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, DefaultSettings())
			r.ch.PitchBend(tt.amount)
			if r.ch.Bend() != tt.bend {
				t.Errorf("Bend = %v, want %v", r.ch.Bend(), tt.bend)
			}
		})
	}
}

func TestPitchBendBeforeNote(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.PitchBend(4000)
	r.ch.Progress()
	if n := r.rec.Count(hw.OpDAC); n != 0 {
		t.Errorf("DAC writes before first note = %d, want 0", n)
	}
}

func TestPitchBendOffset(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.NoteOn(60, 90, true, true)
	r.ch.PitchBend(8191)
	ns := dac.NominalScale
	want := nominal(60) + uint16(2*ns)
	if code, _ := r.ch.Output(); code != want {
		t.Errorf("bent code = %d, want %d", code, want)
	}
}

func TestTriangle(t *testing.T) {
	tests := []struct {
		t       float64
		descend bool
		want    float64
	}{
		{0, false, 0},
		{50, false, 1},
		{100, false, 0},
		{150, false, -1},
		{200, false, 0},
		{0, true, 0},
		{50, true, -1},
		{150, true, 1},
	}

	for _, tt := range tests {
		got := Triangle(tt.t, 200, tt.descend)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Triangle(%v, 200, %v) = %v, want %v", tt.t, tt.descend, got, tt.want)
		}
	}
	if Triangle(10, 0, false) != 0 {
		t.Error("zero period did not yield zero")
	}
}

func TestShapeApply(t *testing.T) {
	tests := []struct {
		shape Shape
		in    float64
		want  float64
	}{
		{ShapeBipolar, -0.5, -0.5},
		{ShapeHalfWave, -0.5, 0},
		{ShapeHalfWave, 0.5, 0.5},
		{ShapeRectified, -0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.shape.String(), func(t *testing.T) {
			if got := tt.shape.Apply(tt.in); got != tt.want {
				t.Errorf("Apply(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVibrato(t *testing.T) {
	s := DefaultSettings()
	s.VibratoMode = VibratoFree
	s.VibratoPeriod = 200
	s.VibratoDepth = 100
	s.VibratoDelay = 20
	r := newRig(t, s)
	r.ch.NoteOn(60, 90, true, true)

	r.step(19)
	if r.ch.VibratoOffset() != 0 {
		t.Fatalf("vibrato active before delay: %v", r.ch.VibratoOffset())
	}
	r.step(1 + 50)
	if got := r.ch.VibratoOffset(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("peak offset = %v, want 1", got)
	}
	ns := dac.NominalScale
	if code, _ := r.ch.Output(); code != nominal(60)+uint16(ns) {
		t.Errorf("peak code = %d, want %d", code, nominal(60)+uint16(ns))
	}
	r.step(100)
	if got := r.ch.VibratoOffset(); math.Abs(got+1) > 1e-9 {
		t.Errorf("trough offset = %v, want -1", got)
	}
}

func TestVibratoTempoSync(t *testing.T) {
	s := DefaultSettings()
	s.VibratoMode = VibratoTempoSync
	s.VibratoDepth = 100
	s.VibratoDelay = 0
	s.VibratoDivision = 2 // 1/4

	clk := clock.NewCounter(0)
	rec := hw.NewRecorder(nil)
	ch := New(Config{ID: hw.ChannelB, Settings: s, Clock: clk, Sink: rec, Tempo: fixedTempo(10)})
	if p := ch.vibratoPeriod(); p != 240 {
		t.Errorf("synced period = %v, want 240", p)
	}

	ch.tempo = fixedTempo(0)
	if p := ch.vibratoPeriod(); p != float64(s.VibratoPeriod) {
		t.Errorf("fallback period = %v, want %d", p, s.VibratoPeriod)
	}
}

func TestAllNotesOff(t *testing.T) {
	s := DefaultSettings()
	s.TriggerMode = TriggerGate
	s.RetriggerMode = RetriggerLatest
	r := newRig(t, s)
	r.ch.NoteOn(50, 90, true, true)
	r.ch.NoteOn(55, 90, true, true)
	r.ch.AllNotesOff()

	if r.ch.HeldCount() != 0 {
		t.Errorf("HeldCount = %d, want 0", r.ch.HeldCount())
	}
	if r.rec.Gate(hw.ChannelA) {
		t.Error("gate still high")
	}
	if _, ok := r.ch.Latest(); ok {
		t.Error("history survived")
	}
}

func TestControlChange(t *testing.T) {
	tests := []struct {
		name  string
		cc    uint8
		value uint8
		check func(Settings) bool
	}{
		{"trigger length", ccmap.CCGeneralPurpose1, 127, func(s Settings) bool { return s.TriggerLength == MaxTriggerLength }},
		{"bend range", ccmap.CCGeneralPurpose4, 127, func(s Settings) bool { return s.BendRange == MaxBendRange }},
		{"portamento on", ccmap.CCPortamento, 64, func(s Settings) bool { return s.Portamento }},
		{"portamento off", ccmap.CCPortamento, 63, func(s Settings) bool { return !s.Portamento }},
		{"portamento time", ccmap.CCPortamentoTime, 127, func(s Settings) bool { return s.GlideUp == MaxGlide && s.GlideDown == MaxGlide }},
		{"asc time", ccmap.CCGeneralPurpose7, 127, func(s Settings) bool { return s.GlideUp == MaxGlide && s.GlideDown == 100 }},
		{"desc time", ccmap.CCGeneralPurpose8, 0, func(s Settings) bool { return s.GlideDown == 0 && s.GlideUp == 100 }},
		{"vibrato rate slow", ccmap.CCSoundController7, 0, func(s Settings) bool { return s.VibratoPeriod == 2000 }},
		{"vibrato depth enables", ccmap.CCSoundController8, 127, func(s Settings) bool {
			return s.VibratoDepth == MaxVibratoDepth && s.VibratoMode == VibratoFree
		}},
		{"vibrato delay", ccmap.CCSoundController9, 127, func(s Settings) bool { return s.VibratoDelay == MaxVibratoDelay }},
		{"tempo sync", ccmap.CCSoundController10, 100, func(s Settings) bool { return s.VibratoMode == VibratoTempoSync }},
		{"retrigger latest", ccmap.CCGeneralPurpose5, 127, func(s Settings) bool { return s.RetriggerMode == RetriggerLatest }},
		{"retrigger off", ccmap.CCGeneralPurpose5, 0, func(s Settings) bool { return s.RetriggerMode == RetriggerOff }},
		{"trigger gate", ccmap.CCGeneralPurpose6, 127, func(s Settings) bool { return s.TriggerMode == TriggerGate }},
		{"trigger none", ccmap.CCGeneralPurpose6, 0, func(s Settings) bool { return s.TriggerMode == TriggerNone }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, DefaultSettings())
			if !r.ch.ControlChange(tt.cc, tt.value) {
				t.Fatal("CC not applied")
			}
			if !tt.check(r.ch.Settings()) {
				t.Errorf("unexpected settings %+v", r.ch.Settings())
			}
		})
	}
}

func TestControlChangeIgnored(t *testing.T) {
	r := newRig(t, DefaultSettings())
	before := r.ch.Settings()
	for _, cc := range []uint8{ccmap.CCGeneralPurpose2, ccmap.CCGeneralPurpose3, 1, 7} {
		if r.ch.ControlChange(cc, 100) {
			t.Errorf("CC %d applied on channel", cc)
		}
	}
	if r.ch.Settings() != before {
		t.Error("settings changed")
	}
}

func TestVibratoRateSelectsDivisionWhenSynced(t *testing.T) {
	s := DefaultSettings()
	s.VibratoMode = VibratoTempoSync
	r := newRig(t, s)
	r.ch.ControlChange(ccmap.CCSoundController7, 127)
	if got := r.ch.Settings().VibratoDivision; int(got) != len(SyncDivisions)-1 {
		t.Errorf("division = %d, want %d", got, len(SyncDivisions)-1)
	}
}

func TestSettingsBinary(t *testing.T) {
	s := DefaultSettings()
	s.TriggerMode = TriggerGate
	s.RetriggerMode = RetriggerLowest
	s.Portamento = true
	s.GlideUp = 1234
	s.VibratoShape = ShapeRectified
	s.VibratoDescend = true
	s.Calibration[3] = 47.5

	data, err := s.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != s.Size() {
		t.Fatalf("len = %d, want %d", len(data), s.Size())
	}

	var got Settings
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	want := s
	for i, v := range want.Calibration {
		want.Calibration[i] = float64(float32(v))
	}
	if got != want {
		t.Errorf("decoded %+v\nwant    %+v", got, want)
	}

	if err := got.UnmarshalBinary(data[:10]); err == nil {
		t.Error("short record accepted")
	}
}

func TestSettingsValidate(t *testing.T) {
	s := Settings{
		TriggerMode:     9,
		RetriggerMode:   9,
		TriggerLength:   250,
		GlideUp:         9000,
		VibratoMode:     9,
		VibratoShape:    9,
		VibratoPeriod:   1,
		VibratoDivision: 200,
		VibratoDepth:    9000,
		VibratoDelay:    9000,
		BendRange:       99,
	}
	s.Calibration[4] = math.NaN()
	s.Validate()

	if s.TriggerMode != TriggerGate || s.RetriggerMode != RetriggerLatest ||
		s.VibratoMode != VibratoTempoSync || s.VibratoShape != ShapeRectified {
		t.Errorf("enums not clamped: %+v", s)
	}
	if s.TriggerLength != MaxTriggerLength || s.GlideUp != MaxGlide || s.VibratoPeriod != MinVibratoPeriod ||
		s.VibratoDepth != MaxVibratoDepth || s.VibratoDelay != MaxVibratoDelay || s.BendRange != MaxBendRange {
		t.Errorf("ranges not clamped: %+v", s)
	}
	if int(s.VibratoDivision) != len(SyncDivisions)-1 {
		t.Errorf("division = %d", s.VibratoDivision)
	}
	if s.Calibration[4] != dac.NominalScale || s.Calibration[0] != dac.NominalScale {
		t.Errorf("calibration not repaired: %v", s.Calibration)
	}
}

func TestEnumText(t *testing.T) {
	var m RetriggerMode
	if err := m.UnmarshalText([]byte("Latest")); err != nil || m != RetriggerLatest {
		t.Errorf("UnmarshalText = %v, %v", m, err)
	}
	if err := m.UnmarshalText([]byte("loudest")); err == nil {
		t.Error("unknown name accepted")
	}
	b, _ := VibratoTempoSync.MarshalText()
	if string(b) != "tempo-sync" {
		t.Errorf("MarshalText = %q", b)
	}
}

func TestFireKeepsHeldGateOpen(t *testing.T) {
	s := DefaultSettings()
	s.TriggerMode = TriggerGate
	r := newRig(t, s)
	r.ch.NoteOn(50, 100, true, true)
	r.rec.Reset()

	r.ch.Fire()
	if n := r.rec.Count(hw.OpGate); n != 2 {
		t.Errorf("gate writes = %d, want low then high", n)
	}
	r.step(int(s.TriggerLength) * 5)
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("gate dropped while a note is held")
	}

	r.ch.NoteOff(50, 0)
	if r.rec.Gate(hw.ChannelA) {
		t.Error("gate not released after the last note off")
	}

	r.ch.Fire()
	if !r.rec.Gate(hw.ChannelA) {
		t.Fatal("fire with nothing held did not pulse")
	}
	r.step(int(s.TriggerLength))
	if r.rec.Gate(hw.ChannelA) {
		t.Error("pulse with nothing held not released")
	}
}

func TestCalibrationAnchorHeld(t *testing.T) {
	r := newRig(t, DefaultSettings())
	r.ch.NoteOn(40, 100, true, true)
	noteCode, _ := r.ch.Output()

	anchor := r.ch.OutputAnchor(3)
	r.step(50)
	r.ch.PitchBend(8191)
	r.step(1)
	if got, _ := r.rec.DAC(hw.ChannelA); got != anchor {
		t.Fatalf("DAC = %d, want anchor %d held", got, anchor)
	}
	if !r.ch.Calibrating() {
		t.Fatal("not calibrating")
	}

	r.ch.PitchBend(0)
	r.ch.EndCalibration()
	if got, _ := r.rec.DAC(hw.ChannelA); got != noteCode {
		t.Errorf("DAC after exit = %d, want note code %d", got, noteCode)
	}

	r.ch.OutputAnchor(5)
	r.ch.NoteOn(60, 100, true, true)
	if r.ch.Calibrating() {
		t.Error("note on did not end calibration")
	}
	r.step(1)
	if got, _ := r.rec.DAC(hw.ChannelA); got != nominal(60) {
		t.Errorf("DAC = %d, want %d", got, nominal(60))
	}
}
