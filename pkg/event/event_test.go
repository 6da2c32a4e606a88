package event

import (
	"encoding/json"
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

func TestFromMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  midi.Message
		want Event
	}{
		{"note on", midi.NoteOn(0, 60, 100), NewNoteOn(1, 60, 100)},
		{"note on zero velocity", midi.NoteOn(2, 60, 0), NewNoteOff(3, 60, 0)},
		{"note off", midi.NoteOffVelocity(15, 40, 64), NewNoteOff(16, 40, 64)},
		{"control change", midi.ControlChange(1, 16, 127), NewControlChange(2, 16, 127)},
		{"pitch bend", midi.Pitchbend(0, -8192), NewPitchBend(1, -8192)},
		{"start", midi.Start(), Event{Kind: Start}},
		{"stop", midi.Stop(), Event{Kind: Stop}},
		{"continue", midi.Continue(), Event{Kind: Continue}},
		{"clock", midi.TimingClock(), Event{Kind: Clock}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromMessage(tt.msg)
			if !ok {
				t.Fatal("message not decoded")
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromMessageIgnored(t *testing.T) {
	if _, ok := FromMessage(midi.ProgramChange(0, 5)); ok {
		t.Error("program change decoded")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	events := []Event{
		NewNoteOn(10, 48, 90),
		NewControlChange(1, 123, 0),
		NewPitchBend(2, 4000),
		{Kind: Clock},
	}
	for _, ev := range events {
		got, ok := FromMessage(ev.Message())
		if !ok || got != ev {
			t.Errorf("round trip %v gave %v", ev, got)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"note", NewNoteOn(1, 60, 100), true},
		{"realtime", Event{Kind: Start}, true},
		{"channel zero", NewNoteOn(0, 60, 100), false},
		{"channel 17", NewNoteOn(17, 60, 100), false},
		{"note range", NewNoteOn(1, 200, 100), false},
		{"bend range", NewPitchBend(1, 9000), false},
		{"unknown", Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestKindJSON(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(`{"kind":"note-on","channel":1,"note":60,"velocity":100}`), &ev); err != nil {
		t.Fatal(err)
	}
	if ev != NewNoteOn(1, 60, 100) {
		t.Errorf("decoded %v", ev)
	}
	if err := json.Unmarshal([]byte(`{"kind":"sysex"}`), &ev); err == nil {
		t.Error("unknown kind accepted")
	}
}
