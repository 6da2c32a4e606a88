// Package event provides the parsed MIDI events the engine consumes and
// conversion to and from gomidi messages.
package event

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

// Kind is the type of a MIDI event
type Kind uint8

const (
	Unknown Kind = iota
	NoteOn
	NoteOff
	ControlChange
	PitchBend
	Start
	Stop
	Continue
	Clock
)

var kindNames = []string{"unknown", "note-on", "note-off", "control-change", "pitch-bend", "start", "stop", "continue", "clock"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range kindNames {
		if n == s && i != 0 {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", s)
}

// Realtime reports whether the kind is a system realtime message
func (k Kind) Realtime() bool {
	return k >= Start && k <= Clock
}

// Event is one decoded MIDI event. Channel is 1-16 for channel messages and
// zero for realtime messages.
type Event struct {
	Kind       Kind  `json:"kind"`
	Channel    uint8 `json:"channel,omitempty"`
	Note       uint8 `json:"note,omitempty"`
	Velocity   uint8 `json:"velocity,omitempty"`
	Controller uint8 `json:"controller,omitempty"`
	Value      uint8 `json:"value,omitempty"`
	Bend       int16 `json:"bend,omitempty"`
}

// Validate checks field ranges
func (e Event) Validate() error {
	if e.Kind == Unknown || int(e.Kind) >= len(kindNames) {
		return fmt.Errorf("invalid event kind %d", e.Kind)
	}
	if e.Kind.Realtime() {
		return nil
	}
	if e.Channel < 1 || e.Channel > 16 {
		return fmt.Errorf("channel %d out of range 1-16", e.Channel)
	}
	if e.Note > 127 || e.Velocity > 127 || e.Controller > 127 || e.Value > 127 {
		return fmt.Errorf("data byte out of range in %s", e)
	}
	if e.Bend < -8192 || e.Bend > 8191 {
		return fmt.Errorf("pitch bend %d out of range", e.Bend)
	}
	return nil
}

func (e Event) String() string {
	switch e.Kind {
	case NoteOn, NoteOff:
		return fmt.Sprintf("%s ch=%d note=%d vel=%d", e.Kind, e.Channel, e.Note, e.Velocity)
	case ControlChange:
		return fmt.Sprintf("%s ch=%d cc=%d val=%d", e.Kind, e.Channel, e.Controller, e.Value)
	case PitchBend:
		return fmt.Sprintf("%s ch=%d bend=%d", e.Kind, e.Channel, e.Bend)
	default:
		return e.Kind.String()
	}
}

// NewNoteOn creates a note on event
func NewNoteOn(channel, note, velocity uint8) Event {
	return Event{Kind: NoteOn, Channel: channel, Note: note, Velocity: velocity}
}

// NewNoteOff creates a note off event
func NewNoteOff(channel, note, velocity uint8) Event {
	return Event{Kind: NoteOff, Channel: channel, Note: note, Velocity: velocity}
}

// NewControlChange creates a control change event
func NewControlChange(channel, controller, value uint8) Event {
	return Event{Kind: ControlChange, Channel: channel, Controller: controller, Value: value}
}

// NewPitchBend creates a pitch bend event
func NewPitchBend(channel uint8, bend int16) Event {
	return Event{Kind: PitchBend, Channel: channel, Bend: bend}
}

// FromMessage decodes a gomidi message. Note on with zero velocity becomes
// note off. Messages the engine does not use return false.
func FromMessage(msg midi.Message) (Event, bool) {
	var ch, key, vel, cc, val uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return NewNoteOn(ch+1, key, vel), true
	case msg.GetNoteOff(&ch, &key, &vel):
		return NewNoteOff(ch+1, key, vel), true
	case msg.GetNoteEnd(&ch, &key):
		return NewNoteOff(ch+1, key, 0), true
	case msg.GetControlChange(&ch, &cc, &val):
		return NewControlChange(ch+1, cc, val), true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return NewPitchBend(ch+1, rel), true
	case msg.Is(midi.StartMsg):
		return Event{Kind: Start}, true
	case msg.Is(midi.StopMsg):
		return Event{Kind: Stop}, true
	case msg.Is(midi.ContinueMsg):
		return Event{Kind: Continue}, true
	case msg.Is(midi.TimingClockMsg):
		return Event{Kind: Clock}, true
	}
	return Event{}, false
}

// Message encodes the event as a gomidi message
func (e Event) Message() midi.Message {
	ch := (e.Channel - 1) & 0x0F
	switch e.Kind {
	case NoteOn:
		return midi.NoteOn(ch, e.Note, e.Velocity)
	case NoteOff:
		return midi.NoteOffVelocity(ch, e.Note, e.Velocity)
	case ControlChange:
		return midi.ControlChange(ch, e.Controller, e.Value)
	case PitchBend:
		return midi.Pitchbend(ch, e.Bend)
	case Start:
		return midi.Start()
	case Stop:
		return midi.Stop()
	case Continue:
		return midi.Continue()
	case Clock:
		return midi.TimingClock()
	}
	return nil
}
