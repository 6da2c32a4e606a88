package transport

import (
	"testing"

	"github.com/james-see/dfam2cv/pkg/event"
)

func feedAll(p *Parser, data []byte) []event.Event {
	var out []event.Event
	for _, b := range data {
		if ev, ok := p.Feed(b); ok {
			out = append(out, ev)
		}
	}
	return out
}

func TestParser(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []event.Event
	}{
		{
			name: "note on",
			data: []byte{0x90, 60, 100},
			want: []event.Event{event.NewNoteOn(1, 60, 100)},
		},
		{
			name: "running status",
			data: []byte{0x91, 60, 100, 64, 90, 60, 0},
			want: []event.Event{
				event.NewNoteOn(2, 60, 100),
				event.NewNoteOn(2, 64, 90),
				event.NewNoteOff(2, 60, 0),
			},
		},
		{
			name: "realtime inside message",
			data: []byte{0xB0, 16, 0xF8, 127},
			want: []event.Event{
				{Kind: event.Clock},
				event.NewControlChange(1, 16, 127),
			},
		},
		{
			name: "transport",
			data: []byte{0xFA, 0xFB, 0xFC, 0xFE},
			want: []event.Event{{Kind: event.Start}, {Kind: event.Continue}, {Kind: event.Stop}},
		},
		{
			name: "pitch bend",
			data: []byte{0xE0, 0x00, 0x40, 0x7F, 0x7F},
			want: []event.Event{event.NewPitchBend(1, 0), event.NewPitchBend(1, 8191)},
		},
		{
			name: "leading data ignored",
			data: []byte{60, 100, 0x80, 60, 0},
			want: []event.Event{event.NewNoteOff(1, 60, 0)},
		},
		{
			name: "sysex cancels running status",
			data: []byte{0x90, 60, 100, 0xF0, 0x7E, 0x01, 0xF7, 62, 100},
			want: []event.Event{event.NewNoteOn(1, 60, 100)},
		},
		{
			name: "program change skipped",
			data: []byte{0xC0, 5, 0x90, 61, 1},
			want: []event.Event{event.NewNoteOn(1, 61, 1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Parser
			got := feedAll(&p, tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParserReset(t *testing.T) {
	var p Parser
	feedAll(&p, []byte{0x90, 60})
	p.Reset()
	if got := feedAll(&p, []byte{100, 62, 1}); len(got) != 0 {
		t.Errorf("stale running status produced %v", got)
	}
}
