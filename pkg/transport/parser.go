package transport

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/dfam2cv/pkg/event"
)

// Parser decodes a raw MIDI byte stream with running status. Realtime bytes
// may appear anywhere, including between the data bytes of a message.
type Parser struct {
	status byte
	data   [2]byte
	n      int
}

func dataLength(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}

// Feed consumes one byte and returns an event when one is complete
func (p *Parser) Feed(b byte) (event.Event, bool) {
	switch {
	case b >= 0xF8:
		return realtime(b)
	case b >= 0xF0:
		// system common and sysex cancel running status
		p.status = 0
		p.n = 0
		return event.Event{}, false
	case b >= 0x80:
		p.status = b
		p.n = 0
		return event.Event{}, false
	}

	if p.status == 0 {
		return event.Event{}, false
	}
	p.data[p.n] = b
	p.n++
	if p.n < dataLength(p.status) {
		return event.Event{}, false
	}
	p.n = 0

	msg := midi.Message{p.status, p.data[0]}
	if dataLength(p.status) == 2 {
		msg = append(msg, p.data[1])
	}
	return event.FromMessage(msg)
}

// Reset forgets running status and partial messages
func (p *Parser) Reset() {
	*p = Parser{}
}

func realtime(b byte) (event.Event, bool) {
	switch b {
	case 0xF8:
		return event.Event{Kind: event.Clock}, true
	case 0xFA:
		return event.Event{Kind: event.Start}, true
	case 0xFB:
		return event.Event{Kind: event.Continue}, true
	case 0xFC:
		return event.Event{Kind: event.Stop}, true
	}
	return event.Event{}, false
}
