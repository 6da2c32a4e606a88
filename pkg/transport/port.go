// Package transport delivers MIDI events to the engine from a live port, a
// Standard MIDI File or a raw serial UART.
package transport

import (
	"fmt"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/dfam2cv/pkg/event"
)

// Handler receives decoded events. It is called from the transport's
// goroutine and must not block.
type Handler func(event.Event)

// InPorts lists the names of the available MIDI inputs
func InPorts() []string {
	ins := midi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// Port is an open live MIDI input
type Port struct {
	name string
	stop func()
	log  *slog.Logger
}

// OpenPort starts listening on the named input. Timing clock is filtered
// together with time code by some drivers, so time code is requested.
func OpenPort(name string, h Handler, logger *slog.Logger) (*Port, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "port", "device", name)

	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("MIDI input %q not found: %w", name, err)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		if ev, ok := event.FromMessage(msg); ok {
			h(ev)
		}
	}, midi.UseTimeCode(), midi.HandleError(func(listenErr error) {
		logger.Warn("MIDI listener error", "err", listenErr)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", name, err)
	}

	logger.Info("MIDI input connected")
	return &Port{name: name, stop: stop, log: logger}, nil
}

// Name returns the port name
func (p *Port) Name() string { return p.name }

// Close stops listening
func (p *Port) Close() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
		p.log.Info("MIDI input closed")
	}
}
