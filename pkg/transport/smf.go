package transport

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/james-see/dfam2cv/pkg/clock"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/event"
)

const defaultMicrosPerQuarter = 500000 // 120 BPM

// Timed is an event at a millisecond offset from the start of a file
type Timed struct {
	At    uint32      `json:"at"`
	Event event.Event `json:"event"`
}

// SMFOptions controls file loading
type SMFOptions struct {
	// Clock adds Start, 24 PPQN timing clocks and a final Stop so the
	// sequencer follows the file's tempo
	Clock bool
}

type tickEvent struct {
	tick  int64
	order int
	msg   smf.Message
}

type tempoChange struct {
	tick   int64
	micros uint32
}

// LoadSMFFile reads a Standard MIDI File from disk
func LoadSMFFile(filename string, opts SMFOptions) ([]Timed, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI file: %w", err)
	}
	defer f.Close()
	return LoadSMF(f, opts)
}

// LoadSMF parses a Standard MIDI File into events ordered by time
func LoadSMF(r io.Reader, opts SMFOptions) ([]Timed, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	resolution := int64(960)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		resolution = int64(mt.Resolution())
	}

	var all []tickEvent
	var tempos []tempoChange
	var lastTick int64
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message
			// tempo meta: FF 51 03 tt tt tt
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				micros := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if micros > 0 {
					tempos = append(tempos, tempoChange{tick: tick, micros: micros})
				}
				continue
			}
			all = append(all, tickEvent{tick: tick, order: len(all), msg: msg})
		}
		lastTick = max(lastTick, tick)
	}
	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })

	toMillis := tickConverter(tempos, resolution)

	var out []Timed
	for _, te := range all {
		ev, ok := event.FromMessage(midi.Message(te.msg))
		if !ok || ev.Kind.Realtime() {
			continue
		}
		out = append(out, Timed{At: toMillis(te.tick), Event: ev})
	}

	if opts.Clock {
		out = append(out, Timed{At: 0, Event: event.Event{Kind: event.Start}})
		step := resolution / 24
		if step == 0 {
			step = 1
		}
		for tick := int64(0); tick <= lastTick; tick += step {
			out = append(out, Timed{At: toMillis(tick), Event: event.Event{Kind: event.Clock}})
		}
		out = append(out, Timed{At: toMillis(lastTick), Event: event.Event{Kind: event.Stop}})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].At != out[j].At {
			return out[i].At < out[j].At
		}
		// transport before notes at the same instant
		return out[i].Event.Kind.Realtime() && !out[j].Event.Kind.Realtime()
	})
	return out, nil
}

// tickConverter returns a function mapping absolute ticks to milliseconds
// through the tempo map
func tickConverter(tempos []tempoChange, resolution int64) func(int64) uint32 {
	return func(tick int64) uint32 {
		var micros int64
		prevTick := int64(0)
		tempo := int64(defaultMicrosPerQuarter)
		for _, tc := range tempos {
			if tc.tick >= tick {
				break
			}
			micros += (tc.tick - prevTick) * tempo / resolution
			prevTick = tc.tick
			tempo = int64(tc.micros)
		}
		micros += (tick - prevTick) * tempo / resolution
		return uint32(micros / 1000)
	}
}

// WriteSMF writes channel events as a single-track file at 120 BPM.
// Realtime events are skipped; the file's tempo carries the timing.
func WriteSMF(w io.Writer, events []Timed) error {
	const resolution = 960

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(resolution)

	tempo := uint32(defaultMicrosPerQuarter)
	var track smf.Track
	track.Add(0, smf.Message([]byte{0xFF, 0x51, 0x03, byte(tempo >> 16), byte(tempo >> 8), byte(tempo)}))

	var current int64
	for _, te := range events {
		if te.Event.Kind.Realtime() || te.Event.Validate() != nil {
			continue
		}
		tick := int64(te.At) * resolution * 1000 / defaultMicrosPerQuarter
		if tick < current {
			tick = current
		}
		track.Add(uint32(tick-current), te.Event.Message())
		current = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write MIDI: %w", err)
	}
	return nil
}

// Render plays events into an engine on a virtual clock, one millisecond at
// a time, and continues for tail ms after the last event
func Render(e *engine.Engine, clk *clock.Counter, events []Timed, tail uint32) {
	var end uint32
	if len(events) > 0 {
		end = events[len(events)-1].At
	}
	end += tail

	i := 0
	for t := uint32(0); t <= end; t++ {
		for i < len(events) && events[i].At <= t {
			e.HandleEvent(events[i].Event)
			i++
		}
		e.Update()
		if t < end {
			clk.Advance(1)
		}
	}
}
