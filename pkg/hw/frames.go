package hw

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/james-see/dfam2cv/pkg/dac"
)

// Frame tags of the line protocol written by FrameSink. A DAC record carries
// the raw 2-byte MCP4822 SPI frame so a bridge can clock it straight out.
const (
	TagDAC      byte = 'D' // frame[2]
	TagGate     byte = 'G' // channel, state
	TagVelocity byte = 'V' // channel, duty
	TagAdvance  byte = 'A' // width in microseconds, uint16 big endian
	TagLED      byte = 'L' // led, state
)

// FrameSink encodes outputs into a byte stream for an external bridge (a
// serial link to the DAC board, or a capture file). Writes happen on a
// background goroutine; when the queue is full records are dropped and
// counted rather than blocking the engine.
type FrameSink struct {
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	lastDAC [2]int32

	mu  sync.Mutex
	err error
}

// NewFrameSink starts a FrameSink writing to w with room for depth records
func NewFrameSink(w io.Writer, depth int) *FrameSink {
	if depth < 1 {
		depth = 256
	}
	f := &FrameSink{
		queue:   make(chan []byte, depth),
		done:    make(chan struct{}),
		lastDAC: [2]int32{-1, -1},
	}
	go f.loop(w)
	return f
}

func (f *FrameSink) loop(w io.Writer) {
	defer close(f.done)
	for rec := range f.queue {
		if _, err := w.Write(rec); err != nil {
			f.mu.Lock()
			if f.err == nil {
				f.err = err
			}
			f.mu.Unlock()
		}
	}
}

func (f *FrameSink) send(rec []byte) {
	select {
	case f.queue <- rec:
	default:
		f.dropped.Add(1)
	}
}

func (f *FrameSink) WriteDAC(ch Channel, code uint16) {
	if f.lastDAC[ch&1] == int32(code) {
		return
	}
	f.lastDAC[ch&1] = int32(code)
	fr := dac.Frame(uint8(ch), code)
	f.send([]byte{TagDAC, fr[0], fr[1]})
}

func (f *FrameSink) SetGate(ch Channel, high bool) {
	f.send([]byte{TagGate, byte(ch), boolByte(high)})
}

func (f *FrameSink) SetVelocity(ch Channel, duty uint8) {
	f.send([]byte{TagVelocity, byte(ch), duty})
}

func (f *FrameSink) PulseClockAdvance(width time.Duration) {
	us := width / time.Microsecond
	if us > 0xFFFF {
		us = 0xFFFF
	}
	rec := make([]byte, 3)
	rec[0] = TagAdvance
	binary.BigEndian.PutUint16(rec[1:], uint16(us))
	f.send(rec)
}

func (f *FrameSink) SetLED(led LED, on bool) {
	f.send([]byte{TagLED, byte(led), boolByte(on)})
}

// Dropped returns the number of records discarded on a full queue
func (f *FrameSink) Dropped() uint64 {
	return f.dropped.Load()
}

// Err returns the first write error, if any
func (f *FrameSink) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close flushes queued records and stops the writer goroutine
func (f *FrameSink) Close() error {
	f.once.Do(func() { close(f.queue) })
	<-f.done
	return f.Err()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
