package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/ringbuf"
)

const (
	// RawBufferSize is the capacity of the incoming byte queue
	RawBufferSize = 100
	// MIDIBaud is the standard MIDI serial rate
	MIDIBaud = 31250
)

// SerialConfig configures a UART input
type SerialConfig struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

// OpenSerial opens a UART device with tarm/serial
func OpenSerial(cfg SerialConfig) (io.ReadCloser, error) {
	if cfg.Baud == 0 {
		cfg.Baud = MIDIBaud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{Name: cfg.Name, Baud: cfg.Baud, ReadTimeout: cfg.ReadTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Name, err)
	}
	return port, nil
}

// Serial feeds raw bytes from a reader through a bounded queue into a
// Parser. A full queue drops bytes and lights the error LED.
type Serial struct {
	r    io.Reader
	sink hw.Sink
	log  *slog.Logger

	mu       sync.Mutex
	buf      *ringbuf.Buffer[byte]
	overflow int
	ready    chan struct{}

	parser Parser
}

// NewSerial wraps r. sink may be nil when no error LED is attached.
func NewSerial(r io.Reader, sink hw.Sink, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		r:     r,
		sink:  sink,
		log:   logger.With("component", "serial"),
		buf:   ringbuf.New[byte](RawBufferSize),
		ready: make(chan struct{}, 1),
	}
}

// Overflows returns the number of bytes dropped on a full queue
func (s *Serial) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflow
}

func (s *Serial) put(chunk []byte) {
	s.mu.Lock()
	dropped := 0
	for _, b := range chunk {
		if !s.buf.Put(b) {
			dropped++
		}
	}
	first := s.overflow == 0 && dropped > 0
	s.overflow += dropped
	s.mu.Unlock()

	if dropped > 0 {
		if s.sink != nil {
			s.sink.SetLED(hw.LEDError, true)
		}
		if first {
			s.log.Warn("raw MIDI buffer overflow", "dropped", dropped)
		}
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Drain parses every queued byte and returns the number of events delivered
func (s *Serial) Drain(h Handler) int {
	n := 0
	for {
		s.mu.Lock()
		b, ok := s.buf.Get()
		s.mu.Unlock()
		if !ok {
			return n
		}
		if ev, ok := s.parser.Feed(b); ok {
			h(ev)
			n++
		}
	}
}

// Run reads until ctx is cancelled or the reader fails, delivering events
// to h from a separate consumer goroutine. io.EOF ends the run cleanly. A
// reader without a read timeout only notices cancellation when closed.
func (s *Serial) Run(ctx context.Context, h Handler) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				s.Drain(h)
				return
			case <-s.ready:
				s.Drain(h)
			}
		}
	}()

	err := s.read(ctx)
	close(stop)
	<-done
	return err
}

func (s *Serial) read(ctx context.Context) error {
	chunk := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := s.r.Read(chunk)
		if n > 0 {
			s.put(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serial read: %w", err)
		}
	}
	return nil
}
