package hw

import (
	"log/slog"
	"time"
)

// LogSink logs output changes at debug level. Repeated DAC writes of the
// same code are suppressed since the engine re-emits every tick.
type LogSink struct {
	log  *slog.Logger
	last [2]int32
}

// NewLogSink creates a LogSink writing to logger (nil uses slog.Default)
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{log: logger.With("component", "hw"), last: [2]int32{-1, -1}}
}

func (l *LogSink) WriteDAC(ch Channel, code uint16) {
	if l.last[ch&1] == int32(code) {
		return
	}
	l.last[ch&1] = int32(code)
	l.log.Debug("dac", "channel", ch.String(), "code", code)
}

func (l *LogSink) SetGate(ch Channel, high bool) {
	l.log.Debug("gate", "channel", ch.String(), "high", high)
}

func (l *LogSink) SetVelocity(ch Channel, duty uint8) {
	l.log.Debug("velocity", "channel", ch.String(), "duty", duty)
}

func (l *LogSink) PulseClockAdvance(width time.Duration) {
	l.log.Debug("clock advance", "width", width)
}

func (l *LogSink) SetLED(led LED, on bool) {
	l.log.Debug("led", "led", led.String(), "on", on)
}
