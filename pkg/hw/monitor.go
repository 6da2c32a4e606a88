package hw

import (
	"sync"
	"time"
)

// LaneState is the output state of one CV lane
type LaneState struct {
	Code     uint16 `json:"code"`
	Gate     bool   `json:"gate"`
	Velocity uint8  `json:"velocity"`
	Writes   uint64 `json:"writes"`
}

// MonitorState is a point-in-time copy of every output
type MonitorState struct {
	Lanes    [2]LaneState    `json:"lanes"`
	Advances uint64          `json:"advances"`
	Width    time.Duration   `json:"advanceWidth"`
	LEDs     map[string]bool `json:"leds"`
	Updated  time.Time       `json:"updated"`
}

// Monitor is a Sink that keeps the latest value of every output for readers
// on other goroutines (API, TUI).
type Monitor struct {
	mu    sync.RWMutex
	state MonitorState
}

// NewMonitor creates an empty Monitor
func NewMonitor() *Monitor {
	return &Monitor{state: MonitorState{LEDs: make(map[string]bool)}}
}

func (m *Monitor) WriteDAC(ch Channel, code uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Lanes[ch&1].Code = code
	m.state.Lanes[ch&1].Writes++
	m.state.Updated = time.Now()
}

func (m *Monitor) SetGate(ch Channel, high bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Lanes[ch&1].Gate = high
	m.state.Updated = time.Now()
}

func (m *Monitor) SetVelocity(ch Channel, duty uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Lanes[ch&1].Velocity = duty
	m.state.Updated = time.Now()
}

func (m *Monitor) PulseClockAdvance(width time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Advances++
	m.state.Width = width
	m.state.Updated = time.Now()
}

func (m *Monitor) SetLED(led LED, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LEDs[led.String()] = on
	m.state.Updated = time.Now()
}

// Snapshot returns a copy of the current state
func (m *Monitor) Snapshot() MonitorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.LEDs = make(map[string]bool, len(m.state.LEDs))
	for k, v := range m.state.LEDs {
		s.LEDs[k] = v
	}
	return s
}
