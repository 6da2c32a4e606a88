package engine

import (
	"fmt"
	"strings"

	"github.com/james-see/dfam2cv/pkg/ccmap"
	"github.com/james-see/dfam2cv/pkg/cv"
	"github.com/james-see/dfam2cv/pkg/sequencer"
)

// Mode is the two-voice allocation policy
type Mode uint8

const (
	// Mono drives each lane from its own MIDI channel
	Mono Mode = iota
	// Poly allocates notes on channel A to lane A first, then lane B
	Poly
)

func (m Mode) String() string {
	switch m {
	case Mono:
		return "mono"
	case Poly:
		return "poly"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "mono":
		*m = Mono
	case "poly":
		*m = Poly
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// Settings is the persisted global routing configuration
type Settings struct {
	Mode                   Mode                   `json:"mode" yaml:"mode"`
	ChannelA               uint8                  `json:"channelA" yaml:"channelA"`
	ChannelB               uint8                  `json:"channelB" yaml:"channelB"`
	KeyboardChannel        uint8                  `json:"keyboardChannel" yaml:"keyboardChannel"`
	ClockDivision          uint8                  `json:"clockDivision" yaml:"clockDivision"`
	AdvanceWidth           uint8                  `json:"advanceWidthMs" yaml:"advanceWidthMs"`
	Keys                   [sequencer.Steps]uint8 `json:"keys" yaml:"keys,flow"`
	SuppressVelocityBInKCS bool                   `json:"suppressVelocityBInKCS" yaml:"suppressVelocityBInKCS"`
	CCMapVersion           uint8                  `json:"ccMapVersion" yaml:"ccMapVersion"`
}

// SettingsSize is the fixed length of marshaled Settings
const SettingsSize = 8 + sequencer.Steps

// DefaultSettings returns the factory routing
func DefaultSettings() Settings {
	return Settings{
		Mode:                   Mono,
		ChannelA:               1,
		ChannelB:               2,
		KeyboardChannel:        10,
		ClockDivision:          sequencer.DefaultDivision,
		AdvanceWidth:           uint8(sequencer.DefaultWidth.Milliseconds()),
		Keys:                   sequencer.DefaultKeys,
		SuppressVelocityBInKCS: true,
		CCMapVersion:           ccmap.Latest,
	}
}

func clampChannel(ch, def uint8) uint8 {
	if ch < 1 || ch > 16 {
		return def
	}
	return ch
}

// Validate forces every field into range
func (s *Settings) Validate() {
	if s.Mode > Poly {
		s.Mode = Mono
	}
	s.ChannelA = clampChannel(s.ChannelA, 1)
	s.ChannelB = clampChannel(s.ChannelB, 2)
	s.KeyboardChannel = clampChannel(s.KeyboardChannel, 10)
	s.ClockDivision = sequencer.ValidDivision(max(s.ClockDivision, 1))
	maxWidth := uint8(sequencer.MaxWidth.Milliseconds())
	s.AdvanceWidth = max(min(s.AdvanceWidth, maxWidth), 1)
	for i := range s.Keys {
		s.Keys[i] &= 0x7F
	}
	if s.CCMapVersion < 1 || s.CCMapVersion > ccmap.Latest {
		s.CCMapVersion = ccmap.Latest
	}
}

// Size returns the marshaled length
func (s Settings) Size() int { return SettingsSize }

// MarshalBinary encodes the settings into a fixed-size record
func (s Settings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SettingsSize)
	buf[0] = byte(s.Mode)
	buf[1] = s.ChannelA
	buf[2] = s.ChannelB
	buf[3] = s.KeyboardChannel
	buf[4] = s.ClockDivision
	buf[5] = s.AdvanceWidth
	copy(buf[6:], s.Keys[:])
	if s.SuppressVelocityBInKCS {
		buf[6+sequencer.Steps] = 1
	}
	buf[7+sequencer.Steps] = s.CCMapVersion
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary
func (s *Settings) UnmarshalBinary(data []byte) error {
	if len(data) != SettingsSize {
		return fmt.Errorf("engine settings: got %d bytes, want %d", len(data), SettingsSize)
	}
	s.Mode = Mode(data[0])
	s.ChannelA = data[1]
	s.ChannelB = data[2]
	s.KeyboardChannel = data[3]
	s.ClockDivision = data[4]
	s.AdvanceWidth = data[5]
	copy(s.Keys[:], data[6:6+sequencer.Steps])
	s.SuppressVelocityBInKCS = data[6+sequencer.Steps] != 0
	s.CCMapVersion = data[7+sequencer.Steps]
	s.Validate()
	return nil
}

// Profile is the complete persisted device configuration
type Profile struct {
	Global Settings    `json:"global" yaml:"global"`
	A      cv.Settings `json:"a" yaml:"a"`
	B      cv.Settings `json:"b" yaml:"b"`
}

// DefaultProfile returns the factory configuration
func DefaultProfile() Profile {
	return Profile{
		Global: DefaultSettings(),
		A:      cv.DefaultSettings(),
		B:      cv.DefaultSettings(),
	}
}

// Validate clamps every section
func (p *Profile) Validate() {
	p.Global.Validate()
	p.A.Validate()
	p.B.Validate()
}
