package cv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/james-see/dfam2cv/pkg/dac"
)

// TriggerMode selects what a note does to the gate/trigger line
type TriggerMode uint8

const (
	TriggerNone TriggerMode = iota
	TriggerTrig
	TriggerGate
)

// RetriggerMode selects which held note sounds when one is released
type RetriggerMode uint8

const (
	RetriggerOff RetriggerMode = iota
	RetriggerHighest
	RetriggerLowest
	RetriggerLatest
)

// VibratoMode selects how the vibrato period is derived
type VibratoMode uint8

const (
	VibratoOff VibratoMode = iota
	VibratoFree
	VibratoTempoSync
)

// Shape selects the vibrato LFO waveform
type Shape uint8

const (
	ShapeBipolar Shape = iota
	ShapeHalfWave
	ShapeRectified
)

var (
	triggerModeNames   = []string{"none", "trig", "gate"}
	retriggerModeNames = []string{"off", "highest", "lowest", "latest"}
	vibratoModeNames   = []string{"off", "free", "tempo-sync"}
	shapeNames         = []string{"bipolar", "half-wave", "rectified"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%d", v)
}

func parseEnum(names []string, kind string, text []byte) (uint8, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range names {
		if n == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (m TriggerMode) String() string   { return enumName(triggerModeNames, uint8(m)) }
func (m RetriggerMode) String() string { return enumName(retriggerModeNames, uint8(m)) }
func (m VibratoMode) String() string   { return enumName(vibratoModeNames, uint8(m)) }
func (s Shape) String() string         { return enumName(shapeNames, uint8(s)) }

func (m TriggerMode) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }
func (m RetriggerMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m VibratoMode) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }
func (s Shape) MarshalText() ([]byte, error)         { return []byte(s.String()), nil }

func (m *TriggerMode) UnmarshalText(text []byte) error {
	v, err := parseEnum(triggerModeNames, "trigger mode", text)
	*m = TriggerMode(v)
	return err
}

func (m *RetriggerMode) UnmarshalText(text []byte) error {
	v, err := parseEnum(retriggerModeNames, "retrigger mode", text)
	*m = RetriggerMode(v)
	return err
}

func (m *VibratoMode) UnmarshalText(text []byte) error {
	v, err := parseEnum(vibratoModeNames, "vibrato mode", text)
	*m = VibratoMode(v)
	return err
}

func (s *Shape) UnmarshalText(text []byte) error {
	v, err := parseEnum(shapeNames, "vibrato shape", text)
	*s = Shape(v)
	return err
}

// Parameter limits
const (
	MaxTriggerLength = 100  // ms
	MaxGlide         = 2000 // ms
	MaxVibratoDepth  = 2000 // cents
	MaxVibratoDelay  = 2000 // ms
	MinVibratoPeriod = 50   // ms
	MaxVibratoPeriod = 2000 // ms
	MaxBendRange     = 24   // semitones

	vibratoFreqMin  = 0.5 // Hz
	vibratoFreqSpan = 10  // Hz
)

// Division is a tempo-synced vibrato period in quarter notes
type Division struct {
	Name     string
	Quarters float64
}

// SyncDivisions lists the tempo-sync choices, indexed by Settings.VibratoDivision
var SyncDivisions = []Division{
	{"1/1", 4},
	{"1/2", 2},
	{"1/4", 1},
	{"1/8", 0.5},
	{"1/16", 0.25},
	{"1/32", 0.125},
	{"1/2T", 4.0 / 3},
	{"1/4T", 2.0 / 3},
	{"1/8T", 1.0 / 3},
}

// Settings is the persisted configuration of one CV channel
type Settings struct {
	TriggerMode     TriggerMode     `json:"triggerMode" yaml:"triggerMode"`
	RetriggerMode   RetriggerMode   `json:"retriggerMode" yaml:"retriggerMode"`
	TriggerLength   uint8           `json:"triggerLengthMs" yaml:"triggerLengthMs"`
	Portamento      bool            `json:"portamento" yaml:"portamento"`
	GlideUp         uint16          `json:"glideUpMs" yaml:"glideUpMs"`
	GlideDown       uint16          `json:"glideDownMs" yaml:"glideDownMs"`
	VibratoMode     VibratoMode     `json:"vibratoMode" yaml:"vibratoMode"`
	VibratoShape    Shape           `json:"vibratoShape" yaml:"vibratoShape"`
	VibratoDescend  bool            `json:"vibratoDescendFirst" yaml:"vibratoDescendFirst"`
	VibratoPeriod   uint16          `json:"vibratoPeriodMs" yaml:"vibratoPeriodMs"`
	VibratoDivision uint8           `json:"vibratoDivision" yaml:"vibratoDivision"`
	VibratoDepth    uint16          `json:"vibratoDepthCents" yaml:"vibratoDepthCents"`
	VibratoDelay    uint16          `json:"vibratoDelayMs" yaml:"vibratoDelayMs"`
	BendRange       uint8           `json:"bendRange" yaml:"bendRange"`
	Calibration     dac.Calibration `json:"calibration" yaml:"calibration,flow"`
}

// SettingsSize is the fixed length of a marshaled Settings
const SettingsSize = 19 + dac.Points*4

// ErrSettingsSize is returned when a settings record has the wrong length
var ErrSettingsSize = errors.New("cv settings: wrong record size")

// DefaultSettings returns the factory configuration
func DefaultSettings() Settings {
	return Settings{
		TriggerMode:     TriggerTrig,
		RetriggerMode:   RetriggerOff,
		TriggerLength:   2,
		GlideUp:         100,
		GlideDown:       100,
		VibratoMode:     VibratoOff,
		VibratoShape:    ShapeBipolar,
		VibratoPeriod:   200,
		VibratoDivision: 2,
		VibratoDepth:    25,
		VibratoDelay:    200,
		BendRange:       2,
		Calibration:     dac.DefaultCalibration(),
	}
}

// Validate clamps every field into its legal range
func (s *Settings) Validate() {
	if s.TriggerMode > TriggerGate {
		s.TriggerMode = TriggerGate
	}
	if s.RetriggerMode > RetriggerLatest {
		s.RetriggerMode = RetriggerLatest
	}
	if s.VibratoMode > VibratoTempoSync {
		s.VibratoMode = VibratoTempoSync
	}
	if s.VibratoShape > ShapeRectified {
		s.VibratoShape = ShapeRectified
	}
	s.TriggerLength = min(s.TriggerLength, MaxTriggerLength)
	s.GlideUp = min(s.GlideUp, MaxGlide)
	s.GlideDown = min(s.GlideDown, MaxGlide)
	s.VibratoPeriod = max(min(s.VibratoPeriod, MaxVibratoPeriod), MinVibratoPeriod)
	if int(s.VibratoDivision) >= len(SyncDivisions) {
		s.VibratoDivision = uint8(len(SyncDivisions) - 1)
	}
	s.VibratoDepth = min(s.VibratoDepth, MaxVibratoDepth)
	s.VibratoDelay = min(s.VibratoDelay, MaxVibratoDelay)
	s.BendRange = min(s.BendRange, MaxBendRange)
	for i, v := range s.Calibration {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			s.Calibration[i] = dac.NominalScale
		}
	}
}

// Size returns the marshaled length
func (s Settings) Size() int {
	return SettingsSize
}

// MarshalBinary encodes the settings into a fixed-size record
func (s Settings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SettingsSize)
	buf[0] = byte(s.TriggerMode)
	buf[1] = byte(s.RetriggerMode)
	buf[2] = s.TriggerLength
	buf[3] = boolByte(s.Portamento)
	binary.BigEndian.PutUint16(buf[4:], s.GlideUp)
	binary.BigEndian.PutUint16(buf[6:], s.GlideDown)
	buf[8] = byte(s.VibratoMode)
	buf[9] = byte(s.VibratoShape)
	buf[10] = boolByte(s.VibratoDescend)
	binary.BigEndian.PutUint16(buf[11:], s.VibratoPeriod)
	buf[13] = s.VibratoDivision
	binary.BigEndian.PutUint16(buf[14:], s.VibratoDepth)
	binary.BigEndian.PutUint16(buf[16:], s.VibratoDelay)
	buf[18] = s.BendRange
	for i, v := range s.Calibration {
		binary.BigEndian.PutUint32(buf[19+i*4:], math.Float32bits(float32(v)))
	}
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary. The result is
// validated so a corrupt record cannot produce out-of-range settings.
func (s *Settings) UnmarshalBinary(data []byte) error {
	if len(data) != SettingsSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSettingsSize, len(data), SettingsSize)
	}
	s.TriggerMode = TriggerMode(data[0])
	s.RetriggerMode = RetriggerMode(data[1])
	s.TriggerLength = data[2]
	s.Portamento = data[3] != 0
	s.GlideUp = binary.BigEndian.Uint16(data[4:])
	s.GlideDown = binary.BigEndian.Uint16(data[6:])
	s.VibratoMode = VibratoMode(data[8])
	s.VibratoShape = Shape(data[9])
	s.VibratoDescend = data[10] != 0
	s.VibratoPeriod = binary.BigEndian.Uint16(data[11:])
	s.VibratoDivision = data[13]
	s.VibratoDepth = binary.BigEndian.Uint16(data[14:])
	s.VibratoDelay = binary.BigEndian.Uint16(data[16:])
	s.BendRange = data[18]
	for i := range s.Calibration {
		s.Calibration[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(data[19+i*4:])))
	}
	s.Validate()
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
