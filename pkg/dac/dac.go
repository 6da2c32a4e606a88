// Package dac converts MIDI notes into 12-bit codes for the MCP4822 DAC that
// drives the 1 V/oct outputs.
package dac

// DAC range and the supported MIDI note window
const (
	MinNote  = 24 // C1, 0 V
	MaxNote  = 111
	MaxCode  = 4095
	Points   = 11 // one calibration anchor per C
	Interval = 12 // semitones between anchors

	// NominalScale is the ideal number of DAC codes per semitone
	NominalScale = 47.068966
)

// Calibration holds the per-octave scale factors in codes per semitone.
// Anchor i sits at zero-based note index i*Interval.
type Calibration [Points]float64

// DefaultCalibration returns a table with every anchor at NominalScale
func DefaultCalibration() Calibration {
	var c Calibration
	for i := range c {
		c[i] = NominalScale
	}
	return c
}

// ScaleAt returns the scale factor for a zero-based note index. Anchors
// return their stored value exactly; between anchors the value is linearly
// interpolated; beyond the last anchor the last value is used.
func (c *Calibration) ScaleAt(index int) float64 {
	if index <= 0 {
		return c[0]
	}
	seg := index / Interval
	if seg >= Points-1 {
		return c[Points-1]
	}
	rem := index - seg*Interval
	if rem == 0 {
		return c[seg]
	}
	lo, hi := c[seg], c[seg+1]
	return lo + (hi-lo)*float64(rem)/Interval
}

// ClampNote forces a MIDI note into [MinNote, MaxNote]
func ClampNote(note uint8) uint8 {
	if note < MinNote {
		return MinNote
	}
	if note > MaxNote {
		return MaxNote
	}
	return note
}

// Code converts a note plus bend and vibrato offsets into a DAC code.
// bend is normalized to [-1, 1] and scaled by bendRange semitones; vibrato is
// in semitones. Out-of-range notes are clamped, never rejected, and the sum
// is clamped to [0, MaxCode].
func Code(note uint8, bend float64, bendRange uint8, vibrato float64, cal *Calibration) uint16 {
	idx := int(ClampNote(note)) - MinNote

	base := int(float64(idx) * cal.ScaleAt(idx))
	bendOffset := int(bend * float64(bendRange) * NominalScale)
	vibOffset := int(vibrato * NominalScale)

	return clampCode(base + bendOffset + vibOffset)
}

func clampCode(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > MaxCode {
		return MaxCode
	}
	return uint16(v)
}

// AnchorCode returns the code output while measuring anchor point
func (c *Calibration) AnchorCode(point int) uint16 {
	if point < 0 {
		point = 0
	}
	if point >= Points {
		point = Points - 1
	}
	idx := point * Interval
	return clampCode(int(float64(idx) * c[point]))
}

// Adjust corrects an anchor from a voltage measured while AnchorCode(point)
// was output. Anchor i is expected at i volts. Point 0 is the 0 V origin and
// cannot be scaled; non-positive measurements are ignored.
func (c *Calibration) Adjust(point int, measuredVolts float64) bool {
	if point <= 0 || point >= Points || measuredVolts <= 0 {
		return false
	}
	c[point] *= float64(point) / measuredVolts
	return true
}
