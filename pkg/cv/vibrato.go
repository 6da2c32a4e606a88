package cv

import "math"

// Triangle returns a triangle wave in [-1, 1] at time t for the given period.
// The wave starts at zero and rises first, or falls first when descendFirst
// is set. A non-positive period yields zero.
func Triangle(t, period float64, descendFirst bool) float64 {
	if period <= 0 {
		return 0
	}
	phase := period / 4
	if descendFirst {
		phase = 3 * period / 4
	}
	x := math.Mod(t+phase, period) / period
	if x < 0 {
		x++
	}
	if x < 0.5 {
		return 4*x - 1
	}
	return 3 - 4*x
}

// Apply shapes a bipolar LFO value
func (s Shape) Apply(v float64) float64 {
	switch s {
	case ShapeHalfWave:
		return max(v, 0)
	case ShapeRectified:
		return math.Abs(v)
	default:
		return v
	}
}

// TempoSource reports the current MIDI clock period in milliseconds, or zero
// when no tempo is known
type TempoSource interface {
	ClockPeriod() float64
}

// vibratoPeriod returns the current LFO period in ms
func (c *Channel) vibratoPeriod() float64 {
	s := &c.settings
	if s.VibratoMode == VibratoTempoSync && c.tempo != nil {
		if p := c.tempo.ClockPeriod(); p > 0 {
			return p * 24 * SyncDivisions[s.VibratoDivision].Quarters
		}
	}
	return float64(s.VibratoPeriod)
}

func (c *Channel) updateVibrato(now uint32) {
	s := &c.settings
	if s.VibratoMode == VibratoOff || s.VibratoDepth == 0 {
		c.vibrato = 0
		return
	}
	elapsed := now - c.lastNoteOn
	if elapsed < uint32(s.VibratoDelay) {
		c.vibrato = 0
		return
	}
	w := Triangle(float64(elapsed-uint32(s.VibratoDelay)), c.vibratoPeriod(), s.VibratoDescend)
	c.vibrato = s.VibratoShape.Apply(w) * float64(s.VibratoDepth) / 100
}
