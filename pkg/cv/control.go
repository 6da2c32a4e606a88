package cv

import "github.com/james-see/dfam2cv/pkg/ccmap"

// ControlChange applies a per-channel CC through the channel's CC map. It
// returns false for unmapped and device-global controllers.
func (c *Channel) ControlChange(cc, value uint8) bool {
	action, ok := c.ccMap.Lookup(cc)
	if !ok || action.Global() {
		return false
	}
	value &= 0x7F
	s := c.settings
	v := uint32(value)

	switch action {
	case ccmap.TriggerLength:
		s.TriggerLength = uint8(v * MaxTriggerLength / 127)
	case ccmap.PitchBendRange:
		s.BendRange = uint8(v * MaxBendRange / 127)
	case ccmap.PortamentoSwitch:
		s.Portamento = value >= 64
	case ccmap.PortamentoTime:
		s.GlideUp = uint16(v * MaxGlide / 127)
		s.GlideDown = s.GlideUp
	case ccmap.PortamentoAscTime:
		s.GlideUp = uint16(v * MaxGlide / 127)
	case ccmap.PortamentoDescTime:
		s.GlideDown = uint16(v * MaxGlide / 127)
	case ccmap.VibratoRate:
		if s.VibratoMode == VibratoTempoSync {
			s.VibratoDivision = uint8(v * uint32(len(SyncDivisions)) / 128)
		} else {
			freq := float64(value)*vibratoFreqSpan/127 + vibratoFreqMin
			s.VibratoPeriod = uint16(1000 / freq)
		}
	case ccmap.VibratoDepth:
		s.VibratoDepth = uint16(v * MaxVibratoDepth / 127)
		if s.VibratoMode == VibratoOff && s.VibratoDepth > 0 {
			s.VibratoMode = VibratoFree
		}
	case ccmap.VibratoDelay:
		s.VibratoDelay = uint16(v * MaxVibratoDelay / 127)
	case ccmap.VibratoTempoSync:
		if value >= 64 {
			s.VibratoMode = VibratoTempoSync
		} else {
			s.VibratoMode = VibratoFree
		}
	case ccmap.RetriggerMode:
		s.RetriggerMode = RetriggerMode(v * 4 / 128)
	case ccmap.TriggerMode:
		s.TriggerMode = TriggerMode(v * 3 / 128)
	default:
		return false
	}

	c.SetSettings(s)
	c.log.Debug("control change", "cc", cc, "action", action.String(), "value", value)
	return true
}
