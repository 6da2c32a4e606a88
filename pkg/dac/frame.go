package dac

// MCP4822 configuration bits in the high byte
const (
	bitABSelect = 7
	bitGain     = 5 // 0 selects 2x gain
	bitShutdown = 4 // 1 keeps the output active
)

// Frame builds the 2-byte SPI frame for channel ch (0 = A, 1 = B): four
// config bits followed by 12 data bits.
func Frame(ch uint8, code uint16) [2]byte {
	if code > MaxCode {
		code = MaxCode
	}
	hi := (ch&0x01)<<bitABSelect | 0<<bitGain | 1<<bitShutdown | uint8(code>>8)&0x0F
	return [2]byte{hi, uint8(code & 0xFF)}
}

// ParseFrame decodes a frame built by Frame
func ParseFrame(f [2]byte) (ch uint8, code uint16) {
	ch = f[0] >> bitABSelect & 0x01
	code = uint16(f[0]&0x0F)<<8 | uint16(f[1])
	return ch, code
}
