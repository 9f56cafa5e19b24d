// Package hexcodec converts between nibbles and their ASCII hex digit,
// the way the wire framing in the frame package needs it: lower-case
// on output, lenient on input since the CRC is the real validator.
package hexcodec

// DecToHex maps 0..15 to '0'-'9'/'a'-'f'. Callers must pre-mask; the
// result for x > 15 is unspecified.
func DecToHex(x byte) byte {
	if x <= 9 {
		return x + '0'
	}
	return x - 10 + 'a'
}

// HexToDec decodes a single hex digit, accepting both cases. Any byte
// that isn't a valid hex digit decodes to 0.
func HexToDec(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// Encode16 writes the 4 lower-case hex digits of v (high nibble
// first) into dst, which must have length >= 4.
func Encode16(dst []byte, v uint16) {
	dst[0] = DecToHex(byte(v>>12) & 0xf)
	dst[1] = DecToHex(byte(v>>8) & 0xf)
	dst[2] = DecToHex(byte(v>>4) & 0xf)
	dst[3] = DecToHex(byte(v) & 0xf)
}

// Decode16 parses 4 hex digits (high nibble first) into a uint16.
func Decode16(src []byte) uint16 {
	return uint16(HexToDec(src[0]))<<12 |
		uint16(HexToDec(src[1]))<<8 |
		uint16(HexToDec(src[2]))<<4 |
		uint16(HexToDec(src[3]))
}

// Encode8 writes the 2 lower-case hex digits of v into dst, which
// must have length >= 2.
func Encode8(dst []byte, v byte) {
	dst[0] = DecToHex(v >> 4)
	dst[1] = DecToHex(v & 0xf)
}

// Decode8 parses 2 hex digits into a byte.
func Decode8(src []byte) byte {
	return HexToDec(src[0])<<4 | HexToDec(src[1])
}
