// Package conv formats integers into caller-supplied buffers, for error
// text and log lines on targets without fmt.
package conv

// Utoa writes n in decimal at the end of buf and returns the used tail.
// A uint64 needs at most 20 bytes; a shorter buf keeps the low digits.
func Utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	if i == 0 {
		return buf
	}
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 || i == 0 {
			return buf[i:]
		}
	}
}

const hexDigits = "0123456789ABCDEF"

// U32Hex writes n as eight upper-case hex digits, zero padded, no prefix.
// buf must hold 8 bytes; a shorter buf yields an empty slice.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	out := buf[len(buf)-8:]
	for j := 7; j >= 0; j-- {
		out[j] = hexDigits[n&0xF]
		n >>= 4
	}
	return out
}
