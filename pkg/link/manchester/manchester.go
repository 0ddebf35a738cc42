// Package manchester implements the bit-level line code used on the OOK
// channel.
package manchester

// Every data bit is transmitted as a pair of channel symbols: a logical 1
// becomes high-then-low (10) and a logical 0 becomes low-then-high (01),
// MSB first within each byte. Encoding therefore doubles the length: one
// data byte becomes two symbol bytes, each carrying four pairs.
//
// The codec is stateless across frames. Frame boundaries come from the
// higher-layer length field, so each symbol pair decodes independently and
// partial buffers can be fed through caller-supplied slices.

import "errors"

var (
	// ErrInvalidTransition indicates a symbol pair with no transition
	// (both-high or both-low). The whole buffer is rejected.
	ErrInvalidTransition = errors.New("manchester: invalid symbol transition")
	// ErrOddLength indicates the symbol buffer cannot be split into pairs.
	ErrOddLength = errors.New("manchester: odd symbol buffer length")
	// ErrBufferTooSmall indicates the destination cannot hold the decoded
	// bytes.
	ErrBufferTooSmall = errors.New("manchester: buffer too small")
)

// encTab maps a nibble to its symbol byte (four pairs).
var encTab [16]byte

// decTab maps a symbol byte back to its nibble, or 0xff for any byte
// containing an illegal pair.
var decTab [256]byte

func init() {
	for i := range decTab {
		decTab[i] = 0xff
	}
	for n := 0; n < 16; n++ {
		var sym byte
		for bit := 3; bit >= 0; bit-- {
			sym <<= 2
			if n&(1<<uint(bit)) != 0 {
				sym |= 0b10
			} else {
				sym |= 0b01
			}
		}
		encTab[n] = sym
		decTab[sym] = byte(n)
	}
}

// EncodedLen returns the symbol buffer length for n data bytes.
func EncodedLen(n int) int { return 2 * n }

// DecodedLen returns the data length recovered from n symbol bytes.
func DecodedLen(n int) int { return n / 2 }

// Encode converts data bytes to channel symbols.
func Encode(src []byte) []byte {
	dst := make([]byte, 0, EncodedLen(len(src)))
	return AppendEncode(dst, src)
}

// AppendEncode appends the symbol encoding of src to dst.
func AppendEncode(dst, src []byte) []byte {
	for _, b := range src {
		dst = append(dst, encTab[b>>4], encTab[b&0x0f])
	}
	return dst
}

// Decode recovers data bytes from channel symbols into dst and returns the
// number of bytes written. The buffer is validated as a whole before any
// output is produced: an illegal pair anywhere discards the entire frame.
func Decode(dst, src []byte) (int, error) {
	if len(src)%2 != 0 {
		return 0, ErrOddLength
	}
	n := DecodedLen(len(src))
	if len(dst) < n {
		return 0, ErrBufferTooSmall
	}
	for _, sym := range src {
		if decTab[sym] == 0xff {
			return 0, ErrInvalidTransition
		}
	}
	for i := 0; i < n; i++ {
		dst[i] = decTab[src[2*i]]<<4 | decTab[src[2*i+1]]
	}
	return n, nil
}
