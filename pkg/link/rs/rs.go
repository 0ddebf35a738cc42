// Package rs implements a systematic Reed-Solomon code over GF(2^8) used
// as the forward error correction layer of the radio link.
//
// A codec is parameterized with dataLen data symbols and parityLen parity
// symbols per block (a shortened code, dataLen+parityLen <= 255) and
// corrects up to parityLen/2 symbol errors at unknown positions. Decoding
// reports how many symbols were corrected so the caller can treat a high
// but recoverable count as a link-quality signal.
package rs

import "errors"

var (
	// ErrUncorrectable indicates more symbol errors than the code can
	// correct. No data is returned in that case.
	ErrUncorrectable = errors.New("rs: uncorrectable block")
	// ErrBlockLength indicates an input slice of the wrong length.
	ErrBlockLength = errors.New("rs: wrong block length")
	// ErrCodeParams indicates invalid code parameters.
	ErrCodeParams = errors.New("rs: invalid code parameters")
)

// Codec is a Reed-Solomon encoder/decoder with fixed block geometry.
// It is stateless after construction and safe for concurrent use.
type Codec struct {
	dataLen   int
	parityLen int
	gen       []byte
}

// New creates a codec producing blocks of dataLen+parityLen symbols.
func New(dataLen, parityLen int) (*Codec, error) {
	if dataLen <= 0 || parityLen < 2 || dataLen+parityLen > 255 {
		return nil, ErrCodeParams
	}
	// generator polynomial with roots alpha^0 .. alpha^(parityLen-1)
	gen := []byte{1}
	for i := 0; i < parityLen; i++ {
		gen = polyMul(gen, []byte{1, gfPow(i)})
	}
	return &Codec{dataLen: dataLen, parityLen: parityLen, gen: gen}, nil
}

// DataLen returns the number of data symbols per block.
func (c *Codec) DataLen() int { return c.dataLen }

// ParityLen returns the number of parity symbols per block.
func (c *Codec) ParityLen() int { return c.parityLen }

// BlockLen returns the total codeword length.
func (c *Codec) BlockLen() int { return c.dataLen + c.parityLen }

// MaxErrors returns the number of symbol errors the code corrects.
func (c *Codec) MaxErrors() int { return c.parityLen / 2 }

// Encode appends parity to a block of exactly DataLen data symbols.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	if len(data) != c.dataLen {
		return nil, ErrBlockLength
	}
	padded := make([]byte, c.dataLen+c.parityLen)
	copy(padded, data)
	parity := polyRem(padded, c.gen)
	out := make([]byte, 0, c.BlockLen())
	out = append(out, data...)
	return append(out, parity...), nil
}

// Decode validates a codeword, correcting up to MaxErrors symbol errors,
// and returns the data symbols together with the number of corrected
// symbols. The input is not modified.
func (c *Codec) Decode(codeword []byte) ([]byte, int, error) {
	if len(codeword) != c.BlockLen() {
		return nil, 0, ErrBlockLength
	}
	synd := c.syndromes(codeword)
	if allZero(synd) {
		return append([]byte{}, codeword[:c.dataLen]...), 0, nil
	}

	word := append([]byte{}, codeword...)
	corrected, err := c.correct(word, synd)
	if err != nil {
		return nil, 0, err
	}
	// Final consistency check. Data is never returned when any syndrome
	// survives correction.
	if !allZero(c.syndromes(word)) {
		return nil, 0, ErrUncorrectable
	}
	return word[:c.dataLen], corrected, nil
}

func (c *Codec) syndromes(word []byte) []byte {
	synd := make([]byte, c.parityLen)
	for i := range synd {
		synd[i] = polyEval(word, gfPow(i))
	}
	return synd
}

// correct locates and repairs symbol errors in place (Berlekamp-Massey,
// Chien search, Forney).
func (c *Codec) correct(word, synd []byte) (int, error) {
	errLoc, err := c.errorLocator(synd)
	if err != nil {
		return 0, err
	}
	errPos, err := c.errorPositions(errLoc, len(word))
	if err != nil {
		return 0, err
	}
	return c.applyMagnitudes(word, synd, errPos)
}

func (c *Codec) errorLocator(synd []byte) ([]byte, error) {
	errLoc := []byte{1}
	oldLoc := []byte{1}
	for i := 0; i < len(synd); i++ {
		delta := synd[i]
		for j := 1; j < len(errLoc); j++ {
			delta ^= gfMul(errLoc[len(errLoc)-1-j], synd[i-j])
		}
		oldLoc = append(oldLoc, 0)
		if delta != 0 {
			if len(oldLoc) > len(errLoc) {
				newLoc := polyScale(oldLoc, delta)
				oldLoc = polyScale(errLoc, gfInv(delta))
				errLoc = newLoc
			}
			errLoc = polyAdd(errLoc, polyScale(oldLoc, delta))
		}
	}
	for len(errLoc) > 0 && errLoc[0] == 0 {
		errLoc = errLoc[1:]
	}
	if errs := len(errLoc) - 1; errs <= 0 || errs*2 > c.parityLen {
		return nil, ErrUncorrectable
	}
	return errLoc, nil
}

func (c *Codec) errorPositions(errLoc []byte, n int) ([]int, error) {
	rev := reverse(errLoc)
	var pos []int
	for i := 0; i < n; i++ {
		if polyEval(rev, gfPow(i)) == 0 {
			pos = append(pos, n-1-i)
		}
	}
	// The number of roots must match the locator degree, otherwise the
	// locator does not describe a correctable error pattern.
	if len(pos) != len(errLoc)-1 {
		return nil, ErrUncorrectable
	}
	return pos, nil
}

func (c *Codec) applyMagnitudes(word, synd []byte, errPos []int) (int, error) {
	n := len(word)
	coefPos := make([]int, len(errPos))
	for i, p := range errPos {
		coefPos[i] = n - 1 - p
	}
	errataLoc := []byte{1}
	for _, p := range coefPos {
		errataLoc = polyMul(errataLoc, polyAdd([]byte{1}, []byte{gfPow(p), 0}))
	}
	prod := polyMul(reverse(synd), errataLoc)
	if keep := len(errataLoc); len(prod) > keep {
		prod = prod[len(prod)-keep:]
	}
	errEval := prod

	x := make([]byte, len(coefPos))
	for i, p := range coefPos {
		x[i] = gfPow(-(255 - p))
	}

	corrected := 0
	for i, xi := range x {
		xiInv := gfInv(xi)
		locPrime := byte(1)
		for j, xj := range x {
			if j != i {
				locPrime = gfMul(locPrime, 1^gfMul(xiInv, xj))
			}
		}
		if locPrime == 0 {
			return 0, ErrUncorrectable
		}
		y := gfMul(xi, polyEval(errEval, xiInv))
		mag := gfDiv(y, locPrime)
		if mag != 0 {
			word[errPos[i]] ^= mag
			corrected++
		}
	}
	return corrected, nil
}

func allZero(p []byte) bool {
	for _, c := range p {
		if c != 0 {
			return false
		}
	}
	return true
}

func reverse(p []byte) []byte {
	out := make([]byte, len(p))
	for i, c := range p {
		out[len(p)-1-i] = c
	}
	return out
}
