package rs

// Arithmetic over GF(2^8) with the primitive polynomial
// x^8 + x^4 + x^3 + x^2 + 1 (0x11d), generator element 2.

const fieldPoly = 0x11d

var (
	expTab [512]byte // doubled so products index without a mod
	logTab [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		expTab[i] = byte(x)
		logTab[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= fieldPoly
		}
	}
	for i := 255; i < 512; i++ {
		expTab[i] = expTab[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTab[int(logTab[a])+int(logTab[b])]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return expTab[int(logTab[a])+255-int(logTab[b])]
}

func gfInv(a byte) byte {
	return expTab[255-int(logTab[a])]
}

func gfPow(p int) byte {
	p %= 255
	if p < 0 {
		p += 255
	}
	return expTab[p]
}

// Polynomials are coefficient slices with the highest degree first.

func polyScale(p []byte, x byte) []byte {
	out := make([]byte, len(p))
	for i, c := range p {
		out[i] = gfMul(c, x)
	}
	return out
}

func polyAdd(p, q []byte) []byte {
	out := make([]byte, max(len(p), len(q)))
	copy(out[len(out)-len(p):], p)
	for i, c := range q {
		out[len(out)-len(q)+i] ^= c
	}
	return out
}

func polyMul(p, q []byte) []byte {
	out := make([]byte, len(p)+len(q)-1)
	for i, cp := range p {
		for j, cq := range q {
			out[i+j] ^= gfMul(cp, cq)
		}
	}
	return out
}

// polyRem returns the remainder of dividend / divisor.
func polyRem(dividend, divisor []byte) []byte {
	out := append([]byte{}, dividend...)
	for i := 0; i <= len(dividend)-len(divisor); i++ {
		coef := out[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(divisor); j++ {
			out[i+j] ^= gfMul(divisor[j], coef)
		}
	}
	return out[len(dividend)-len(divisor)+1:]
}

func polyEval(p []byte, x byte) byte {
	var y byte
	for _, c := range p {
		y = gfMul(y, x) ^ c
	}
	return y
}
