package link

import (
	"errors"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/link/manchester"
	"github.com/sensorswarm/swarm.go/pkg/link/rs"
)

// Block geometry of the forward error correction layer. Every frame is
// split into blocks of BlockData bytes (zero-padded at the tail, the true
// length travels in the frame header) and each block carries BlockParity
// parity symbols, correcting up to BlockParity/2 corrupted symbols.
const (
	BlockData   = 16
	BlockParity = 8
)

// ErrBlockAlignment indicates a symbol stream whose decoded length is not
// a whole number of FEC blocks.
var ErrBlockAlignment = errors.New("link: misaligned block stream")

// Codec composes the three wire layers: frame serialization, Reed-Solomon
// block coding and Manchester line coding. It holds no state between
// packets and is safe for concurrent use.
type Codec struct {
	rs *rs.Codec
}

// NewCodec creates the codec with the fixed link block geometry.
func NewCodec() *Codec {
	c, err := rs.New(BlockData, BlockParity)
	if err != nil {
		panic(err) // unreachable with the package constants
	}
	return &Codec{rs: c}
}

// Encode serializes a packet and produces channel symbols:
// frame -> RS blocks -> Manchester.
func (c *Codec) Encode(p *frame.Packet) ([]byte, error) {
	data, err := frame.Marshal(p)
	if err != nil {
		return nil, err
	}
	blocks := (len(data) + BlockData - 1) / BlockData
	coded := make([]byte, 0, blocks*c.rs.BlockLen())
	chunk := make([]byte, BlockData)
	for i := 0; i < blocks; i++ {
		for j := range chunk {
			chunk[j] = 0
		}
		copy(chunk, data[i*BlockData:])
		word, err := c.rs.Encode(chunk)
		if err != nil {
			return nil, err
		}
		coded = append(coded, word...)
	}
	return manchester.Encode(coded), nil
}

// Decode runs the reverse path and reports the total number of symbols
// the error correction repaired. A failure at any layer propagates
// without recovery attempts in the layers below it.
func (c *Codec) Decode(symbols []byte) (*frame.Packet, int, error) {
	coded := make([]byte, manchester.DecodedLen(len(symbols)))
	n, err := manchester.Decode(coded, symbols)
	if err != nil {
		return nil, 0, err
	}
	coded = coded[:n]
	blockLen := c.rs.BlockLen()
	if len(coded) == 0 || len(coded)%blockLen != 0 {
		return nil, 0, ErrBlockAlignment
	}
	data := make([]byte, 0, len(coded)/blockLen*BlockData)
	corrected := 0
	for off := 0; off < len(coded); off += blockLen {
		block, fixed, err := c.rs.Decode(coded[off : off+blockLen])
		if err != nil {
			return nil, 0, err
		}
		corrected += fixed
		data = append(data, block...)
	}
	pkt, err := frame.Unmarshal(data)
	if err != nil {
		return nil, 0, err
	}
	return pkt, corrected, nil
}
