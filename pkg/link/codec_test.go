package link

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/link/manchester"
)

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec()
	pkt := &frame.Packet{
		Sender:   0x1234,
		Receiver: 0xabcd,
		Seq:      7,
		Payload:  []byte("sensor reading 42"),
	}

	symbols, err := c.Encode(pkt)
	require.NoError(t, err)
	// Line coding doubles the block stream.
	require.Zero(t, len(symbols)%(2*(BlockData+BlockParity)))

	got, corrected, err := c.Decode(symbols)
	require.NoError(t, err)
	require.Zero(t, corrected)
	require.Equal(t, pkt, got)
}

// swapBitPairs flips a decoded data byte while keeping the symbol stream
// legal Manchester, modelling in-band channel noise.
func swapBitPairs(b byte) byte {
	return (b&0xaa)>>1 | (b&0x55)<<1
}

func TestCodecCorrectsSymbolErrors(t *testing.T) {
	c := NewCodec()
	pkt := &frame.Packet{Sender: 1, Receiver: 2, Seq: 3, Payload: []byte{0xde, 0xad}}

	symbols, err := c.Encode(pkt)
	require.NoError(t, err)

	// Damage four distinct data bytes of the first block, the full
	// correction budget of a 16+8 code.
	for i := 0; i < 4; i++ {
		symbols[2*i] = swapBitPairs(symbols[2*i])
	}

	got, corrected, err := c.Decode(symbols)
	require.NoError(t, err)
	require.Equal(t, 4, corrected)
	require.Equal(t, pkt, got)
}

func TestCodecRejectsExcessDamage(t *testing.T) {
	c := NewCodec()
	pkt := &frame.Packet{Sender: 1, Receiver: 2, Seq: 3, Payload: []byte{0xff}}

	symbols, err := c.Encode(pkt)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		symbols[2*i] = swapBitPairs(symbols[2*i])
	}

	_, _, err = c.Decode(symbols)
	require.Error(t, err)
}

func TestCodecRejectsMisalignedStream(t *testing.T) {
	c := NewCodec()
	_, _, err := c.Decode(manchester.Encode([]byte{1, 2, 3}))
	require.ErrorIs(t, err, ErrBlockAlignment)
}

func TestCodecRejectsLineCodeViolation(t *testing.T) {
	c := NewCodec()
	pkt := &frame.Packet{Sender: 1, Receiver: 2}
	symbols, err := c.Encode(pkt)
	require.NoError(t, err)

	symbols[0] = 0x00 // illegal low-low transitions
	_, _, err = c.Decode(symbols)
	require.ErrorIs(t, err, manchester.ErrInvalidTransition)
}
