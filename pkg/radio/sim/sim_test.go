package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensorswarm/swarm.go/pkg/link/manchester"
	"github.com/sensorswarm/swarm.go/pkg/radio"
)

func TestDelivery(t *testing.T) {
	m := NewMedium()
	a, b := m.Join("a"), m.Join("b")

	require.NoError(t, a.Transmit(context.Background(), []byte{1, 2, 3}))
	got, err := b.Receive(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)

	// The sender does not hear itself.
	_, err = a.Receive(context.Background(), 10*time.Millisecond)
	require.Equal(t, radio.ErrTimeout, err)
}

func TestDropNext(t *testing.T) {
	m := NewMedium()
	a, b := m.Join("a"), m.Join("b")
	m.DropNext(2)

	for i := 0; i < 2; i++ {
		require.NoError(t, a.Transmit(context.Background(), []byte{byte(i)}))
		_, err := b.Receive(context.Background(), 10*time.Millisecond)
		require.Equal(t, radio.ErrTimeout, err)
	}
	require.NoError(t, a.Transmit(context.Background(), []byte{9}))
	got, err := b.Receive(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{9}, got)
}

func TestCorruptKeepsLineCodeLegal(t *testing.T) {
	m := NewMedium()
	a, b := m.Join("a"), m.Join("b")

	data := []byte{0x11, 0x22, 0x33, 0x44}
	m.CorruptNext(1, 2)
	require.NoError(t, a.Transmit(context.Background(), manchester.Encode(data)))
	got, err := b.Receive(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)

	decoded := make([]byte, manchester.DecodedLen(len(got)))
	n, err := manchester.Decode(decoded, got)
	require.NoError(t, err, "corruption must stay a legal line code")
	require.NotEqual(t, data, decoded[:n], "corruption must change decoded bytes")
}

func TestFilter(t *testing.T) {
	m := NewMedium()
	a, b := m.Join("a"), m.Join("b")
	seen := 0
	m.SetFilter(func(from string, symbols []byte) bool {
		seen++
		return seen > 1
	})

	require.NoError(t, a.Transmit(context.Background(), []byte{1}))
	_, err := b.Receive(context.Background(), 10*time.Millisecond)
	require.Equal(t, radio.ErrTimeout, err)

	require.NoError(t, a.Transmit(context.Background(), []byte{2}))
	got, err := b.Receive(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{2}, got)
}

func TestClosed(t *testing.T) {
	m := NewMedium()
	a := m.Join("a")
	a.Close()
	require.Equal(t, radio.ErrClosed, a.Transmit(context.Background(), []byte{1}))
}
