package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
)

func TestReadingRoundTrip(t *testing.T) {
	r := Reading{Kind: KindTemperature, Flags: FlagLowBattery, Seq: 1234, Value: -2150}
	buf := r.Marshal()
	require.Len(t, buf, ReadingSize)

	got, err := UnmarshalReading(buf)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestUnmarshalReadingShort(t *testing.T) {
	_, err := UnmarshalReading(make([]byte, ReadingSize-1))
	require.ErrorIs(t, err, ErrShortReading)
}

func TestSimSamplerDriftsAndCounts(t *testing.T) {
	s := NewSimSampler(KindHumidity, 55, 1)

	first, err := s.Sample()
	require.NoError(t, err)
	require.Equal(t, KindHumidity, first.Kind)
	require.Equal(t, uint16(1), first.Seq)
	require.InDelta(t, 5500, first.Value, 51)

	second, err := s.Sample()
	require.NoError(t, err)
	require.Equal(t, uint16(2), second.Seq)
	require.InDelta(t, first.Value, second.Value, 51)
}

type captureSender struct {
	mu   sync.Mutex
	sent chan []byte
	err  error
}

func (c *captureSender) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *captureSender) Send(_ context.Context, peer frame.NodeID, payload []byte) error {
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.sent <- append([]byte{}, payload...)
	return nil
}

func TestReporterSendsReadings(t *testing.T) {
	sender := &captureSender{sent: make(chan []byte, 4)}
	rep := &Reporter{
		Sampler:   NewSimSampler(KindTemperature, 21, 7),
		Sender:    sender,
		Collector: 0x0001,
		Interval:  5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	select {
	case payload := <-sender.sent:
		reading, err := UnmarshalReading(payload)
		require.NoError(t, err)
		require.Equal(t, KindTemperature, reading.Kind)
		require.Equal(t, uint16(1), reading.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading sent")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestReporterKeepsGoingAfterSendFailure(t *testing.T) {
	sender := &captureSender{sent: make(chan []byte, 4), err: errors.New("link down")}
	rep := &Reporter{
		Sampler:   NewSimSampler(KindBattery, 3300, 7),
		Sender:    sender,
		Collector: 0x0001,
		Interval:  2 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	sender.setErr(nil)

	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter stopped after failed send")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
