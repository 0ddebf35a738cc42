package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/radio/sim"
)

const (
	nodeA frame.NodeID = 0x0001
	nodeB frame.NodeID = 0x0002
	nodeC frame.NodeID = 0x0003
)

func testConfig() Config {
	return Config{
		MaxRetries:        4,
		BaseTimeout:       40 * time.Millisecond,
		BackoffMultiplier: 1.5,
		SessionCapacity:   8,
		ReceiveWindow:     5 * time.Millisecond,
		QueueDepth:        8,
	}
}

func startEngine(t *testing.T, m *sim.Medium, name string, id frame.NodeID, cfg Config) *Engine {
	t.Helper()
	e := New(id, m.Join(name), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func waitDelivery(t *testing.T, e *Engine) Delivery {
	t.Helper()
	select {
	case d := <-e.Received():
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery within deadline")
		return Delivery{}
	}
}

func TestSendDelivers(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	err := a.Send(context.Background(), nodeB, []byte("hello"))
	require.NoError(t, err)

	d := waitDelivery(t, b)
	require.Equal(t, nodeA, d.Peer)
	require.Equal(t, []byte("hello"), d.Payload)
	require.EqualValues(t, 0, a.Stats(nodeB).Retries)
}

func TestRetryRecoversFromDrops(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	// The channel eats the first two attempts; the third goes through.
	m.DropNext(2)
	err := a.Send(context.Background(), nodeB, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.EqualValues(t, 2, a.Stats(nodeB).Retries)

	d := waitDelivery(t, b)
	require.Equal(t, []byte{0x01, 0x02}, d.Payload)

	// Exactly one delivery reached the application.
	_, _, ok := b.PollReceived()
	require.False(t, ok)
}

func TestRetriesExhausted(t *testing.T) {
	m := sim.NewMedium()
	cfg := testConfig()
	a := startEngine(t, m, "a", nodeA, cfg)
	startEngine(t, m, "b", nodeB, cfg)

	m.SetFilter(func(string, []byte) bool { return false })
	err := a.Send(context.Background(), nodeB, []byte("void"))
	require.ErrorIs(t, err, ErrRetriesExhausted)
	// Initial transmission plus the retries add up to MaxRetries attempts.
	require.EqualValues(t, cfg.MaxRetries-1, a.Stats(nodeB).Retries)

	snaps := a.Sessions()
	require.NotEmpty(t, snaps)
	for _, s := range snaps {
		if s.Peer == nodeB {
			require.Equal(t, "idle", s.State)
			require.True(t, s.Deadline.IsZero())
		}
	}
}

func TestDuplicateSuppression(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	// Lose the first acknowledgment so the sender retransmits a frame the
	// receiver already handled.
	lost := false
	m.SetFilter(func(from string, _ []byte) bool {
		if from == "b" && !lost {
			lost = true
			return false
		}
		return true
	})

	err := a.Send(context.Background(), nodeB, []byte("once"))
	require.NoError(t, err)
	require.EqualValues(t, 1, a.Stats(nodeB).Retries)

	d := waitDelivery(t, b)
	require.Equal(t, []byte("once"), d.Payload)
	_, _, ok := b.PollReceived()
	require.False(t, ok, "duplicate must not be delivered twice")

	require.Eventually(t, func() bool {
		return b.Stats(nodeA).Drops == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesAllWithoutAck(t *testing.T) {
	m := sim.NewMedium()
	transmissions := 0
	m.SetFilter(func(string, []byte) bool {
		transmissions++
		return true
	})
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())
	c := startEngine(t, m, "c", nodeC, testConfig())

	err := a.Broadcast(context.Background(), []byte("all"))
	require.NoError(t, err)

	require.Equal(t, []byte("all"), waitDelivery(t, b).Payload)
	require.Equal(t, []byte("all"), waitDelivery(t, c).Payload)

	// Give the receivers time to (wrongly) acknowledge.
	time.Sleep(50 * time.Millisecond)
	m.SetFilter(nil)
	require.Equal(t, 1, transmissions, "broadcast must stay unacknowledged")
}

func TestSequentialSendsAdvanceSeq(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	require.NoError(t, a.Send(context.Background(), nodeB, []byte("one")))
	require.NoError(t, a.Send(context.Background(), nodeB, []byte("two")))

	require.Equal(t, []byte("one"), waitDelivery(t, b).Payload)
	require.Equal(t, []byte("two"), waitDelivery(t, b).Payload)

	for _, s := range a.Sessions() {
		if s.Peer == nodeB {
			require.Equal(t, uint8(1), s.LastSentSeq)
			require.Equal(t, uint8(1), s.LastAckedSeq)
		}
	}
	require.EqualValues(t, 0, b.Stats(nodeA).Drops)
}

func TestCorruptionCorrectedInFlight(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	m.CorruptNext(1, 3)
	err := a.Send(context.Background(), nodeB, []byte("fec"))
	require.NoError(t, err)

	require.Equal(t, []byte("fec"), waitDelivery(t, b).Payload)
	require.EqualValues(t, 3, b.Stats(nodeA).CorrectedErrors)
	// The damage stayed within the code's budget, so no retry happened.
	require.EqualValues(t, 0, a.Stats(nodeB).Retries)
}

func TestSendPayloadTooLarge(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())

	err := a.Send(context.Background(), nodeB, make([]byte, frame.MaxPayload+1))
	require.ErrorIs(t, err, frame.ErrPayloadTooLarge)
}

func TestSendCancellation(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	m.SetFilter(func(string, []byte) bool { return false })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := a.Send(ctx, nodeB, []byte("gone"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Cancellation returns the session to idle with the timer disarmed.
	require.Eventually(t, func() bool {
		for _, s := range a.Sessions() {
			if s.Peer == nodeB {
				return s.State == "idle" && s.Deadline.IsZero()
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func sessionSnapshot(e *Engine, peer frame.NodeID) (SessionSnapshot, bool) {
	for _, s := range e.Sessions() {
		if s.Peer == peer {
			return s, true
		}
	}
	return SessionSnapshot{}, false
}

func TestQueuedSendProceedsAfterCancel(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	// Black out the channel so the first send stays in flight.
	m.SetFilter(func(string, []byte) bool { return false })

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- a.Send(ctx1, nodeB, []byte("first")) }()
	require.Eventually(t, func() bool {
		snap, ok := sessionSnapshot(a, nodeB)
		return ok && snap.State != "idle"
	}, 2*time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- a.Send(context.Background(), nodeB, []byte("second")) }()
	require.Eventually(t, func() bool {
		snap, ok := sessionSnapshot(a, nodeB)
		return ok && snap.QueueLen == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel1()
	require.ErrorIs(t, <-first, context.Canceled)

	// With the channel healed, the queued send must complete on its own.
	m.SetFilter(nil)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("queued send never completed after cancellation of its predecessor")
	}
	require.Equal(t, []byte("second"), waitDelivery(t, b).Payload)
}

func TestBroadcastDoesNotShadowUnicastSeq(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	// Both destinations draw their first sequence independently, so the
	// broadcast and the unicast carry the same seq on the air.
	require.NoError(t, a.Broadcast(context.Background(), []byte("all")))
	require.Equal(t, []byte("all"), waitDelivery(t, b).Payload)

	require.NoError(t, a.Send(context.Background(), nodeB, []byte("direct")))
	require.Equal(t, []byte("direct"), waitDelivery(t, b).Payload)
	require.EqualValues(t, 0, b.Stats(nodeA).Drops)
}

func TestRepeatedBroadcastsAllDelivered(t *testing.T) {
	m := sim.NewMedium()
	a := startEngine(t, m, "a", nodeA, testConfig())
	b := startEngine(t, m, "b", nodeB, testConfig())

	require.NoError(t, a.Broadcast(context.Background(), []byte{1}))
	require.NoError(t, a.Broadcast(context.Background(), []byte{2}))
	require.Equal(t, []byte{1}, waitDelivery(t, b).Payload)
	require.Equal(t, []byte{2}, waitDelivery(t, b).Payload)
}

func TestSendAfterStop(t *testing.T) {
	m := sim.NewMedium()
	e := New(nodeA, m.Join("a"), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	cancel()
	<-done

	err := e.Send(context.Background(), nodeB, []byte("late"))
	require.ErrorIs(t, err, ErrStopped)
}
