// Package sim provides an in-process shared radio medium for tests and
// host-side simulation. Ports joined to one Medium hear each other's
// transmissions; drops and symbol corruption can be scripted to exercise
// the retry and error correction paths.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/radio"
)

// Filter decides the fate of one transmission. Returning false drops it
// for every listener.
type Filter func(from string, symbols []byte) bool

// Medium is a simulated shared OOK channel.
type Medium struct {
	mu       sync.Mutex
	ports    []*Port
	filter   Filter
	dropLeft int
	flipLeft int
	flipN    int
}

// NewMedium creates an empty medium.
func NewMedium() *Medium {
	return &Medium{}
}

// Join attaches a named port to the medium.
func (m *Medium) Join(name string) *Port {
	p := &Port{medium: m, name: name, rx: make(chan []byte, 16)}
	m.mu.Lock()
	m.ports = append(m.ports, p)
	m.mu.Unlock()
	return p
}

// SetFilter installs a custom transmission filter.
func (m *Medium) SetFilter(f Filter) {
	m.mu.Lock()
	m.filter = f
	m.mu.Unlock()
}

// DropNext drops the next n transmissions on the medium.
func (m *Medium) DropNext(n int) {
	m.mu.Lock()
	m.dropLeft = n
	m.mu.Unlock()
}

// CorruptNext corrupts the next n transmissions by swapping the bit pairs
// of k symbol bytes. A pair swap keeps the Manchester coding legal while
// flipping the decoded bits, which surfaces as symbol errors at the error
// correction layer rather than a line-code violation.
func (m *Medium) CorruptNext(n, k int) {
	m.mu.Lock()
	m.flipLeft, m.flipN = n, k
	m.mu.Unlock()
}

func swapPairs(b byte) byte {
	return (b&0xaa)>>1 | (b&0x55)<<1
}

func (m *Medium) transmit(from *Port, symbols []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from.closed {
		return radio.ErrClosed
	}
	if m.dropLeft > 0 {
		m.dropLeft--
		glog.V(2).Infof("sim: dropped transmission from %s (%d symbols)", from.name, len(symbols))
		return nil
	}
	if m.filter != nil && !m.filter(from.name, symbols) {
		glog.V(2).Infof("sim: filtered transmission from %s", from.name)
		return nil
	}
	out := append([]byte{}, symbols...)
	if m.flipLeft > 0 {
		m.flipLeft--
		// Corrupt distinct data bytes: symbol bytes 2i and 2i+1 decode to
		// one data byte, so stride by two.
		for i := 0; i < m.flipN && 2*i < len(out); i++ {
			out[2*i] = swapPairs(out[2*i])
		}
		glog.V(2).Infof("sim: corrupted %d symbol bytes from %s", m.flipN, from.name)
	}
	for _, p := range m.ports {
		if p == from || p.closed {
			continue
		}
		select {
		case p.rx <- out:
		default:
			// Listener backlog full; the air does not wait.
			glog.V(1).Infof("sim: %s overrun, transmission lost", p.name)
		}
	}
	return nil
}

// Port is one transceiver attached to the medium.
type Port struct {
	medium *Medium
	name   string
	rx     chan []byte
	closed bool
}

var _ radio.Transceiver = (*Port)(nil)

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// Transmit implements radio.Transceiver.
func (p *Port) Transmit(ctx context.Context, symbols []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.medium.transmit(p, symbols)
}

// Receive implements radio.Transceiver.
func (p *Port) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case symbols, ok := <-p.rx:
		if !ok {
			return nil, radio.ErrClosed
		}
		return symbols, nil
	case <-timer.C:
		return nil, radio.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the port. Subsequent operations fail with ErrClosed.
func (p *Port) Close() {
	p.medium.mu.Lock()
	p.closed = true
	p.medium.mu.Unlock()
}
