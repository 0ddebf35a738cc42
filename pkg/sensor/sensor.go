// Package sensor defines the measurement model of a node and the reporter
// that ships readings to the collector over the link layer.
package sensor

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"sync"
)

// Kind identifies a measurement channel.
type Kind uint8

const (
	KindTemperature Kind = iota + 1
	KindHumidity
	KindBattery
	KindLight
)

func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindHumidity:
		return "humidity"
	case KindBattery:
		return "battery"
	case KindLight:
		return "light"
	}
	return "unknown"
}

// Reading flags.
const (
	// FlagLowBattery marks readings taken below the battery threshold.
	FlagLowBattery uint8 = 1 << 0
	// FlagStale marks a cached value repeated after a sampling failure.
	FlagStale uint8 = 1 << 1
)

// ReadingSize is the wire size of one marshalled reading.
const ReadingSize = 8

// ErrShortReading indicates a buffer smaller than one reading record.
var ErrShortReading = errors.New("sensor: short reading")

// Reading is one measurement. Value carries centi-units of the kind's
// natural unit (centidegrees, centipercent, millivolts for battery).
type Reading struct {
	Kind  Kind
	Flags uint8
	Seq   uint16
	Value int32
}

// Marshal encodes the reading little-endian:
// kind(1) flags(1) seq(2) value(4).
func (r Reading) Marshal() []byte {
	buf := make([]byte, ReadingSize)
	buf[0] = byte(r.Kind)
	buf[1] = r.Flags
	binary.LittleEndian.PutUint16(buf[2:], r.Seq)
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.Value))
	return buf
}

// UnmarshalReading decodes one reading record.
func UnmarshalReading(buf []byte) (Reading, error) {
	if len(buf) < ReadingSize {
		return Reading{}, ErrShortReading
	}
	return Reading{
		Kind:  Kind(buf[0]),
		Flags: buf[1],
		Seq:   binary.LittleEndian.Uint16(buf[2:]),
		Value: int32(binary.LittleEndian.Uint32(buf[4:])),
	}, nil
}

// Sampler produces measurements on demand.
type Sampler interface {
	Sample() (Reading, error)
}

// SimSampler synthesizes a slowly drifting measurement for host-side
// simulation. It is safe for concurrent use.
type SimSampler struct {
	kind Kind

	mu    sync.Mutex
	rnd   *rand.Rand
	value float64
	seq   uint16
}

var _ Sampler = (*SimSampler)(nil)

// NewSimSampler creates a sampler around the given start value.
func NewSimSampler(kind Kind, start float64, seed int64) *SimSampler {
	return &SimSampler{
		kind:  kind,
		rnd:   rand.New(rand.NewSource(seed)),
		value: start,
	}
}

// Sample implements Sampler with a bounded random walk.
func (s *SimSampler) Sample() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value += s.rnd.Float64() - 0.5
	s.seq++
	return Reading{
		Kind:  s.kind,
		Seq:   s.seq,
		Value: int32(math.Round(s.value * 100)),
	}, nil
}
