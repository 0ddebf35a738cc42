// Package frame defines the bit-exact wire layout of link packets.
//
// Layout (little-endian, fixed offsets):
//
//	Sender(2) | Receiver(2) | Seq(1) | Flags(1) | PayloadLen(1) |
//	Payload(0..MaxPayload) | CRC32(4)
//
// The CRC32 (IEEE) covers the header and payload. The framer performs no
// error correction or line coding; those are separate layers composed by
// the link engine.
package frame

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// MaxPayload is the maximum payload bytes per packet.
	MaxPayload = 32
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 7
	// TrailerSize is the length of the integrity field.
	TrailerSize = 4
	// MinFrameSize is the smallest valid frame (empty payload).
	MinFrameSize = HeaderSize + TrailerSize
	// MaxFrameSize is the physical frame budget.
	MaxFrameSize = HeaderSize + MaxPayload + TrailerSize
)

// NodeID identifies a node on the radio network.
type NodeID uint16

// Broadcast addresses every node in range. Broadcast packets are never
// acknowledged.
const Broadcast NodeID = 0xffff

// Flags carries packet control bits.
type Flags uint8

const (
	// FlagAck marks an acknowledgment; Seq echoes the acknowledged packet.
	FlagAck Flags = 1 << iota
	// FlagRetry marks a retransmission of a previously sent sequence.
	FlagRetry
)

// IsAck reports whether the ACK bit is set.
func (f Flags) IsAck() bool { return f&FlagAck != 0 }

// IsRetry reports whether the RETRY bit is set.
func (f Flags) IsRetry() bool { return f&FlagRetry != 0 }

var (
	// ErrPayloadTooLarge indicates the payload exceeds MaxPayload.
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	// ErrTruncated indicates the buffer is shorter than the frame it
	// declares.
	ErrTruncated = errors.New("frame: truncated")
	// ErrLengthMismatch indicates an impossible declared payload length.
	ErrLengthMismatch = errors.New("frame: length mismatch")
	// ErrIntegrityMismatch indicates a CRC failure.
	ErrIntegrityMismatch = errors.New("frame: integrity mismatch")
)

// Packet is one link-layer packet.
type Packet struct {
	Sender   NodeID
	Receiver NodeID
	Seq      uint8
	Flags    Flags
	Payload  []byte
}

// Marshal serializes the packet.
func Marshal(p *Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	data := make([]byte, HeaderSize+len(p.Payload)+TrailerSize)
	binary.LittleEndian.PutUint16(data[0:2], uint16(p.Sender))
	binary.LittleEndian.PutUint16(data[2:4], uint16(p.Receiver))
	data[4] = p.Seq
	data[5] = byte(p.Flags)
	data[6] = byte(len(p.Payload))
	copy(data[HeaderSize:], p.Payload)
	crcPos := HeaderSize + len(p.Payload)
	binary.LittleEndian.PutUint32(data[crcPos:], crc32.ChecksumIEEE(data[:crcPos]))
	return data, nil
}

// Unmarshal validates a buffer and constructs the packet it contains.
// Trailing bytes beyond the declared frame are ignored; the error
// correction layer pads blocks to a fixed size and the header length field
// is authoritative. A packet is only ever constructed from a buffer that
// passed every structural and integrity check.
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) < MinFrameSize {
		return nil, ErrTruncated
	}
	payloadLen := int(data[6])
	if payloadLen > MaxPayload {
		return nil, ErrLengthMismatch
	}
	total := HeaderSize + payloadLen + TrailerSize
	if len(data) < total {
		return nil, ErrTruncated
	}
	crcPos := HeaderSize + payloadLen
	want := binary.LittleEndian.Uint32(data[crcPos : crcPos+TrailerSize])
	if crc32.ChecksumIEEE(data[:crcPos]) != want {
		return nil, ErrIntegrityMismatch
	}
	p := &Packet{
		Sender:   NodeID(binary.LittleEndian.Uint16(data[0:2])),
		Receiver: NodeID(binary.LittleEndian.Uint16(data[2:4])),
		Seq:      data[4],
		Flags:    Flags(data[5]),
	}
	if payloadLen > 0 {
		p.Payload = append([]byte{}, data[HeaderSize:crcPos]...)
	}
	return p, nil
}
