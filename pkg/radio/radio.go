// Package radio defines the narrow transceiver capability consumed by the
// link engine. The engine never touches a peripheral directly; hardware
// drivers and the in-process simulator both satisfy Transceiver.
package radio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout indicates no transmission was observed within the
	// receive window. It is the only radio error the link engine treats
	// as recoverable.
	ErrTimeout = errors.New("radio: receive timeout")
	// ErrClosed indicates the transceiver has been shut down.
	ErrClosed = errors.New("radio: closed")
)

// Transceiver is a half-duplex OOK transceiver. Transmit and Receive are
// mutually exclusive; callers serialize access. The symbol buffers carry
// line-coded channel symbols, not raw packet bytes.
type Transceiver interface {
	// Transmit sends one symbol buffer on the air.
	Transmit(ctx context.Context, symbols []byte) error
	// Receive waits up to timeout for one symbol buffer. It returns
	// ErrTimeout when the air stayed idle; any other error is a hardware
	// fault the caller cannot recover from.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// IsTimeout reports whether err is the recoverable receive timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
