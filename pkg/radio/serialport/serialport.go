// Package serialport drives a serial-attached OOK transceiver dongle. The
// dongle keys the carrier from symbol buffers written to the port and
// forwards demodulated symbol buffers back, each prefixed with a 16-bit
// little-endian length.
package serialport

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/sensorswarm/swarm.go/pkg/radio"
)

// maxBuffer bounds a single symbol buffer coming off the wire. Anything
// larger than a full line-coded frame is dongle garbage.
const maxBuffer = 4096

// Driver adapts a serial port to radio.Transceiver.
type Driver struct {
	port serial.Port
	name string
}

var _ radio.Transceiver = (*Driver)(nil)

// Open opens the dongle on the named port.
func Open(name string, baud int) (*Driver, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}
	glog.Infof("serialport: opened %s at %d baud", name, baud)
	return &Driver{port: port, name: name}, nil
}

// Transmit implements radio.Transceiver.
func (d *Driver) Transmit(ctx context.Context, symbols []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, 2+len(symbols))
	binary.LittleEndian.PutUint16(buf, uint16(len(symbols)))
	copy(buf[2:], symbols)
	if _, err := d.port.Write(buf); err != nil {
		return fmt.Errorf("serialport: write %s: %w", d.name, err)
	}
	return nil
}

// Receive implements radio.Transceiver.
func (d *Driver) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	head, err := d.readFull(ctx, 2, deadline)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(head))
	if n == 0 || n > maxBuffer {
		glog.Warningf("serialport: bogus buffer length %d from %s", n, d.name)
		return nil, radio.ErrTimeout
	}
	// The header arrived, so the body is already in flight; allow a grace
	// window beyond the caller deadline rather than splitting a buffer.
	return d.readFull(ctx, n, time.Now().Add(200*time.Millisecond))
}

func (d *Driver) readFull(ctx context.Context, n int, deadline time.Time) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, radio.ErrTimeout
		}
		if err := d.port.SetReadTimeout(remain); err != nil {
			return nil, fmt.Errorf("serialport: set timeout: %w", err)
		}
		k, err := d.port.Read(buf[got:])
		if err != nil {
			return nil, fmt.Errorf("serialport: read %s: %w", d.name, err)
		}
		if k == 0 {
			return nil, radio.ErrTimeout
		}
		got += k
	}
	return buf, nil
}

// Close releases the port.
func (d *Driver) Close() error {
	return d.port.Close()
}
