package uplink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/framework"
	"github.com/sensorswarm/swarm.go/pkg/link"
	"github.com/sensorswarm/swarm.go/pkg/sensor"
)

// Record is the JSON document published per reading.
type Record struct {
	Node  string `json:"node"`
	Kind  string `json:"kind"`
	Seq   uint16 `json:"seq"`
	Value int32  `json:"value"`
	Flags uint8  `json:"flags,omitempty"`
}

// Publisher drains link deliveries and publishes them to the broker.
// Readings go to <prefix>/<node>/data as JSON; payloads that are not
// reading records go to <prefix>/<node>/raw untouched.
type Publisher struct {
	Queue  *Queue
	Source <-chan link.Delivery
}

var _ framework.Runnable = (*Publisher)(nil)

// Name implements framework.Named.
func (p *Publisher) Name() string { return "uplink" }

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.Queue.Connect()
	if token.Wait(); token.Error() != nil {
		return fmt.Errorf("uplink: connect: %w", token.Error())
	}
	defer p.Queue.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-p.Source:
			p.publish(d)
		}
	}
}

func (p *Publisher) publish(d link.Delivery) {
	node := fmt.Sprintf("%04x", uint16(d.Peer))
	reading, err := sensor.UnmarshalReading(d.Payload)
	if err != nil {
		p.Queue.Pub(node+"/raw", d.Payload)
		return
	}
	doc, err := json.Marshal(Record{
		Node:  node,
		Kind:  reading.Kind.String(),
		Seq:   reading.Seq,
		Value: reading.Value,
		Flags: reading.Flags,
	})
	if err != nil {
		glog.Errorf("uplink: encode reading from %s: %v", node, err)
		return
	}
	p.Queue.Pub(node+"/data", doc)
}
