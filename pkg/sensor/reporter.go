package sensor

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/framework"
	"github.com/sensorswarm/swarm.go/pkg/link/frame"
)

// Sender is the slice of the link engine the reporter needs.
type Sender interface {
	Send(ctx context.Context, peer frame.NodeID, payload []byte) error
}

// Reporter periodically samples and sends readings to the collector. A
// send that exhausts its retries is logged and dropped; the next tick
// carries a fresh reading instead of a backlog.
type Reporter struct {
	Sampler   Sampler
	Sender    Sender
	Collector frame.NodeID
	Interval  time.Duration
}

var _ framework.Runnable = (*Reporter)(nil)

// Name implements framework.Named.
func (r *Reporter) Name() string { return "reporter" }

// Run implements framework.Runnable.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		reading, err := r.Sampler.Sample()
		if err != nil {
			glog.Warningf("reporter: sample failed: %v", err)
			continue
		}
		if err := r.Sender.Send(ctx, r.Collector, reading.Marshal()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("reporter: %s seq=%d not delivered: %v", reading.Kind, reading.Seq, err)
			continue
		}
		glog.V(1).Infof("reporter: %s seq=%d value=%d delivered", reading.Kind, reading.Seq, reading.Value)
	}
}
