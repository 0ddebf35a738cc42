package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/framework"
	"github.com/sensorswarm/swarm.go/pkg/node"
	"github.com/sensorswarm/swarm.go/pkg/radio/sim"
	"github.com/sensorswarm/swarm.go/pkg/sensor"
	"github.com/sensorswarm/swarm.go/pkg/uplink"
)

var (
	numNodes  int
	interval  time.Duration
	brokerURL string
)

func init() {
	flag.IntVar(&numNodes, "nodes", 3, "Number of simulated sensor nodes.")
	flag.DurationVar(&interval, "interval", 2*time.Second, "Reporting interval of simulated nodes.")
	flag.StringVar(&brokerURL, "broker", "", "Optional MQTT broker URL for the collector uplink.")
}

const collectorID = 0x0001

func makeNode(medium *sim.Medium, id uint16) (*node.Node, error) {
	cfg := node.DefaultConfig()
	cfg.NodeID = id
	cfg.Radio.Driver = "sim"
	cfg.Report.Collector = collectorID
	cfg.Report.Interval = interval
	return node.New(cfg, medium.Join(fmt.Sprintf("node-%04x", id)))
}

func main() {
	flag.Parse()

	medium := sim.NewMedium()
	runner := framework.NewRunner().HandleSignals()

	collector, err := makeNode(medium, collectorID)
	if err != nil {
		glog.Exit(err)
	}
	runner.Go(collector)
	for i := 0; i < numNodes; i++ {
		n, err := makeNode(medium, collectorID+1+uint16(i))
		if err != nil {
			glog.Exit(err)
		}
		runner.Go(n)
	}

	if brokerURL != "" {
		queue, err := uplink.NewQueueFromURL(brokerURL)
		if err != nil {
			glog.Exit(err)
		}
		runner.Go(&uplink.Publisher{Queue: queue, Source: collector.Engine.Received()})
	} else {
		runner.Go(framework.NamedRun("printer", framework.RunFunc(func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case d := <-collector.Engine.Received():
					reading, err := sensor.UnmarshalReading(d.Payload)
					if err != nil {
						glog.Infof("%04x: %x", uint16(d.Peer), d.Payload)
						continue
					}
					glog.Infof("%04x: %s seq=%d value=%.2f",
						uint16(d.Peer), reading.Kind, reading.Seq, float64(reading.Value)/100)
				}
			}
		})))
	}

	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
