package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/framework"
	"github.com/sensorswarm/swarm.go/pkg/node"
	"github.com/sensorswarm/swarm.go/pkg/uplink"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "swarmnode.yaml", "Path of the node config file.")
}

func main() {
	flag.Parse()

	cfg, err := node.LoadConfig(configPath)
	if err != nil {
		glog.Exit(err)
	}
	rt, err := node.OpenRadio(cfg.Radio)
	if err != nil {
		glog.Exit(err)
	}
	n, err := node.New(cfg, rt)
	if err != nil {
		glog.Exit(err)
	}

	runner := framework.NewRunner().HandleSignals()
	runner.Go(n)
	if cfg.Uplink.Broker != "" {
		queue, err := uplink.NewQueueFromURL(cfg.Uplink.Broker)
		if err != nil {
			glog.Exit(err)
		}
		runner.Go(&uplink.Publisher{Queue: queue, Source: n.Engine.Received()})
	}
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
