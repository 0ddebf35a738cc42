package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/cli/sh"
	"github.com/sensorswarm/swarm.go/pkg/node"

	_ "github.com/sensorswarm/swarm.go/pkg/cli/cmds/all"
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
	// The console drives the link by hand.
	cfg.Report.Interval = 0
	rt, err := node.OpenRadio(cfg.Radio)
	if err != nil {
		glog.Exit(err)
	}
	n, err := node.New(cfg, rt)
	if err != nil {
		glog.Exit(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	sh.New(ctx, n).Run(flag.Args()...)
}
