// Package node assembles a sensor node: persisted settings, the link
// engine over a radio backend, and the periodic reporter.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/eeprom"
	"github.com/sensorswarm/swarm.go/pkg/framework"
	"github.com/sensorswarm/swarm.go/pkg/link"
	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/radio"
	"github.com/sensorswarm/swarm.go/pkg/radio/serialport"
	"github.com/sensorswarm/swarm.go/pkg/sensor"
)

// Node is one assembled swarm participant.
type Node struct {
	Config   Config
	Settings eeprom.Settings
	Store    eeprom.Store
	Engine   *link.Engine
	Sampler  sensor.Sampler

	reporter *sensor.Reporter
}

// OpenRadio opens the transceiver backend named by the config. The sim
// driver has no standalone backend; simulated nodes are wired to a
// shared medium by their host process instead.
func OpenRadio(cfg RadioConfig) (radio.Transceiver, error) {
	switch cfg.Driver {
	case "serial":
		return serialport.Open(cfg.Port, cfg.Baud)
	default:
		return nil, fmt.Errorf("node: unknown radio driver %q", cfg.Driver)
	}
}

// New assembles a node over an open transceiver. Settings are loaded
// from the store; a blank store is initialized with defaults and the
// derived identity, so a node keeps its address across reboots.
func New(cfg Config, rt radio.Transceiver) (*Node, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	settings, err := loadOrInitSettings(store, cfg)
	if err != nil {
		return nil, err
	}

	id := frame.NodeID(settings.NodeID)
	linkCfg := cfg.Link
	linkCfg.MaxRetries = int(settings.MaxRetries)
	linkCfg.BaseTimeout = settings.BaseTimeout
	linkCfg.BackoffMultiplier = settings.BackoffMultiplier

	n := &Node{
		Config:   cfg,
		Settings: settings,
		Store:    store,
		Engine:   link.New(id, rt, linkCfg),
		Sampler:  sensor.NewSimSampler(sensor.KindTemperature, 21, int64(id)),
	}
	if cfg.Report.Interval > 0 && frame.NodeID(cfg.Report.Collector) != id {
		n.reporter = &sensor.Reporter{
			Sampler:   n.Sampler,
			Sender:    n.Engine,
			Collector: frame.NodeID(cfg.Report.Collector),
			Interval:  cfg.Report.Interval,
		}
	}
	return n, nil
}

// Name implements framework.Named.
func (n *Node) Name() string {
	return fmt.Sprintf("node-%04x", n.Settings.NodeID)
}

// Run implements framework.Runnable. It drives the link engine and, on
// sensor nodes, the reporter until the context is cancelled.
func (n *Node) Run(ctx context.Context) error {
	runner := framework.NewRunnerWith(ctx)
	runner.Go(framework.NamedRun("link", n.Engine))
	if n.reporter != nil {
		runner.Go(n.reporter)
	}
	return runner.Wait()
}

// StoreSettings persists the given settings and applies them on next boot.
func (n *Node) StoreSettings(s eeprom.Settings) error {
	if err := eeprom.StoreSettings(n.Store, s); err != nil {
		return err
	}
	n.Settings = s
	return nil
}

func openStore(cfg Config) (eeprom.Store, error) {
	if cfg.EEPROM == "" {
		return eeprom.NewMemStore(64), nil
	}
	return eeprom.OpenFileStore(cfg.EEPROM, 64)
}

func loadOrInitSettings(store eeprom.Store, cfg Config) (eeprom.Settings, error) {
	settings, err := eeprom.LoadSettings(store)
	switch {
	case err == nil:
	case errors.Is(err, eeprom.ErrNoSettings):
		settings = eeprom.DefaultSettings()
		linkCfg := cfg.Link
		settings.MaxRetries = uint8(linkCfg.MaxRetries)
		settings.BaseTimeout = linkCfg.BaseTimeout
		settings.BackoffMultiplier = linkCfg.BackoffMultiplier
		glog.Info("node: blank settings store, writing defaults")
	default:
		return eeprom.Settings{}, err
	}

	if cfg.NodeID != 0 {
		settings.NodeID = cfg.NodeID
	}
	if settings.NodeID == 0 {
		id, err := DeriveNodeID()
		if err != nil {
			return eeprom.Settings{}, err
		}
		settings.NodeID = uint16(id)
		glog.Infof("node: derived identity %04x", settings.NodeID)
	}
	if err := eeprom.StoreSettings(store, settings); err != nil {
		return eeprom.Settings{}, err
	}
	return settings, nil
}
