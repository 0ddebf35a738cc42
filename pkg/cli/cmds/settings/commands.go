// Package settings provides shell commands over the persisted node settings.
package settings

import (
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/sensorswarm/swarm.go/pkg/cli/sh"
)

var (
	// CfgGetCmd shows the persisted settings.
	CfgGetCmd = ishell.Cmd{
		Name: "cfg",
		Help: "[set FIELD VALUE]",
		Func: func(c *ishell.Context) {
			if len(c.Args) > 0 {
				setCfg(c)
				return
			}
			s := sh.ShellFrom(c)
			cfg := s.Node.Settings
			if s.OutputJSON {
				sh.PrintJSON(c, cfg)
				return
			}
			c.Printf("node_id    %04x\n", cfg.NodeID)
			c.Printf("channel    %d\n", cfg.Channel)
			c.Printf("retries    %d\n", cfg.MaxRetries)
			c.Printf("timeout    %v\n", cfg.BaseTimeout)
			c.Printf("backoff    x%.1f\n", cfg.BackoffMultiplier)
		},
	}
)

func setCfg(c *ishell.Context) {
	if len(c.Args) != 3 || c.Args[0] != "set" {
		c.Err(fmt.Errorf("usage: cfg set FIELD VALUE"))
		return
	}
	s := sh.ShellFrom(c)
	cfg := s.Node.Settings
	field, value := c.Args[1], c.Args[2]
	switch field {
	case "channel":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			c.Err(err)
			return
		}
		cfg.Channel = uint8(v)
	case "retries":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			c.Err(err)
			return
		}
		cfg.MaxRetries = uint8(v)
	case "timeout":
		v, err := time.ParseDuration(value)
		if err != nil {
			c.Err(err)
			return
		}
		cfg.BaseTimeout = v
	case "backoff":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			c.Err(err)
			return
		}
		cfg.BackoffMultiplier = v
	default:
		c.Err(fmt.Errorf("unknown field %q", field))
		return
	}
	if err := s.Node.StoreSettings(cfg); err != nil {
		c.Err(err)
		return
	}
	c.Println("OK, applies on next boot")
}

func init() {
	sh.AddCmds(&CfgGetCmd)
}
