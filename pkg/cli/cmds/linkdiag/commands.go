// Package linkdiag provides link diagnostic shell commands.
package linkdiag

import (
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/sensorswarm/swarm.go/pkg/cli/sh"
)

var (
	// PeersCmd lists known peer sessions.
	PeersCmd = ishell.Cmd{
		Name:    "peers",
		Aliases: []string{"ls"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			snaps := s.Node.Engine.Sessions()
			if s.OutputJSON {
				sh.PrintJSON(c, snaps)
				return
			}
			if len(snaps) == 0 {
				c.Println("no peers")
				return
			}
			for _, snap := range snaps {
				c.Printf("%04x  %-12s seq=%d acked=%d rx=%d retries=%d drops=%d fixed=%d\n",
					uint16(snap.Peer), snap.State,
					snap.LastSentSeq, snap.LastAckedSeq, snap.LastRxSeq,
					snap.Stats.Retries, snap.Stats.Drops, snap.Stats.CorrectedErrors)
			}
		},
	}

	// StatsCmd shows counters for one peer.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "PEER",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PEER required"))
				return
			}
			peer, err := sh.ParsePeer(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s := sh.ShellFrom(c)
			stats := s.Node.Engine.Stats(peer)
			if s.OutputJSON {
				sh.PrintJSON(c, stats)
				return
			}
			c.Printf("retries=%d drops=%d fixed=%d noise=%d\n",
				stats.Retries, stats.Drops, stats.CorrectedErrors,
				s.Node.Engine.NoiseDrops())
		},
	}

	// PingCmd measures the acknowledged round trip to a peer.
	PingCmd = ishell.Cmd{
		Name: "ping",
		Help: "PEER",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PEER required"))
				return
			}
			peer, err := sh.ParsePeer(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s := sh.ShellFrom(c)
			start := time.Now()
			if err := s.Node.Engine.Send(s.Ctx, peer, nil); err != nil {
				c.Err(err)
				return
			}
			c.Printf("%04x acked in %v\n", uint16(peer), time.Since(start).Round(time.Microsecond))
		},
	}
)

func init() {
	sh.AddCmds(
		&PeersCmd,
		&StatsCmd,
		&PingCmd,
	)
}
