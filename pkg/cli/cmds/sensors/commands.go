// Package sensors provides shell commands over the node's samplers.
package sensors

import (
	"github.com/abiosoft/ishell"

	"github.com/sensorswarm/swarm.go/pkg/cli/sh"
)

var (
	// SensorsCmd takes a fresh reading from the local sampler.
	SensorsCmd = ishell.Cmd{
		Name:    "sensors",
		Aliases: []string{"sense"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			reading, err := s.Node.Sampler.Sample()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				sh.PrintJSON(c, map[string]interface{}{
					"kind":  reading.Kind.String(),
					"seq":   reading.Seq,
					"value": reading.Value,
					"flags": reading.Flags,
				})
				return
			}
			c.Printf("%s seq=%d value=%.2f\n",
				reading.Kind, reading.Seq, float64(reading.Value)/100)
		},
	}
)

func init() {
	sh.AddCmds(&SensorsCmd)
}
