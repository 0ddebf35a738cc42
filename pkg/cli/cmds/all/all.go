// Package all imports all shell command providers.
package all

import (
	_ "github.com/sensorswarm/swarm.go/pkg/cli/cmds/linkdiag"
	_ "github.com/sensorswarm/swarm.go/pkg/cli/cmds/sensors"
	_ "github.com/sensorswarm/swarm.go/pkg/cli/cmds/settings"
)
