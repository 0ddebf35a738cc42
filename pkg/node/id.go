package node

import (
	"fmt"
	"hash/fnv"

	"github.com/denisbrodbeck/machineid"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
)

// DeriveNodeID folds the machine identity into a stable 16-bit node id.
// Zero and the broadcast address are never produced.
func DeriveNodeID() (frame.NodeID, error) {
	id, err := machineid.ID()
	if err != nil {
		return 0, fmt.Errorf("node: machine id: %w", err)
	}
	return foldID(id), nil
}

func foldID(id string) frame.NodeID {
	h := fnv.New32a()
	h.Write([]byte(id))
	sum := h.Sum32()
	folded := frame.NodeID(sum>>16) ^ frame.NodeID(sum)
	if folded == 0 || folded == frame.Broadcast {
		folded ^= 0x0100
	}
	return folded
}
