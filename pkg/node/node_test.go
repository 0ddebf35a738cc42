package node

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/radio/sim"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id: 42
radio:
  driver: sim
link:
  max_retries: 7
  base_timeout: 150ms
report:
  interval: 2s
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint16(42), cfg.NodeID)
	require.Equal(t, "sim", cfg.Radio.Driver)
	require.Equal(t, 7, cfg.Link.MaxRetries)
	require.Equal(t, 150*time.Millisecond, cfg.Link.BaseTimeout)
	require.Equal(t, 2*time.Second, cfg.Report.Interval)
	// Untouched fields keep their defaults.
	require.Equal(t, 115200, cfg.Radio.Baud)
	require.Equal(t, "swarm", cfg.Uplink.TopicPrefix)
}

func TestFoldIDNeverReserved(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := foldID(fmt.Sprintf("machine-%d", i))
		require.NotEqual(t, frame.NodeID(0), id)
		require.NotEqual(t, frame.Broadcast, id)
	}
	// Stable for a given machine.
	require.Equal(t, foldID("machine-1"), foldID("machine-1"))
}

func TestNewPersistsIdentity(t *testing.T) {
	medium := sim.NewMedium()
	cfg := DefaultConfig()
	cfg.NodeID = 0x0042
	cfg.EEPROM = filepath.Join(t.TempDir(), "eeprom.bin")

	n, err := New(cfg, medium.Join("a"))
	require.NoError(t, err)
	require.Equal(t, uint16(0x0042), n.Settings.NodeID)
	require.Equal(t, frame.NodeID(0x0042), n.Engine.ID())
	require.Equal(t, uint8(cfg.Link.MaxRetries), n.Settings.MaxRetries)

	// A reboot without the override keeps the stored identity.
	cfg.NodeID = 0
	n2, err := New(cfg, medium.Join("b"))
	require.NoError(t, err)
	require.Equal(t, uint16(0x0042), n2.Settings.NodeID)
}

func TestNewCollectorHasNoReporter(t *testing.T) {
	medium := sim.NewMedium()
	cfg := DefaultConfig()
	cfg.NodeID = cfg.Report.Collector

	n, err := New(cfg, medium.Join("c"))
	require.NoError(t, err)
	require.Nil(t, n.reporter)

	cfg.NodeID = cfg.Report.Collector + 1
	n2, err := New(cfg, medium.Join("d"))
	require.NoError(t, err)
	require.NotNil(t, n2.reporter)
}

func TestNewExposesLocalSampler(t *testing.T) {
	medium := sim.NewMedium()
	cfg := DefaultConfig()
	cfg.NodeID = 0x0042

	n, err := New(cfg, medium.Join("a"))
	require.NoError(t, err)
	require.NotNil(t, n.Sampler)

	reading, err := n.Sampler.Sample()
	require.NoError(t, err)
	require.Equal(t, uint16(1), reading.Seq)
}

func TestOpenRadioUnknownDriver(t *testing.T) {
	_, err := OpenRadio(RadioConfig{Driver: "carrier-pigeon"})
	require.Error(t, err)
}
