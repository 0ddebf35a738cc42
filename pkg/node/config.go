package node

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensorswarm/swarm.go/pkg/link"
)

// RadioConfig selects and tunes the transceiver backend.
type RadioConfig struct {
	// Driver is "sim" or "serial".
	Driver string `yaml:"driver"`
	// Port is the serial device path for the serial driver.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ReportConfig tunes the sensor reporter.
type ReportConfig struct {
	// Collector is the node id readings are sent to.
	Collector uint16        `yaml:"collector"`
	Interval  time.Duration `yaml:"interval"`
}

// UplinkConfig tunes the MQTT uplink of a collector node.
type UplinkConfig struct {
	// Broker is the MQTT server URL; empty disables the uplink.
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// Config is the full node configuration.
type Config struct {
	// NodeID overrides the derived node identity when nonzero.
	NodeID uint16 `yaml:"node_id"`
	// EEPROM is the path of the file-backed settings store; empty keeps
	// settings in memory only.
	EEPROM string       `yaml:"eeprom"`
	Radio  RadioConfig  `yaml:"radio"`
	Link   link.Config  `yaml:"link"`
	Report ReportConfig `yaml:"report"`
	Uplink UplinkConfig `yaml:"uplink"`
}

// DefaultConfig returns a config for a simulated node.
func DefaultConfig() Config {
	return Config{
		Radio: RadioConfig{
			Driver: "serial",
			Port:   "/dev/ttyUSB0",
			Baud:   115200,
		},
		Link: link.DefaultConfig(),
		Report: ReportConfig{
			Collector: 0x0001,
			Interval:  10 * time.Second,
		},
		Uplink: UplinkConfig{
			TopicPrefix: "swarm",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file
// is not an error; the defaults stand.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("node: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("node: parse config %s: %w", path, err)
	}
	return cfg, nil
}
