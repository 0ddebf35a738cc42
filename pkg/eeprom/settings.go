package eeprom

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

// Settings is the node configuration record stored at address 0. It holds
// the identity and link tuning a node needs before it can hear its first
// packet.
type Settings struct {
	NodeID            uint16
	Channel           uint8
	MaxRetries        uint8
	BaseTimeout       time.Duration
	BackoffMultiplier float64
}

// Record layout, little-endian, 16 bytes:
//
//	0  magic       u16
//	2  version     u8
//	3  node id     u16
//	5  channel     u8
//	6  max retries u8
//	7  timeout ms  u16
//	9  backoff x10 u8
//	10 reserved    u16
//	12 crc32       u32  (over bytes 0..11)
const (
	settingsMagic   = 0x5357
	settingsVersion = 1
	// SettingsSize is the size of the marshalled settings record.
	SettingsSize = 16
)

// ErrNoSettings indicates the store holds no valid settings record.
var ErrNoSettings = errors.New("eeprom: no valid settings record")

// DefaultSettings returns the factory configuration. The node id is zero
// and must be assigned before the settings are stored.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:        4,
		BaseTimeout:       200 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func (s Settings) marshal() []byte {
	buf := make([]byte, SettingsSize)
	binary.LittleEndian.PutUint16(buf[0:], settingsMagic)
	buf[2] = settingsVersion
	binary.LittleEndian.PutUint16(buf[3:], s.NodeID)
	buf[5] = s.Channel
	buf[6] = s.MaxRetries
	binary.LittleEndian.PutUint16(buf[7:], uint16(s.BaseTimeout/time.Millisecond))
	buf[9] = uint8(s.BackoffMultiplier*10 + 0.5)
	binary.LittleEndian.PutUint32(buf[12:], crc32.ChecksumIEEE(buf[:12]))
	return buf
}

// LoadSettings reads and validates the settings record. A blank or
// corrupted record yields ErrNoSettings, which first boot treats as the
// cue to write defaults.
func LoadSettings(st Store) (Settings, error) {
	buf := make([]byte, SettingsSize)
	if err := st.ReadAt(buf, 0); err != nil {
		return Settings{}, err
	}
	if binary.LittleEndian.Uint16(buf[0:]) != settingsMagic || buf[2] != settingsVersion {
		return Settings{}, ErrNoSettings
	}
	if binary.LittleEndian.Uint32(buf[12:]) != crc32.ChecksumIEEE(buf[:12]) {
		return Settings{}, ErrNoSettings
	}
	return Settings{
		NodeID:            binary.LittleEndian.Uint16(buf[3:]),
		Channel:           buf[5],
		MaxRetries:        buf[6],
		BaseTimeout:       time.Duration(binary.LittleEndian.Uint16(buf[7:])) * time.Millisecond,
		BackoffMultiplier: float64(buf[9]) / 10,
	}, nil
}

// StoreSettings writes the settings record at address 0.
func StoreSettings(st Store, s Settings) error {
	return st.WriteAt(s.marshal(), 0)
}
