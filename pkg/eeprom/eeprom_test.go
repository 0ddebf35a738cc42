package eeprom

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemStoreBounds(t *testing.T) {
	m := NewMemStore(32)
	require.Equal(t, 32, m.Size())

	require.NoError(t, m.WriteAt([]byte{1, 2, 3}, 29))
	got := make([]byte, 3)
	require.NoError(t, m.ReadAt(got, 29))
	require.Equal(t, []byte{1, 2, 3}, got)

	require.ErrorIs(t, m.WriteAt([]byte{1}, 32), ErrOutOfRange)
	require.ErrorIs(t, m.ReadAt(make([]byte, 4), 30), ErrOutOfRange)
	require.ErrorIs(t, m.ReadAt(make([]byte, 1), -1), ErrOutOfRange)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")

	st, err := OpenFileStore(path, 64)
	require.NoError(t, err)
	require.NoError(t, st.WriteAt([]byte{0xca, 0xfe}, 10))

	// Reopen and read back.
	st2, err := OpenFileStore(path, 64)
	require.NoError(t, err)
	got := make([]byte, 2)
	require.NoError(t, st2.ReadAt(got, 10))
	require.Equal(t, []byte{0xca, 0xfe}, got)

	require.ErrorIs(t, st2.WriteAt(make([]byte, 2), 63), ErrOutOfRange)
}

func TestSettingsRoundTrip(t *testing.T) {
	st := NewMemStore(64)
	want := Settings{
		NodeID:            0xbeef,
		Channel:           3,
		MaxRetries:        6,
		BaseTimeout:       250 * time.Millisecond,
		BackoffMultiplier: 1.5,
	}
	require.NoError(t, StoreSettings(st, want))

	got, err := LoadSettings(st)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadSettingsBlankStore(t *testing.T) {
	_, err := LoadSettings(NewMemStore(64))
	require.ErrorIs(t, err, ErrNoSettings)
}

func TestLoadSettingsCorruptedRecord(t *testing.T) {
	st := NewMemStore(64)
	require.NoError(t, StoreSettings(st, DefaultSettings()))

	// Flip one payload byte; the checksum must catch it.
	b := make([]byte, 1)
	require.NoError(t, st.ReadAt(b, 6))
	b[0] ^= 0xff
	require.NoError(t, st.WriteAt(b, 6))

	_, err := LoadSettings(st)
	require.ErrorIs(t, err, ErrNoSettings)
}

func TestLoadSettingsStoreTooSmall(t *testing.T) {
	_, err := LoadSettings(NewMemStore(SettingsSize - 1))
	require.ErrorIs(t, err, ErrOutOfRange)
}
