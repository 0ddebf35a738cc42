// Package eeprom abstracts the small persistent configuration store of a
// node. On hardware it is the MCU's EEPROM; on a host it is a plain file.
package eeprom

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrOutOfRange indicates an access past the end of the store.
var ErrOutOfRange = errors.New("eeprom: address out of range")

// Store is random-access persistent byte storage.
type Store interface {
	// ReadAt fills p from the given address.
	ReadAt(p []byte, addr int) error
	// WriteAt writes p at the given address.
	WriteAt(p []byte, addr int) error
	// Size returns the store capacity in bytes.
	Size() int
}

// MemStore is a volatile in-memory store for tests and simulation.
type MemStore struct {
	mu  sync.Mutex
	buf []byte
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates a zero-filled store of the given size.
func NewMemStore(size int) *MemStore {
	return &MemStore{buf: make([]byte, size)}
}

func (m *MemStore) ReadAt(p []byte, addr int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr+len(p) > len(m.buf) {
		return ErrOutOfRange
	}
	copy(p, m.buf[addr:])
	return nil
}

func (m *MemStore) WriteAt(p []byte, addr int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr+len(p) > len(m.buf) {
		return ErrOutOfRange
	}
	copy(m.buf[addr:], p)
	return nil
}

func (m *MemStore) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// FileStore persists the store contents in a fixed-size file.
type FileStore struct {
	mu   sync.Mutex
	path string
	size int
}

var _ Store = (*FileStore)(nil)

// OpenFileStore opens or creates a file-backed store of the given size.
// An existing shorter file is padded with zeros.
func OpenFileStore(path string, size int) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eeprom: open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("eeprom: stat %s: %w", path, err)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("eeprom: grow %s: %w", path, err)
		}
	}
	return &FileStore{path: path, size: size}, nil
}

func (s *FileStore) ReadAt(p []byte, addr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr < 0 || addr+len(p) > s.size {
		return ErrOutOfRange
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("eeprom: open %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.ReadAt(p, int64(addr)); err != nil {
		return fmt.Errorf("eeprom: read %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) WriteAt(p []byte, addr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr < 0 || addr+len(p) > s.size {
		return ErrOutOfRange
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eeprom: open %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.WriteAt(p, int64(addr)); err != nil {
		return fmt.Errorf("eeprom: write %s: %w", s.path, err)
	}
	return f.Sync()
}

func (s *FileStore) Size() int { return s.size }
