package log

import (
	"sync"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
)

// DefaultBufferSize is the default log buffer capacity. It must be at
// least the size of the largest record; records larger than the buffer
// bypass it and go straight to disk.
const DefaultBufferSize = 1 << 20

// Manager owns the in-memory log buffer. Records receive monotonic
// LSNs as they are appended; Flush makes everything buffered durable
// and advances the persisted LSN. The buffer pool calls Flush before
// evicting any page whose page LSN is past PersistedLSN (WAL).
type Manager struct {
	mu        sync.Mutex
	disk      *disk.Manager
	buf       []byte
	off       int
	nextLSN   primitives.LSN
	persisted primitives.LSN
	codec     Codec
}

// NewManager creates a log manager over the disk manager's log file.
func NewManager(dm *disk.Manager, bufferSize int, codec Codec) *Manager {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Manager{
		disk:      dm,
		buf:       make([]byte, bufferSize),
		nextLSN:   0,
		persisted: primitives.InvalidLSN,
		codec:     codec,
	}
}

// Append assigns the next LSN to the record, serializes it into the
// log buffer and returns the LSN. When the buffer lacks room it is
// flushed first; a record larger than the whole buffer is written
// through directly.
func (m *Manager) Append(rec *Record) (primitives.LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.LSN = m.nextLSN
	data, err := Marshal(rec, m.codec)
	if err != nil {
		return primitives.InvalidLSN, err
	}

	if m.off+len(data) > len(m.buf) {
		if err := m.flushLocked(); err != nil {
			return primitives.InvalidLSN, err
		}
	}
	m.nextLSN++
	if len(data) > len(m.buf) {
		if err := m.disk.AppendLog(data); err != nil {
			return primitives.InvalidLSN, err
		}
		m.persisted = rec.LSN
		return rec.LSN, nil
	}

	copy(m.buf[m.off:], data)
	m.off += len(data)
	return rec.LSN, nil
}

// Flush appends the buffered bytes to the log file and advances the
// persisted LSN to the last assigned LSN.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Manager) flushLocked() error {
	if m.off > 0 {
		if err := m.disk.AppendLog(m.buf[:m.off]); err != nil {
			return err
		}
		for i := range m.buf[:m.off] {
			m.buf[i] = 0
		}
		m.off = 0
	}
	m.persisted = m.nextLSN - 1
	return nil
}

// PersistedLSN returns the highest LSN known to be durable.
func (m *Manager) PersistedLSN() primitives.LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persisted
}

// NextLSN returns the LSN the next appended record will receive.
func (m *Manager) NextLSN() primitives.LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLSN
}

// SetNextLSN positions the LSN counter after recovery has scanned an
// existing log. Everything already in the file counts as persisted.
func (m *Manager) SetNextLSN(next primitives.LSN) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLSN = next
	m.persisted = next - 1
}
