package disk

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// OpenLog opens (creating if needed) the append-only log file.
func (m *Manager) OpenLog(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logFile != nil {
		return errors.Errorf("open log %s: log already open at %s", path, m.logPath)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open log %s", path)
	}
	m.logFile = f
	m.logPath = path
	return nil
}

// CloseLog closes the log file.
func (m *Manager) CloseLog() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logFile == nil {
		return nil
	}
	err := m.logFile.Close()
	m.logFile = nil
	m.logPath = ""
	return errors.Wrap(err, "close log")
}

// AppendLog appends bytes to the log file and syncs them to stable
// storage. Durability of the log is what write-ahead ordering rests on.
func (m *Manager) AppendLog(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logFile == nil {
		return errors.New("append log: no log file open")
	}
	if _, err := m.logFile.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "append log: seek")
	}
	if _, err := m.logFile.Write(data); err != nil {
		return errors.Wrap(err, "append log: write")
	}
	return errors.Wrap(m.logFile.Sync(), "append log: sync")
}

// ReadLog reads up to len(buf) bytes of the log starting at offset.
// Returns the number of bytes read; zero at end of log.
func (m *Manager) ReadLog(buf []byte, offset int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logFile == nil {
		return 0, errors.New("read log: no log file open")
	}
	n, err := m.logFile.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, "read log")
	}
	return n, nil
}

// LogSize returns the current size of the log file in bytes.
func (m *Manager) LogSize() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logFile == nil {
		return 0, errors.New("log size: no log file open")
	}
	info, err := m.logFile.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "log size")
	}
	return info.Size(), nil
}
