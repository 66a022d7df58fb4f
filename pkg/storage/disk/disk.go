// Package disk implements the disk manager: page-granular I/O on data
// files, strictly increasing page allocation per file, and the
// append-only log file.
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/page"
)

type fileState struct {
	f        *os.File
	path     string
	nextPage primitives.PageNumber
}

// Manager performs all file I/O for the engine. Data files are read
// and written in whole pages; the log file is an append-only byte
// stream. All operations are synchronous.
type Manager struct {
	mu      sync.Mutex
	files   map[primitives.FileID]*fileState
	byPath  map[string]primitives.FileID
	nextFID primitives.FileID

	logFile *os.File
	logPath string
}

// NewManager creates a disk manager with no open files.
func NewManager() *Manager {
	return &Manager{
		files:  make(map[primitives.FileID]*fileState),
		byPath: make(map[string]primitives.FileID),
	}
}

// IsFile reports whether a regular file exists at path.
func (m *Manager) IsFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// CreateFile creates an empty data file. The file must not exist.
func (m *Manager) CreateFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create file %s", path)
	}
	return f.Close()
}

// DestroyFile removes a data file. The file must not be open.
func (m *Manager) DestroyFile(path string) error {
	m.mu.Lock()
	_, open := m.byPath[path]
	m.mu.Unlock()
	if open {
		return errors.Errorf("destroy file %s: file is open", path)
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, "destroy file %s", path)
	}
	return nil
}

// OpenFile opens a data file and returns its handle. Opening the same
// path twice returns an error; each file has one handle at a time.
func (m *Manager) OpenFile(path string) (primitives.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, open := m.byPath[path]; open {
		return primitives.InvalidFileID, errors.Errorf("open file %s: already open", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return primitives.InvalidFileID, errors.Wrapf(err, "open file %s", path)
	}

	fid := m.nextFID
	m.nextFID++
	m.files[fid] = &fileState{f: f, path: path}
	m.byPath[path] = fid
	return fid, nil
}

// CloseFile closes an open data file handle.
func (m *Manager) CloseFile(fid primitives.FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.files[fid]
	if !ok {
		return errors.Errorf("close file: unknown handle %d", fid)
	}
	delete(m.files, fid)
	delete(m.byPath, st.path)
	return errors.Wrapf(st.f.Close(), "close file %s", st.path)
}

// FilePath returns the path an open handle refers to.
func (m *Manager) FilePath(fid primitives.FileID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.files[fid]
	if !ok {
		return "", false
	}
	return st.path, true
}

// ReadPage reads one page into buf. A page that was allocated but
// never written reads back as zeroes.
func (m *Manager) ReadPage(fid primitives.FileID, pageNo primitives.PageNumber, buf []byte) error {
	st, err := m.lookup(fid)
	if err != nil {
		return err
	}
	if len(buf) != page.Size {
		return errors.Errorf("read page: buffer is %d bytes, want %d", len(buf), page.Size)
	}

	n, err := st.f.ReadAt(buf, int64(pageNo)*page.Size)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read page %d of %s", pageNo, st.path)
	}
	for i := n; i < page.Size; i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes one page at its offset.
func (m *Manager) WritePage(fid primitives.FileID, pageNo primitives.PageNumber, data []byte) error {
	st, err := m.lookup(fid)
	if err != nil {
		return err
	}
	if len(data) != page.Size {
		return errors.Errorf("write page: buffer is %d bytes, want %d", len(data), page.Size)
	}
	if _, err := st.f.WriteAt(data, int64(pageNo)*page.Size); err != nil {
		return errors.Wrapf(err, "write page %d of %s", pageNo, st.path)
	}
	return nil
}

// AllocatePage hands out the next page number of a file. Allocation is
// strictly increasing and is not undone by page deletion; a freed page
// number is not handed out again.
func (m *Manager) AllocatePage(fid primitives.FileID) (primitives.PageNumber, error) {
	st, err := m.lookup(fid)
	if err != nil {
		return primitives.InvalidPageNumber, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	no := st.nextPage
	st.nextPage++
	return no, nil
}

// SetPageCounter positions a file's allocation counter, used when an
// existing file is opened and its header reports the page count.
func (m *Manager) SetPageCounter(fid primitives.FileID, next primitives.PageNumber) error {
	st, err := m.lookup(fid)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st.nextPage = next
	return nil
}

// PageCounter returns the next page number a file would allocate.
func (m *Manager) PageCounter(fid primitives.FileID) (primitives.PageNumber, error) {
	st, err := m.lookup(fid)
	if err != nil {
		return primitives.InvalidPageNumber, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return st.nextPage, nil
}

// PageCountOnDisk returns the number of whole pages currently present
// in a file, judged by its size.
func (m *Manager) PageCountOnDisk(fid primitives.FileID) (int32, error) {
	st, err := m.lookup(fid)
	if err != nil {
		return 0, err
	}
	info, err := st.f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", st.path)
	}
	return int32(info.Size() / page.Size), nil
}

// IsFlushed reports whether a page number has ever been written to
// disk, judged by the file's current size.
func (m *Manager) IsFlushed(fid primitives.FileID, pageNo primitives.PageNumber) (bool, error) {
	st, err := m.lookup(fid)
	if err != nil {
		return false, err
	}
	info, err := st.f.Stat()
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", st.path)
	}
	return int64(pageNo) < info.Size()/page.Size, nil
}

func (m *Manager) lookup(fid primitives.FileID) (*fileState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.files[fid]
	if !ok {
		return nil, errors.Errorf("unknown file handle %d", fid)
	}
	return st, nil
}
