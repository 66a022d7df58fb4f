package memory

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
	"reldb/pkg/storage/page"
)

func setupPool(t *testing.T, frames int, wal LogFlusher) (*disk.Manager, *BufferPool, primitives.FileID) {
	t.Helper()
	dm := disk.NewManager()
	path := filepath.Join(t.TempDir(), "pool.dat")
	require.NoError(t, dm.CreateFile(path))
	fid, err := dm.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { dm.CloseFile(fid) })
	return dm, NewBufferPool(frames, dm, wal), fid
}

func TestBufferPoolRoundTrip(t *testing.T) {
	_, bp, fid := setupPool(t, 4, nil)

	p, err := bp.NewPage(fid)
	require.NoError(t, err)
	id := p.ID()
	copy(p.Payload(), "hello page")
	require.True(t, bp.UnpinPage(id, true))

	// Evict through pressure, then read back from disk.
	var pinned []page.ID
	for i := 0; i < 4; i++ {
		np, err := bp.NewPage(fid)
		require.NoError(t, err)
		pinned = append(pinned, np.ID())
	}
	for _, pid := range pinned {
		bp.UnpinPage(pid, false)
	}

	back, err := bp.FetchPage(id)
	require.NoError(t, err)
	assert.Equal(t, "hello page", string(back.Payload()[:10]))
	bp.UnpinPage(id, false)
}

func TestBufferPoolPinnedPagesAreNotEvicted(t *testing.T) {
	_, bp, fid := setupPool(t, 2, nil)

	p1, err := bp.NewPage(fid)
	require.NoError(t, err)
	p2, err := bp.NewPage(fid)
	require.NoError(t, err)

	// Every frame pinned: no frame available.
	_, err = bp.NewPage(fid)
	assert.Error(t, err)

	bp.UnpinPage(p2.ID(), false)
	p3, err := bp.NewPage(fid)
	require.NoError(t, err)

	// p1 stayed resident while pinned.
	got, err := bp.FetchPage(p1.ID())
	require.NoError(t, err)
	assert.Equal(t, p1.ID(), got.ID())

	bp.UnpinPage(p1.ID(), false)
	bp.UnpinPage(p1.ID(), false)
	bp.UnpinPage(p3.ID(), false)
}

func TestBufferPoolDeleteWhilePinnedFails(t *testing.T) {
	_, bp, fid := setupPool(t, 2, nil)

	p, err := bp.NewPage(fid)
	require.NoError(t, err)
	assert.Error(t, bp.DeletePage(p.ID()))

	bp.UnpinPage(p.ID(), false)
	assert.NoError(t, bp.DeletePage(p.ID()))
}

func TestBufferPoolDirtyStickyUntilFlush(t *testing.T) {
	_, bp, fid := setupPool(t, 2, nil)

	p, err := bp.NewPage(fid)
	require.NoError(t, err)
	id := p.ID()
	copy(p.Payload(), "dirty")
	bp.UnpinPage(id, true)

	// A clean unpin must not clear the dirty flag.
	got, err := bp.FetchPage(id)
	require.NoError(t, err)
	assert.True(t, got.IsDirty())
	bp.UnpinPage(id, false)
	assert.True(t, got.IsDirty())

	require.True(t, bp.FlushPage(id))
	assert.False(t, got.IsDirty())
}

// recordingFlusher counts forced flushes and reports a configurable
// persisted LSN.
type recordingFlusher struct {
	mu        sync.Mutex
	persisted primitives.LSN
	flushes   int
}

func (r *recordingFlusher) PersistedLSN() primitives.LSN {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persisted
}

func (r *recordingFlusher) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	r.persisted = 1 << 30
	return nil
}

func TestBufferPoolForcesLogBeforeDirtyEviction(t *testing.T) {
	wal := &recordingFlusher{persisted: primitives.InvalidLSN}
	_, bp, fid := setupPool(t, 1, wal)

	p, err := bp.NewPage(fid)
	require.NoError(t, err)
	p.SetLsn(7)
	bp.UnpinPage(p.ID(), true)

	// Reusing the only frame must force the log first (page LSN 7 >
	// persisted -1).
	q, err := bp.NewPage(fid)
	require.NoError(t, err)
	assert.Equal(t, 1, wal.flushes)
	bp.UnpinPage(q.ID(), false)
}

func TestBufferPoolSkipsLogWhenPersisted(t *testing.T) {
	wal := &recordingFlusher{persisted: 100}
	_, bp, fid := setupPool(t, 1, wal)

	p, err := bp.NewPage(fid)
	require.NoError(t, err)
	p.SetLsn(7)
	bp.UnpinPage(p.ID(), true)

	q, err := bp.NewPage(fid)
	require.NoError(t, err)
	assert.Equal(t, 0, wal.flushes)
	bp.UnpinPage(q.ID(), false)
}
