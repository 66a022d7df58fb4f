package heap

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/pkg/dberr"
	"reldb/pkg/memory"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
)

const testRecordSize = 16

func setupFile(t *testing.T) (*Manager, *RecordFile) {
	t.Helper()
	dm := disk.NewManager()
	pool := memory.NewBufferPool(64, dm, nil)
	m := NewManager(dm, pool, nil)

	path := filepath.Join(t.TempDir(), "t.tbl")
	require.NoError(t, m.CreateFile(path, testRecordSize))
	f, err := m.OpenFile(path, "t")
	require.NoError(t, err)
	t.Cleanup(func() { m.CloseFile(f) })
	return m, f
}

func record(tag byte) []byte {
	data := bytes.Repeat([]byte{tag}, testRecordSize)
	return data
}

func TestInsertGetDeleteUpdate(t *testing.T) {
	_, f := setupFile(t)

	rid, err := f.InsertRecord(record('a'), nil)
	require.NoError(t, err)
	assert.True(t, rid.Valid())

	rec, err := f.GetRecord(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, record('a'), rec.Data)

	require.NoError(t, f.UpdateRecord(rid, record('b'), nil))
	rec, err = f.GetRecord(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, record('b'), rec.Data)

	require.NoError(t, f.DeleteRecord(rid, nil))
	_, err = f.GetRecord(rid, nil)
	assert.True(t, dberr.Is(err, dberr.RecordNotFound))
	assert.True(t, dberr.Is(f.DeleteRecord(rid, nil), dberr.RecordNotFound))
}

func TestFreedSlotIsReused(t *testing.T) {
	_, f := setupFile(t)

	rid1, err := f.InsertRecord(record('a'), nil)
	require.NoError(t, err)
	_, err = f.InsertRecord(record('b'), nil)
	require.NoError(t, err)

	require.NoError(t, f.DeleteRecord(rid1, nil))
	rid3, err := f.InsertRecord(record('c'), nil)
	require.NoError(t, err)
	assert.Equal(t, rid1, rid3)
}

func TestFullPageLeavesFreeListAndComesBack(t *testing.T) {
	_, f := setupFile(t)
	slots := int(f.hdr.SlotsPerPage)

	rids := make([]primitives.Rid, 0, slots+1)
	for i := 0; i <= slots; i++ {
		rid, err := f.InsertRecord(record(byte(i)), nil)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	// Filling the first page forces a second data page.
	assert.Equal(t, rids[0].PageNo, rids[slots-1].PageNo)
	assert.NotEqual(t, rids[0].PageNo, rids[slots].PageNo)

	// Deleting from the full page returns it to the free list; the
	// next insert lands there again.
	require.NoError(t, f.DeleteRecord(rids[3], nil))
	back, err := f.InsertRecord(record('z'), nil)
	require.NoError(t, err)
	assert.Equal(t, rids[3], back)
}

func TestInsertRecordAtIsIdempotent(t *testing.T) {
	_, f := setupFile(t)

	rid := primitives.Rid{PageNo: 3, SlotNo: 2}
	require.NoError(t, f.InsertRecordAt(rid, record('x')))
	require.NoError(t, f.InsertRecordAt(rid, record('x')))

	rec, err := f.GetRecord(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, record('x'), rec.Data)
	assert.Equal(t, 4, f.NumPages())
}

func TestScannerVisitsAllRecordsInOrder(t *testing.T) {
	_, f := setupFile(t)
	slots := int(f.hdr.SlotsPerPage)

	var inserted []primitives.Rid
	for i := 0; i < slots*2+5; i++ {
		rid, err := f.InsertRecord(record(byte(i%250)), nil)
		require.NoError(t, err)
		inserted = append(inserted, rid)
	}
	// Punch a few holes.
	require.NoError(t, f.DeleteRecord(inserted[1], nil))
	require.NoError(t, f.DeleteRecord(inserted[slots], nil))

	scan, err := f.NewScanner()
	require.NoError(t, err)

	var seen []primitives.Rid
	for !scan.IsEnd() {
		seen = append(seen, scan.Rid())
		require.NoError(t, scan.Next())
	}

	assert.Len(t, seen, len(inserted)-2)
	for i := 1; i < len(seen); i++ {
		prev, cur := seen[i-1], seen[i]
		less := prev.PageNo < cur.PageNo ||
			(prev.PageNo == cur.PageNo && prev.SlotNo < cur.SlotNo)
		assert.True(t, less, fmt.Sprintf("scan order broken at %d: %s !< %s", i, prev, cur))
	}
}

func TestHeaderSurvivesReopen(t *testing.T) {
	dm := disk.NewManager()
	pool := memory.NewBufferPool(64, dm, nil)
	m := NewManager(dm, pool, nil)

	path := filepath.Join(t.TempDir(), "t.tbl")
	require.NoError(t, m.CreateFile(path, testRecordSize))
	f, err := m.OpenFile(path, "t")
	require.NoError(t, err)

	rid, err := f.InsertRecord(record('a'), nil)
	require.NoError(t, err)
	require.NoError(t, m.CloseFile(f))

	f2, err := m.OpenFile(path, "t")
	require.NoError(t, err)
	defer m.CloseFile(f2)

	rec, err := f2.GetRecord(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, record('a'), rec.Data)
}
