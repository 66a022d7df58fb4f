package log

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
)

func setupLog(t *testing.T, bufferSize int, codec Codec) (*disk.Manager, *Manager) {
	t.Helper()
	dm := disk.NewManager()
	require.NoError(t, dm.OpenLog(filepath.Join(t.TempDir(), "test.log")))
	t.Cleanup(func() { dm.CloseLog() })
	return dm, NewManager(dm, bufferSize, codec)
}

func sampleRecords() []*Record {
	rid := primitives.Rid{PageNo: 3, SlotNo: 7}
	return []*Record{
		NewBegin(9),
		NewInsert(9, 0, "accounts", rid, bytes.Repeat([]byte{0xAB}, 64)),
		NewUpdate(9, 1, "accounts", rid, bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32)),
		NewDelete(9, 2, "accounts", rid, bytes.Repeat([]byte{3}, 32)),
		NewNewPage(9, 3, "accounts", 11),
		NewCommit(9, 4),
		NewAbort(10, primitives.InvalidLSN),
	}
}

func TestRecordRoundTripAllCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecLZ4} {
		for i, rec := range sampleRecords() {
			rec.LSN = primitives.LSN(i)
			data, err := Marshal(rec, codec)
			require.NoError(t, err)

			got, consumed, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, len(data), consumed)
			assert.Equal(t, rec.Type, got.Type)
			assert.Equal(t, rec.LSN, got.LSN)
			assert.Equal(t, rec.PrevLSN, got.PrevLSN)
			assert.Equal(t, rec.TxnID, got.TxnID)
			assert.Equal(t, rec.Table, got.Table)
			assert.Equal(t, rec.Rid, got.Rid)
			assert.Equal(t, rec.Value, got.Value)
			assert.Equal(t, rec.OldValue, got.OldValue)
			assert.Equal(t, rec.NewValue, got.NewValue)
			assert.Equal(t, rec.PageNo, got.PageNo)
		}
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	rec := NewInsert(1, 0, "t", primitives.Rid{PageNo: 2, SlotNo: 0}, []byte("payload"))
	data, err := Marshal(rec, CodecNone)
	require.NoError(t, err)

	for cut := 1; cut < len(data); cut += 7 {
		_, _, err := Unmarshal(data[:len(data)-cut])
		assert.ErrorIs(t, err, ErrTruncated)
	}
}

func TestManagerAssignsMonotonicLSNs(t *testing.T) {
	_, m := setupLog(t, 1<<16, CodecSnappy)

	for i := 0; i < 10; i++ {
		lsn, err := m.Append(NewBegin(primitives.TxnID(i)))
		require.NoError(t, err)
		assert.Equal(t, primitives.LSN(i), lsn)
	}
	assert.Equal(t, primitives.LSN(-1), m.PersistedLSN())

	require.NoError(t, m.Flush())
	assert.Equal(t, primitives.LSN(9), m.PersistedLSN())
}

func TestReaderWalksEveryRecord(t *testing.T) {
	dm, m := setupLog(t, 1<<16, CodecLZ4)

	want := sampleRecords()
	for _, rec := range want {
		_, err := m.Append(rec)
		require.NoError(t, err)
	}
	require.NoError(t, m.Flush())

	reader := NewReader(dm, 0)
	var got []*Record
	offsets := []int64{}
	for {
		rec, off, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
		offsets = append(offsets, off)
	}

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, primitives.LSN(i), got[i].LSN)
	}

	// Random access via the recorded offsets.
	rec, err := ReadAt(dm, offsets[2])
	require.NoError(t, err)
	assert.Equal(t, RecordUpdate, rec.Type)
}

func TestReaderStopsAtTruncatedTail(t *testing.T) {
	dm, m := setupLog(t, 1<<16, CodecNone)

	for _, rec := range sampleRecords() {
		_, err := m.Append(rec)
		require.NoError(t, err)
	}
	require.NoError(t, m.Flush())

	// Append half of a record prefix by hand.
	require.NoError(t, dm.AppendLog([]byte{1, 2, 3}))

	reader := NewReader(dm, 0)
	count := 0
	for {
		_, _, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, len(sampleRecords()), count)
}

func TestSmallBufferFlushesOnPressure(t *testing.T) {
	_, m := setupLog(t, 128, CodecNone)

	payload := bytes.Repeat([]byte{7}, 48)
	for i := 0; i < 8; i++ {
		_, err := m.Append(NewInsert(1, primitives.LSN(i-1), "t",
			primitives.Rid{PageNo: 2, SlotNo: primitives.SlotNumber(i)}, payload))
		require.NoError(t, err)
	}
	require.NoError(t, m.Flush())
	assert.Equal(t, primitives.LSN(7), m.PersistedLSN())
}
