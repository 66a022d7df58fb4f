package btree

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reldb/pkg/memory"
	"reldb/pkg/primitives"
	"reldb/pkg/storage/disk"
	"reldb/pkg/types"
)

// setupTree creates an index over a single INT column with the given
// order (0 derives the page-sized order).
func setupTree(t *testing.T, order int) (*Manager, *IndexHandle) {
	t.Helper()
	dm := disk.NewManager()
	pool := memory.NewBufferPool(128, dm, nil)
	m := NewManager(dm, pool)

	path := filepath.Join(t.TempDir(), "t_a.idx")
	cols := []types.ColDesc{types.NewColDesc(types.IntType, 0)}
	require.NoError(t, m.CreateIndex(path, cols, CreateOptions{Order: order}))

	h, err := m.OpenIndex(path, "t_a")
	require.NoError(t, err)
	t.Cleanup(func() { m.CloseIndex(h) })
	return m, h
}

func intKey(t *testing.T, v int32) []byte {
	t.Helper()
	data, err := types.EncodeFields([]types.Field{types.NewIntField(v)})
	require.NoError(t, err)
	return data
}

func ridFor(v int32) primitives.Rid {
	return primitives.Rid{PageNo: primitives.PageNumber(1), SlotNo: primitives.SlotNumber(v)}
}

// checkInvariants verifies the structural invariants: node occupancy,
// internal separator keys equal to subtree minima, parent pointers,
// and the leaf chain matching the in-order traversal with strictly
// increasing stored keys.
func checkInvariants(t *testing.T, h *IndexHandle) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hdr.Root == primitives.InvalidPageNumber {
		assert.Equal(t, primitives.IndexLeafHeaderPage, h.hdr.FirstLeaf)
		assert.Equal(t, primitives.IndexLeafHeaderPage, h.hdr.LastLeaf)
		return
	}

	var leaves []primitives.PageNumber
	root, err := h.fetchNode(h.hdr.Root)
	require.NoError(t, err)
	checkSubtree(t, h, root, true, &leaves)
	h.release(root, false)

	// Leaf chain from first to last matches the traversal order, with
	// consistent back links.
	var chain []primitives.PageNumber
	prev := primitives.IndexLeafHeaderPage
	for no := h.hdr.FirstLeaf; no != primitives.IndexLeafHeaderPage; {
		require.Less(t, len(chain), len(leaves)+1, "leaf chain has a cycle")
		leaf, err := h.fetchNode(no)
		require.NoError(t, err)
		assert.Equal(t, prev, leaf.prev(), "prev link of leaf %d", no)
		chain = append(chain, no)
		prev = no
		no = leaf.next()
		h.release(leaf, false)
	}
	assert.Equal(t, leaves, chain)
	if len(chain) > 0 {
		assert.Equal(t, chain[len(chain)-1], h.hdr.LastLeaf)
	}

	// Stored keys strictly increase across the whole traversal.
	var last []byte
	for _, no := range leaves {
		leaf, err := h.fetchNode(no)
		require.NoError(t, err)
		for i := 0; i < leaf.numKeys(); i++ {
			key := append([]byte(nil), leaf.key(i)...)
			if last != nil {
				assert.Negative(t, h.cmp(last, key), "keys out of order in leaf %d", no)
			}
			last = key
		}
		h.release(leaf, false)
	}
}

// checkSubtree validates one node and returns through leaves the leaf
// pages in key order. Callers own n.
func checkSubtree(t *testing.T, h *IndexHandle, n node, isRoot bool, leaves *[]primitives.PageNumber) {
	t.Helper()
	cnt := n.numKeys()

	if !isRoot {
		assert.GreaterOrEqual(t, cnt, h.minSize(), "node %d underfull", n.pageNo())
	} else if !n.isLeaf() {
		assert.GreaterOrEqual(t, cnt, 2, "internal root must keep two children")
	}
	assert.Less(t, cnt, int(h.hdr.Order)+1)

	if n.isLeaf() {
		*leaves = append(*leaves, n.pageNo())
		return
	}

	for i := 0; i < cnt; i++ {
		child, err := h.fetchNode(n.child(i))
		require.NoError(t, err)
		assert.Equal(t, n.pageNo(), child.parent(), "parent pointer of page %d", child.pageNo())
		assert.Zero(t, h.cmp(n.key(i), child.key(0)),
			"separator %d of page %d is not the child minimum", i, n.pageNo())
		checkSubtree(t, h, child, false, leaves)
		h.release(child, false)
	}
}

func TestSingleColumnIndexScenario(t *testing.T) {
	_, h := setupTree(t, 0)

	for _, v := range []int32{1, 3, 2, 5, 4} {
		require.NoError(t, h.InsertEntry(intKey(t, v), ridFor(v), nil))
	}

	rids, err := h.GetValue(intKey(t, 3), nil)
	require.NoError(t, err)
	require.Len(t, rids, 1)
	assert.Equal(t, ridFor(3), rids[0])

	lo, err := h.LowerBound(intKey(t, 3))
	require.NoError(t, err)
	hi, err := h.UpperBound(intKey(t, 4))
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 4}, collectKeys(t, h, lo, hi))

	ok, err := h.DeleteEntry(intKey(t, 3), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	begin := h.LeafBegin()
	end, err := h.LeafEnd()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 4, 5}, collectKeys(t, h, begin, end))
	checkInvariants(t, h)
}

func collectKeys(t *testing.T, h *IndexHandle, lo, hi primitives.Iid) []int32 {
	t.Helper()
	var out []int32
	for s := h.NewScanner(lo, hi); !s.IsEnd(); {
		key, err := s.UserKey()
		require.NoError(t, err)
		fields, err := types.DecodeFields(key, h.Cols())
		require.NoError(t, err)
		out = append(out, fields[0].(*types.IntField).Value)
		require.NoError(t, s.Next())
	}
	return out
}

func TestSplitAndCoalesceAtOrderFour(t *testing.T) {
	_, h := setupTree(t, 4)

	for v := int32(1); v <= 10; v++ {
		require.NoError(t, h.InsertEntry(intKey(t, v), ridFor(v), nil))
		checkInvariants(t, h)
	}

	begin := h.LeafBegin()
	end, err := h.LeafEnd()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, collectKeys(t, h, begin, end))

	for v := int32(1); v <= 10; v++ {
		ok, err := h.DeleteEntry(intKey(t, v), nil)
		require.NoError(t, err, "delete %d", v)
		assert.True(t, ok, "delete %d", v)
		checkInvariants(t, h)
	}

	assert.Equal(t, primitives.InvalidPageNumber, h.hdr.Root)
	empty, err := h.GetValue(intKey(t, 5), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteInReverseAndRandomOrders(t *testing.T) {
	orders := [][]int32{
		{10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
		{5, 1, 9, 3, 7, 10, 2, 8, 4, 6},
	}
	for oi, seq := range orders {
		t.Run(fmt.Sprintf("order%d", oi), func(t *testing.T) {
			_, h := setupTree(t, 4)
			for v := int32(1); v <= 10; v++ {
				require.NoError(t, h.InsertEntry(intKey(t, v), ridFor(v), nil))
			}
			for _, v := range seq {
				ok, err := h.DeleteEntry(intKey(t, v), nil)
				require.NoError(t, err, "delete %d", v)
				assert.True(t, ok)
				checkInvariants(t, h)
			}
			assert.Equal(t, primitives.InvalidPageNumber, h.hdr.Root)
		})
	}
}

func TestDeleteMissingKeyReturnsFalse(t *testing.T) {
	_, h := setupTree(t, 4)
	require.NoError(t, h.InsertEntry(intKey(t, 1), ridFor(1), nil))

	ok, err := h.DeleteEntry(intKey(t, 99), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoundsAndGTVariant(t *testing.T) {
	_, h := setupTree(t, 4)
	for _, v := range []int32{10, 20, 30, 40, 50} {
		require.NoError(t, h.InsertEntry(intKey(t, v), ridFor(v), nil))
	}

	// lower_bound lands on the key itself, upper_bound past it.
	lo, err := h.LowerBound(intKey(t, 30))
	require.NoError(t, err)
	hi, err := h.UpperBound(intKey(t, 30))
	require.NoError(t, err)
	assert.Equal(t, []int32{30}, collectKeys(t, h, lo, hi))

	// Probe between stored keys.
	lo, err = h.LowerBound(intKey(t, 25))
	require.NoError(t, err)
	end, err := h.LeafEnd()
	require.NoError(t, err)
	assert.Equal(t, []int32{30, 40, 50}, collectKeys(t, h, lo, end))

	// Probe past every key yields the end position.
	lo, err = h.LowerBound(intKey(t, 99))
	require.NoError(t, err)
	assert.Equal(t, end, lo)

	// The GT variant of a probe below every key starts at the front.
	gt, err := h.UpperBoundForGT(intKey(t, 5))
	require.NoError(t, err)
	assert.Equal(t, h.LeafBegin(), gt)

	gt, err = h.UpperBoundForGT(intKey(t, 20))
	require.NoError(t, err)
	assert.Equal(t, []int32{30, 40, 50}, collectKeys(t, h, gt, end))
}

func TestLargeOrderBulkInsert(t *testing.T) {
	_, h := setupTree(t, 0)

	const n = 2000
	for v := int32(n); v >= 1; v-- {
		require.NoError(t, h.InsertEntry(intKey(t, v), ridFor(v), nil))
	}
	checkInvariants(t, h)

	begin := h.LeafBegin()
	end, err := h.LeafEnd()
	require.NoError(t, err)
	keys := collectKeys(t, h, begin, end)
	require.Len(t, keys, n)
	for i, k := range keys {
		require.Equal(t, int32(i+1), k)
	}
}

func TestDuplicateUserKeysStayDistinct(t *testing.T) {
	_, h := setupTree(t, 4)

	require.NoError(t, h.InsertEntry(intKey(t, 7), ridFor(1), nil))
	require.NoError(t, h.InsertEntry(intKey(t, 7), ridFor(2), nil))

	rids, err := h.GetValue(intKey(t, 7), nil)
	require.NoError(t, err)
	assert.Len(t, rids, 2)
	checkInvariants(t, h)
}
