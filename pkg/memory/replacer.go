// Package memory implements the buffer pool and its frame replacement
// policy.
package memory

import (
	"container/list"
	"sync"

	"reldb/pkg/primitives"
)

// Replacer selects victim frames when the pool is full. Only unpinned
// frames are candidates.
type Replacer interface {
	// Victim removes and returns the next eviction candidate.
	// Returns false when every frame is pinned.
	Victim() (primitives.FrameID, bool)

	// Pin removes a frame from the candidate set.
	Pin(frame primitives.FrameID)

	// Unpin inserts a frame at the most-recent end of the candidate
	// set. A frame already present keeps its position.
	Unpin(frame primitives.FrameID)

	// Size returns the number of eviction candidates.
	Size() int
}

// LRUReplacer evicts the least recently unpinned frame first, breaking
// ties by insertion order into the unpinned list. A doubly linked list
// and a map give O(1) operations.
type LRUReplacer struct {
	mu    sync.Mutex
	order *list.List // front = least recently unpinned
	table map[primitives.FrameID]*list.Element
}

// NewLRUReplacer creates an empty replacer.
func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		order: list.New(),
		table: make(map[primitives.FrameID]*list.Element),
	}
}

// Victim pops the least recently unpinned frame.
func (r *LRUReplacer) Victim() (primitives.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.order.Front()
	if front == nil {
		return 0, false
	}
	frame := front.Value.(primitives.FrameID)
	r.order.Remove(front)
	delete(r.table, frame)
	return frame, true
}

// Pin removes a frame from the candidate list.
func (r *LRUReplacer) Pin(frame primitives.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.table[frame]; ok {
		r.order.Remove(el)
		delete(r.table, frame)
	}
}

// Unpin appends a frame at the most-recent end. Unpinning a frame that
// is already a candidate does not move it.
func (r *LRUReplacer) Unpin(frame primitives.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.table[frame]; ok {
		return
	}
	r.table[frame] = r.order.PushBack(frame)
}

// Size returns the number of frames eligible for eviction.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}
