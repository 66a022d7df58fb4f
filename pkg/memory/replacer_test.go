package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reldb/pkg/primitives"
)

func TestLRUVictimOrder(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	f, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), f)

	f, _ = r.Victim()
	assert.Equal(t, primitives.FrameID(2), f)
	f, _ = r.Victim()
	assert.Equal(t, primitives.FrameID(3), f)

	_, ok = r.Victim()
	assert.False(t, ok)
}

func TestLRUPinRemovesCandidate(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)

	f, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, primitives.FrameID(2), f)
	_, ok = r.Victim()
	assert.False(t, ok)
}

func TestLRUDoubleUnpinKeepsPosition(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(1) // no move: 1 stays least recently unpinned

	f, _ := r.Victim()
	assert.Equal(t, primitives.FrameID(1), f)
	assert.Equal(t, 1, r.Size())
}
