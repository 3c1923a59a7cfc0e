package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUKReplacer_EvictPrefersHistory(t *testing.T) {
	r := NewLRUKReplacer(3, 2)

	// Frames 1 and 2 reach k accesses; frame 0 stays below k.
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.RecordAccess(2)
	for f := FrameID(0); f < 3; f++ {
		r.SetEvictable(f, true)
	}
	require.Equal(t, 3, r.Size())

	// Frame 0 has infinite backward distance and goes first.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(0), victim)

	// Among the k-reached frames, the older k-th access loses: frame 1
	// reached k before frame 2 did.
	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(1), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(2), victim)

	_, ok = r.Evict()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

// TestLRUKReplacer_ReaccessAfterEviction follows the end-to-end scenario:
// access 1,2,3 then 1,2 again; evict; re-access the victim; evict again.
func TestLRUKReplacer_ReaccessAfterEviction(t *testing.T) {
	r := NewLRUKReplacer(4, 2)

	for _, f := range []FrameID{1, 2, 3, 1, 2} {
		r.RecordAccess(f)
	}
	for _, f := range []FrameID{1, 2, 3} {
		r.SetEvictable(f, true)
	}

	// Frame 3 has a single access: history tail.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(3), victim)

	// Frame 3 comes back with a fresh history entry, but is pinned
	// (non-evictable) by default, so the kth tail goes next: frame 1's
	// second-most-recent access is older than frame 2's.
	r.RecordAccess(3)
	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(1), victim)
}

func TestLRUKReplacer_HistoryOrdersByFirstAccess(t *testing.T) {
	r := NewLRUKReplacer(4, 3)

	// All frames stay below k=3. A second access must not reorder.
	r.RecordAccess(0)
	r.RecordAccess(1)
	r.RecordAccess(0) // still ordered by first access: 0 before 1
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(0), victim, "history must order by first access")
}

func TestLRUKReplacer_SetEvictableTracksSize(t *testing.T) {
	r := NewLRUKReplacer(2, 2)

	r.RecordAccess(0)
	require.Equal(t, 0, r.Size(), "fresh frames are non-evictable")
	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())
	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size(), "idempotent transition")
	r.SetEvictable(0, false)
	require.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUKReplacer_RemoveIgnoresNonEvictable(t *testing.T) {
	r := NewLRUKReplacer(2, 2)

	r.RecordAccess(0)
	r.Remove(0) // non-evictable: ignored
	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())

	r.Remove(0)
	require.Equal(t, 0, r.Size())
	_, ok := r.Evict()
	require.False(t, ok)

	r.Remove(1) // untracked: ignored
}

func TestLRUKReplacer_OutOfRangeFramePanics(t *testing.T) {
	r := NewLRUKReplacer(2, 2)
	require.Panics(t, func() { r.RecordAccess(2) })
	require.Panics(t, func() { r.SetEvictable(-1, true) })
	require.Panics(t, func() { r.Remove(7) })
}
