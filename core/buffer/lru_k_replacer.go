package buffer

import (
	"container/list"
	"fmt"
	"sync"
)

// FrameID identifies a slot in the buffer pool's page array.
type FrameID int

// lrukEntry tracks a single frame's access history.
type lrukEntry struct {
	accessCount int
	elem        *list.Element // position in history or kth
	isEvictable bool
}

// LRUKReplacer picks eviction victims by backward k-distance. Frames with
// fewer than k recorded accesses have infinite distance and are kept in the
// history list, ordered by first access; frames with at least k accesses live
// in the kth list, ordered by their k-th most recent access. The front of
// each list is the most recent, the back is the eviction candidate.
type LRUKReplacer struct {
	mu        sync.Mutex
	numFrames int
	k         int
	currSize  int
	history   *list.List // element values are FrameID
	kth       *list.List
	entries   map[FrameID]*lrukEntry
}

// NewLRUKReplacer creates a replacer tracking up to numFrames frames with
// parameter k.
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		numFrames: numFrames,
		k:         k,
		history:   list.New(),
		kth:       list.New(),
		entries:   make(map[FrameID]*lrukEntry),
	}
}

func (r *LRUKReplacer) checkFrame(frameID FrameID) {
	if frameID < 0 || frameID >= FrameID(r.numFrames) {
		panic(fmt.Sprintf("lru-k replacer: frame id %d out of range [0, %d)", frameID, r.numFrames))
	}
}

// RecordAccess notes an access to the frame. The first access inserts the
// frame, non-evictable, at the head of the history list; the k-th access
// promotes it to the kth list; later accesses move it back to the kth head.
// Accesses between the first and the k-th leave the entry in place: the
// history list orders by first access.
func (r *LRUKReplacer) RecordAccess(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	e, ok := r.entries[frameID]
	if !ok {
		e = &lrukEntry{}
		r.entries[frameID] = e
	}
	e.accessCount++
	switch {
	case e.accessCount == 1:
		e.elem = r.history.PushFront(frameID)
	case e.accessCount == r.k:
		r.history.Remove(e.elem)
		e.elem = r.kth.PushFront(frameID)
	case e.accessCount > r.k:
		r.kth.Remove(e.elem)
		e.elem = r.kth.PushFront(frameID)
	}
}

// SetEvictable flips the frame's evictability, adjusting the evictable count.
// Unknown frames are ignored.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	e, ok := r.entries[frameID]
	if !ok || e.isEvictable == evictable {
		return
	}
	e.isEvictable = evictable
	if evictable {
		r.currSize++
	} else {
		r.currSize--
	}
}

// Evict chooses and drops the victim frame: the back-most evictable entry in
// the history list, or failing that, in the kth list. It reports whether a
// victim was found.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range []*list.List{r.history, r.kth} {
		for elem := l.Back(); elem != nil; elem = elem.Prev() {
			frameID := elem.Value.(FrameID)
			if r.entries[frameID].isEvictable {
				l.Remove(elem)
				delete(r.entries, frameID)
				r.currSize--
				return frameID, true
			}
		}
	}
	return 0, false
}

// Remove drops the frame's access history. Callers may only remove evictable
// frames; requests for untracked or non-evictable frames are ignored.
func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrame(frameID)

	e, ok := r.entries[frameID]
	if !ok || !e.isEvictable {
		return
	}
	if e.accessCount < r.k {
		r.history.Remove(e.elem)
	} else {
		r.kth.Remove(e.elem)
	}
	delete(r.entries, frameID)
	r.currSize--
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
