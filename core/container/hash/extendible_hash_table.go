// Package hash provides a concurrent extendible hash table. The buffer pool
// uses it as its page-id to frame directory.
package hash

import (
	"sync"
)

// HashFunc maps a key to the bit string the directory indexes by.
type HashFunc[K comparable] func(K) uint64

type entry[K comparable, V any] struct {
	key   K
	value V
}

// bucket holds up to size entries and the number of hash bits it is keyed by.
type bucket[K comparable, V any] struct {
	items []entry[K, V]
	size  int
	depth int
}

func newBucket[K comparable, V any](size, depth int) *bucket[K, V] {
	return &bucket[K, V]{
		items: make([]entry[K, V], 0, size),
		size:  size,
		depth: depth,
	}
}

func (b *bucket[K, V]) isFull() bool { return len(b.items) >= b.size }

func (b *bucket[K, V]) find(key K) (V, bool) {
	for i := range b.items {
		if b.items[i].key == key {
			return b.items[i].value, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// insert upserts the key. It reports false when the bucket is full and the
// key is not already present.
func (b *bucket[K, V]) insert(key K, value V) bool {
	for i := range b.items {
		if b.items[i].key == key {
			b.items[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, entry[K, V]{key: key, value: value})
	return true
}

// ExtendibleHashTable is a directory-plus-buckets hash map that grows by
// doubling the directory and splitting the overflowing bucket. The directory
// never shrinks. All operations are serialized by a single mutex.
type ExtendibleHashTable[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
	hash        HashFunc[K]
}

// NewExtendibleHashTable creates a table whose buckets hold up to bucketSize
// entries, hashing keys with hash.
func NewExtendibleHashTable[K comparable, V any](bucketSize int, hash HashFunc[K]) *ExtendibleHashTable[K, V] {
	t := &ExtendibleHashTable[K, V]{
		globalDepth: 0,
		bucketSize:  bucketSize,
		numBuckets:  1,
		hash:        hash,
	}
	t.dir = append(t.dir, newBucket[K, V](bucketSize, 0))
	return t
}

// indexOf selects the directory slot of a key: the low globalDepth bits of
// its hash.
func (t *ExtendibleHashTable[K, V]) indexOf(key K) uint64 {
	mask := uint64(1)<<t.globalDepth - 1
	return t.hash(key) & mask
}

// GetGlobalDepth returns the number of hash bits the directory uses.
func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// GetLocalDepth returns the number of hash bits the bucket at the given
// directory index is keyed by.
func (t *ExtendibleHashTable[K, V]) GetLocalDepth(dirIndex int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[dirIndex].depth
}

// GetNumBuckets returns the number of distinct buckets.
func (t *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}

// Find looks up the value associated with key.
func (t *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].find(key)
}

// Remove deletes the key, reporting whether it was present.
func (t *ExtendibleHashTable[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].remove(key)
}

// Insert upserts the key. When the target bucket overflows, the bucket is
// split (doubling the directory first if its local depth has caught up with
// the global depth) until the key's bucket has room.
func (t *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(key)
	if _, ok := t.dir[idx].find(key); ok {
		t.dir[idx].insert(key, value)
		return
	}
	for t.dir[idx].isFull() {
		if t.dir[idx].depth == t.globalDepth {
			t.expand()
		}
		t.splitBucket(t.dir[idx], key)
		idx = t.indexOf(key)
	}
	t.dir[idx].insert(key, value)
}

// expand doubles the directory by appending a copy of itself.
func (t *ExtendibleHashTable[K, V]) expand() {
	t.dir = append(t.dir, t.dir...)
	t.globalDepth++
}

// splitBucket replaces the overflowing bucket with two buckets of one more
// bit of local depth, redistributing its entries by the newly significant
// hash bit and rewiring every directory slot that referenced it.
func (t *ExtendibleHashTable[K, V]) splitBucket(b *bucket[K, V], key K) {
	oldDepth := b.depth
	b0 := newBucket[K, V](t.bucketSize, oldDepth+1)
	b1 := newBucket[K, V](t.bucketSize, oldDepth+1)
	t.numBuckets++

	localBit := uint64(1) << oldDepth
	for _, item := range b.items {
		if t.hash(item.key)&localBit != 0 {
			b1.insert(item.key, item.value)
		} else {
			b0.insert(item.key, item.value)
		}
	}
	for i := t.hash(key) & (localBit - 1); i < uint64(len(t.dir)); i += localBit {
		if i&localBit != 0 {
			t.dir[i] = b1
		} else {
			t.dir[i] = b0
		}
	}
}
