package btree

import (
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/WhatTheGQlee/kurodb/core/buffer"
	"github.com/WhatTheGQlee/kurodb/core/storage/disk"
	"github.com/WhatTheGQlee/kurodb/core/storage/page"
	"github.com/WhatTheGQlee/kurodb/core/transaction"
)

const testPageSize = 4096

func setupTree(t *testing.T, leafMax, internalMax, poolSize int) *BPlusTree[int64, uint64] {
	t.Helper()
	dm := disk.NewMemManager(testPageSize)
	bpm := buffer.NewBufferPoolManager(poolSize, 2, dm, nil, zap.NewNop(), nil)
	tree, err := NewBPlusTree(
		"test_index", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(),
		leafMax, internalMax,
		zap.NewNop(), nil,
	)
	require.NoError(t, err)
	return tree
}

func insertOne(t *testing.T, tree *BPlusTree[int64, uint64], key int64) {
	t.Helper()
	ok, err := tree.Insert(key, uint64(key*100), transaction.New())
	require.NoError(t, err)
	require.True(t, ok, "insert of key %d", key)
}

func removeOne(t *testing.T, tree *BPlusTree[int64, uint64], key int64) {
	t.Helper()
	require.NoError(t, tree.Remove(key, transaction.New()))
}

func requireValue(t *testing.T, tree *BPlusTree[int64, uint64], key int64) {
	t.Helper()
	vals, err := tree.GetValue(key)
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64(key * 100)}, vals, "lookup of key %d", key)
}

func requireAbsent(t *testing.T, tree *BPlusTree[int64, uint64], key int64) {
	t.Helper()
	vals, err := tree.GetValue(key)
	require.NoError(t, err)
	require.Empty(t, vals, "key %d should be absent", key)
}

func TestBPlusTree_EmptyTree(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)

	require.True(t, tree.IsEmpty())
	requireAbsent(t, tree, 1)
	require.NoError(t, tree.Remove(1, transaction.New()))

	it, err := tree.Begin()
	require.NoError(t, err)
	require.True(t, it.IsEnd())
	require.True(t, it.Equals(tree.End()))
}

func TestBPlusTree_InsertAndGet(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)

	for _, k := range []int64{5, 3, 7} {
		insertOne(t, tree, k)
	}
	requireValue(t, tree, 3)
	requireValue(t, tree, 7)
	requireAbsent(t, tree, 1)
	require.False(t, tree.IsEmpty())
}

func TestBPlusTree_DuplicateInsertIsRejected(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)

	insertOne(t, tree, 42)
	ok, err := tree.Insert(42, 9999, transaction.New())
	require.NoError(t, err)
	require.False(t, ok)
	requireValue(t, tree, 42)
}

// TestBPlusTree_LeafSplit checks the first structural change: with a leaf
// fan-out of 4, inserting 1..5 yields an internal root with separator 3 over
// the leaves [1 2] and [3 4 5].
func TestBPlusTree_LeafSplit(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)
	for k := int64(1); k <= 5; k++ {
		insertOne(t, tree, k)
	}

	rootID := tree.GetRootPageID()
	rootPg, err := tree.bpm.FetchPage(rootID)
	require.NoError(t, err)
	rootH := header(rootPg)
	require.False(t, rootH.IsLeafPage(), "root must have grown into an internal node")

	root := tree.internal(rootH)
	require.Equal(t, 2, root.GetSize())
	require.Equal(t, int64(3), root.KeyAt(1))

	leftPg, err := tree.bpm.FetchPage(root.ValueAt(0))
	require.NoError(t, err)
	left := tree.leaf(header(leftPg))
	require.Equal(t, []int64{1, 2}, leafKeys(left))
	require.Equal(t, root.ValueAt(1), left.GetNextPageID(), "sibling chain must link left to right")

	rightPg, err := tree.bpm.FetchPage(root.ValueAt(1))
	require.NoError(t, err)
	right := tree.leaf(header(rightPg))
	require.Equal(t, []int64{3, 4, 5}, leafKeys(right))
	require.Equal(t, page.InvalidPageID, right.GetNextPageID())

	tree.bpm.UnpinPage(leftPg.GetPageID(), false)
	tree.bpm.UnpinPage(rightPg.GetPageID(), false)
	tree.bpm.UnpinPage(rootID, false)
}

func leafKeys(n leafNode[int64, uint64]) []int64 {
	keys := make([]int64, 0, n.GetSize())
	for i := 0; i < n.GetSize(); i++ {
		keys = append(keys, n.KeyAt(i))
	}
	return keys
}

// TestBPlusTree_RootGrowth drives enough inserts that a leaf split overflows
// the root internal node, growing the tree to three levels.
func TestBPlusTree_RootGrowth(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)
	for k := int64(1); k <= 12; k++ {
		insertOne(t, tree, k)
	}

	rootID := tree.GetRootPageID()
	rootPg, err := tree.bpm.FetchPage(rootID)
	require.NoError(t, err)
	root := tree.internal(header(rootPg))
	require.False(t, root.IsLeafPage())
	require.Equal(t, 2, root.GetSize())
	require.Equal(t, int64(7), root.KeyAt(1))

	// Both children are internal: depth three.
	for i := 0; i < root.GetSize(); i++ {
		childPg, err := tree.bpm.FetchPage(root.ValueAt(i))
		require.NoError(t, err)
		childH := header(childPg)
		require.False(t, childH.IsLeafPage(), "child %d of the root", i)
		require.Equal(t, rootID, childH.GetParentPageID())
		tree.bpm.UnpinPage(childPg.GetPageID(), false)
	}
	tree.bpm.UnpinPage(rootID, false)

	for k := int64(1); k <= 12; k++ {
		requireValue(t, tree, k)
	}
}

// TestBPlusTree_MergeBackToSingleLeaf removes from a two-leaf tree until the
// leaves merge and the root collapses back into a leaf.
func TestBPlusTree_MergeBackToSingleLeaf(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)
	for k := int64(1); k <= 5; k++ {
		insertOne(t, tree, k)
	}

	removeOne(t, tree, 5)
	removeOne(t, tree, 4)

	rootID := tree.GetRootPageID()
	rootPg, err := tree.bpm.FetchPage(rootID)
	require.NoError(t, err)
	rootH := header(rootPg)
	require.True(t, rootH.IsLeafPage(), "tree must have collapsed to a single leaf")
	require.Equal(t, []int64{1, 2, 3}, leafKeys(tree.leaf(rootH)))
	tree.bpm.UnpinPage(rootID, false)

	for k := int64(1); k <= 3; k++ {
		requireValue(t, tree, k)
	}
	requireAbsent(t, tree, 4)
	requireAbsent(t, tree, 5)
}

func TestBPlusTree_BorrowFromRightSibling(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)
	// Left leaf [1 2], right leaf [3 4 5]: removing from the left forces a
	// borrow from the right sibling, which can spare an entry.
	for k := int64(1); k <= 5; k++ {
		insertOne(t, tree, k)
	}

	removeOne(t, tree, 1)

	rootPg, err := tree.bpm.FetchPage(tree.GetRootPageID())
	require.NoError(t, err)
	root := tree.internal(header(rootPg))
	require.False(t, root.IsLeafPage(), "borrowing must not collapse the tree")
	require.Equal(t, int64(4), root.KeyAt(1), "separator follows the moved key")

	leftPg, err := tree.bpm.FetchPage(root.ValueAt(0))
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, leafKeys(tree.leaf(header(leftPg))))
	tree.bpm.UnpinPage(leftPg.GetPageID(), false)
	tree.bpm.UnpinPage(rootPg.GetPageID(), false)

	for k := int64(2); k <= 5; k++ {
		requireValue(t, tree, k)
	}
}

func TestBPlusTree_RemoveEverythingThenReuse(t *testing.T) {
	tree := setupTree(t, 4, 5, 32)

	const n = 64
	keys := rand.New(rand.NewSource(7)).Perm(n)
	for _, k := range keys {
		insertOne(t, tree, int64(k+1))
	}
	for k := int64(1); k <= n; k++ {
		requireValue(t, tree, k)
	}

	for _, k := range rand.New(rand.NewSource(11)).Perm(n) {
		removeOne(t, tree, int64(k+1))
	}
	require.True(t, tree.IsEmpty())
	require.Equal(t, page.InvalidPageID, tree.GetRootPageID())

	// An emptied tree bootstraps again.
	insertOne(t, tree, 99)
	requireValue(t, tree, 99)
}

func TestBPlusTree_RemoveMissingKeyIsNoOp(t *testing.T) {
	tree := setupTree(t, 4, 5, 10)
	for k := int64(1); k <= 5; k++ {
		insertOne(t, tree, k)
	}
	removeOne(t, tree, 77)
	for k := int64(1); k <= 5; k++ {
		requireValue(t, tree, k)
	}
}

func TestBPlusTree_OrderedIteration(t *testing.T) {
	tree := setupTree(t, 4, 5, 32)

	const n = 30
	for _, k := range rand.New(rand.NewSource(3)).Perm(n) {
		insertOne(t, tree, int64(k+1))
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var got []int64
	for !it.IsEnd() {
		require.Equal(t, uint64(it.Key()*100), it.Value())
		got = append(got, it.Key())
		require.NoError(t, it.Advance())
	}
	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i + 1)
	}
	require.Equal(t, want, got, "iteration must be strictly ascending and complete")
}

func TestBPlusTree_IteratorFromKey(t *testing.T) {
	tree := setupTree(t, 4, 5, 32)
	for k := int64(2); k <= 40; k += 2 {
		insertOne(t, tree, k)
	}

	it, err := tree.BeginAt(20)
	require.NoError(t, err)
	defer it.Close()
	require.False(t, it.IsEnd())
	require.Equal(t, int64(20), it.Key())

	var got []int64
	for !it.IsEnd() {
		got = append(got, it.Key())
		require.NoError(t, it.Advance())
	}
	require.Equal(t, []int64{20, 22, 24, 26, 28, 30, 32, 34, 36, 38, 40}, got)

	// An absent key positions at the end.
	missing, err := tree.BeginAt(21)
	require.NoError(t, err)
	require.True(t, missing.IsEnd())
	require.True(t, missing.Equals(tree.End()))
}

func TestBPlusTree_TwoIndexesShareTheHeaderPage(t *testing.T) {
	dm := disk.NewMemManager(testPageSize)
	bpm := buffer.NewBufferPoolManager(16, 2, dm, nil, zap.NewNop(), nil)

	orders, err := NewBPlusTree("orders", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 4, 5, zap.NewNop(), nil)
	require.NoError(t, err)
	users, err := NewBPlusTree("users", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 4, 5, zap.NewNop(), nil)
	require.NoError(t, err)

	for k := int64(1); k <= 10; k++ {
		ok, err := orders.Insert(k, uint64(k*100), transaction.New())
		require.NoError(t, err)
		require.True(t, ok)
	}
	for k := int64(1); k <= 10; k++ {
		ok, err := users.Insert(k, uint64(k*1000), transaction.New())
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NotEqual(t, orders.GetRootPageID(), users.GetRootPageID())
	v, err := orders.GetValue(5)
	require.NoError(t, err)
	require.Equal(t, []uint64{500}, v)
	v, err = users.GetValue(5)
	require.NoError(t, err)
	require.Equal(t, []uint64{5000}, v)
}

func TestBPlusTree_PersistsRootAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	fm, err := disk.NewFileManager(path, testPageSize, zap.NewNop())
	require.NoError(t, err)
	bpm := buffer.NewBufferPoolManager(16, 2, fm, nil, zap.NewNop(), nil)
	tree, err := NewBPlusTree("orders", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 4, 5, zap.NewNop(), nil)
	require.NoError(t, err)

	for k := int64(1); k <= 20; k++ {
		ok, err := tree.Insert(k, uint64(k*100), transaction.New())
		require.NoError(t, err)
		require.True(t, ok)
	}
	bpm.FlushAllPages()
	require.NoError(t, fm.Close())

	fm, err = disk.NewFileManager(path, testPageSize, zap.NewNop())
	require.NoError(t, err)
	defer fm.Close()
	bpm = buffer.NewBufferPoolManager(16, 2, fm, nil, zap.NewNop(), nil)
	reopened, err := NewBPlusTree("orders", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 4, 5, zap.NewNop(), nil)
	require.NoError(t, err)

	require.Equal(t, tree.GetRootPageID(), reopened.GetRootPageID())
	for k := int64(1); k <= 20; k++ {
		v, err := reopened.GetValue(k)
		require.NoError(t, err)
		require.Equal(t, []uint64{uint64(k * 100)}, v)
	}
}

func TestBPlusTree_ConcurrentDisjointInserts(t *testing.T) {
	tree := setupTree(t, 4, 5, 64)

	const (
		workers   = 8
		perWorker = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := int64(w * perWorker)
			for i := int64(1); i <= perWorker; i++ {
				ok, err := tree.Insert(base+i, uint64((base+i)*100), transaction.New())
				require.NoError(t, err)
				require.True(t, ok)
			}
		}(w)
	}
	wg.Wait()

	for k := int64(1); k <= workers*perWorker; k++ {
		requireValue(t, tree, k)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()
	count := 0
	prev := int64(0)
	for !it.IsEnd() {
		require.Greater(t, it.Key(), prev, "keys must be strictly increasing")
		prev = it.Key()
		count++
		require.NoError(t, it.Advance())
	}
	require.Equal(t, workers*perWorker, count)
}

func TestBPlusTree_ConcurrentReadersAndWriters(t *testing.T) {
	tree := setupTree(t, 4, 5, 64)
	for k := int64(1); k <= 100; k++ {
		insertOne(t, tree, k)
	}

	var wg sync.WaitGroup
	// Writers push a second key range while readers hammer the stable one.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := int64(101); k <= 200; k++ {
			ok, err := tree.Insert(k, uint64(k*100), transaction.New())
			require.NoError(t, err)
			require.True(t, ok)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := int64(1); k <= 50; k++ {
			require.NoError(t, tree.Remove(k, transaction.New()))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				for k := int64(51); k <= 100; k++ {
					vals, err := tree.GetValue(k)
					require.NoError(t, err)
					require.Equal(t, []uint64{uint64(k * 100)}, vals)
				}
			}
		}()
	}
	wg.Wait()

	for k := int64(1); k <= 50; k++ {
		requireAbsent(t, tree, k)
	}
	for k := int64(51); k <= 200; k++ {
		requireValue(t, tree, k)
	}
}

func TestBPlusTree_ConfigurationRejected(t *testing.T) {
	dm := disk.NewMemManager(testPageSize)
	bpm := buffer.NewBufferPoolManager(4, 2, dm, nil, zap.NewNop(), nil)

	_, err := NewBPlusTree("tiny", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 2, 5, zap.NewNop(), nil)
	require.ErrorIs(t, err, ErrInvalidNodeSize)

	_, err = NewBPlusTree("huge", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 4096, 5, zap.NewNop(), nil)
	require.ErrorIs(t, err, ErrInvalidNodeSize)

	_, err = NewBPlusTree("", bpm,
		DefaultOrder[int64](), Int64KeyCodec(), Uint64ValueCodec(), 4, 5, zap.NewNop(), nil)
	require.ErrorIs(t, err, ErrIndexName)
}
