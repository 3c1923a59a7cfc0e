// Package btree implements a concurrent, disk-resident B+ tree whose nodes
// live in buffer pool pages. Traversals follow a latch-crabbing protocol:
// reads couple shared latches down the tree; writes first descend
// optimistically with shared latches and retry pessimistically with
// exclusive latches when the leaf turns out to be unsafe.
package btree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	internaltelemetry "github.com/WhatTheGQlee/kurodb/internal/telemetry"

	"github.com/WhatTheGQlee/kurodb/core/buffer"
	"github.com/WhatTheGQlee/kurodb/core/storage/page"
	"github.com/WhatTheGQlee/kurodb/core/transaction"
)

var (
	// ErrInvalidNodeSize is returned when the configured fan-out cannot fit
	// a page or is too small to keep the tree balanced.
	ErrInvalidNodeSize = errors.New("btree node size does not fit the page layout")
	// ErrIndexName is returned when the index name cannot be recorded on the
	// header page.
	ErrIndexName = errors.New("invalid index name")
)

// opType discriminates traversals for the safety predicate.
type opType int

const (
	opFind opType = iota
	opInsert
	opRemove
)

// BPlusTree is an ordered unique-key index parameterized over its key and
// value types. Keys and values are fixed-width on disk; the comparator
// drives the ordering.
type BPlusTree[K any, V any] struct {
	indexName       string
	bpm             *buffer.BufferPoolManager
	order           Order[K]
	keyCodec        KeyCodec[K]
	valCodec        ValueCodec[V]
	leafMaxSize     int
	internalMaxSize int
	logger          *zap.Logger
	metrics         *internaltelemetry.StorageMetrics // optional

	// rootLatch protects rootPageID. Writers hold it exclusively until the
	// descent proves the root safe.
	rootLatch  sync.RWMutex
	rootPageID page.PageID
}

// NewBPlusTree opens (or registers) the named index on the given buffer
// pool. An existing root recorded on the header page is adopted; otherwise
// the tree starts empty.
func NewBPlusTree[K any, V any](
	name string,
	bpm *buffer.BufferPoolManager,
	order Order[K],
	keyCodec KeyCodec[K],
	valCodec ValueCodec[V],
	leafMaxSize, internalMaxSize int,
	logger *zap.Logger,
	metrics *internaltelemetry.StorageMetrics,
) (*BPlusTree[K, V], error) {
	if name == "" || len(name) >= headerNameSize {
		return nil, fmt.Errorf("%w: %q", ErrIndexName, name)
	}
	pageSize := bpm.PageSize()
	if leafMaxSize < 3 || internalMaxSize < 3 {
		return nil, fmt.Errorf("%w: leaf %d / internal %d below minimum fan-out", ErrInvalidNodeSize, leafMaxSize, internalMaxSize)
	}
	if nodeHeaderSize+leafMaxSize*(keyCodec.Size+valCodec.Size) > pageSize ||
		nodeHeaderSize+internalMaxSize*(keyCodec.Size+8) > pageSize {
		return nil, fmt.Errorf("%w: leaf %d / internal %d exceed page size %d", ErrInvalidNodeSize, leafMaxSize, internalMaxSize, pageSize)
	}

	t := &BPlusTree[K, V]{
		indexName:       name,
		bpm:             bpm,
		order:           order,
		keyCodec:        keyCodec,
		valCodec:        valCodec,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		logger:          logger,
		metrics:         metrics,
		rootPageID:      page.InvalidPageID,
	}

	headerPg, err := bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch header page: %w", err)
	}
	headerPg.Lock()
	hp := asHeaderPage(headerPg)
	if rootID, ok := hp.GetRootID(name); ok {
		t.rootPageID = rootID
		headerPg.Unlock()
		bpm.UnpinPage(page.HeaderPageID, false)
	} else {
		if !hp.InsertRecord(name, page.InvalidPageID) {
			headerPg.Unlock()
			bpm.UnpinPage(page.HeaderPageID, false)
			return nil, fmt.Errorf("%w: header page cannot record %q", ErrIndexName, name)
		}
		headerPg.Unlock()
		bpm.UnpinPage(page.HeaderPageID, true)
	}

	logger.Info("opened b+ tree index",
		zap.String("index", name),
		zap.Uint64("root_page_id", uint64(t.rootPageID)),
		zap.Int("leaf_max_size", leafMaxSize),
		zap.Int("internal_max_size", internalMaxSize),
	)
	return t, nil
}

func (t *BPlusTree[K, V]) leaf(h nodeHeader) leafNode[K, V] {
	return leafNode[K, V]{nodeHeader: h, keyCodec: t.keyCodec, valCodec: t.valCodec}
}

func (t *BPlusTree[K, V]) internal(h nodeHeader) internalNode[K] {
	return internalNode[K]{nodeHeader: h, keyCodec: t.keyCodec}
}

// IsEmpty reports whether the tree holds no keys.
func (t *BPlusTree[K, V]) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID == page.InvalidPageID
}

// GetRootPageID returns the current root page id.
func (t *BPlusTree[K, V]) GetRootPageID() page.PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID
}

// isSafe reports whether the operation cannot propagate a structural change
// out of this node: reads always; inserts when a split is impossible;
// removes when the node cannot underflow.
func (t *BPlusTree[K, V]) isSafe(h nodeHeader, op opType) bool {
	switch op {
	case opFind:
		return true
	case opInsert:
		if h.IsLeafPage() {
			return h.GetSize() < h.GetMaxSize()-1
		}
		return h.GetSize() < h.GetMaxSize()
	case opRemove:
		return h.GetSize() > h.GetMinSize()
	}
	return false
}

// unlockPageSet releases the transaction's latched pages front to back. The
// nil sentinel at the front stands for the root-id latch.
func (t *BPlusTree[K, V]) unlockPageSet(txn *transaction.Transaction, isDirty bool) {
	if txn == nil {
		return
	}
	for {
		p, ok := txn.PopFrontPageSet()
		if !ok {
			return
		}
		if p == nil {
			t.rootLatch.Unlock()
			continue
		}
		p.Unlock()
		t.bpm.UnpinPage(p.GetPageID(), isDirty)
	}
}

// getLeafPage descends to the leaf responsible for key.
//
// Reads couple shared latches and return the leaf share-latched. Writes hold
// the root-id latch exclusively and descend with shared latches on the first,
// optimistic pass, taking only the leaf exclusively; if the leaf is unsafe
// the pass restarts pessimistically, exclusive-latching the whole path and
// releasing the prefix whenever a safe child is reached. Latched pages of a
// write are accumulated in the transaction's page set.
//
// A nil page (with nil error) means the tree is empty and the operation
// cannot descend; all latches have been released.
func (t *BPlusTree[K, V]) getLeafPage(key K, txn *transaction.Transaction, op opType, isFirst bool) (*page.Page, error) {
	if op == opFind {
		t.rootLatch.RLock()
	} else {
		t.rootLatch.Lock()
		txn.AddIntoPageSet(nil)
	}

	if t.rootPageID == page.InvalidPageID {
		if op != opInsert {
			if op == opFind {
				t.rootLatch.RUnlock()
			} else {
				t.unlockPageSet(txn, false)
			}
			return nil, nil
		}
		// Bootstrap an empty tree: a single leaf becomes the root.
		rootPg, rootID, err := t.bpm.NewPage()
		if err != nil {
			t.unlockPageSet(txn, false)
			return nil, fmt.Errorf("failed to allocate root page: %w", err)
		}
		t.leaf(header(rootPg)).Init(rootID, page.InvalidPageID, t.leafMaxSize)
		t.rootPageID = rootID
		t.updateRootRecord()
		t.bpm.UnpinPage(rootID, true)
	}

	curPageID := t.rootPageID
	var prev *page.Page
	for {
		p, err := t.bpm.FetchPage(curPageID)
		if err != nil {
			if op == opFind {
				if prev != nil {
					prev.RUnlock()
					t.bpm.UnpinPage(prev.GetPageID(), false)
				} else {
					t.rootLatch.RUnlock()
				}
			} else {
				if prev != nil && isFirst {
					prev.RUnlock()
					t.bpm.UnpinPage(prev.GetPageID(), false)
				}
				t.unlockPageSet(txn, false)
			}
			return nil, fmt.Errorf("failed to fetch page %d: %w", curPageID, err)
		}
		h := header(p)

		switch {
		case op == opFind:
			p.RLock()
			if prev != nil {
				prev.RUnlock()
				t.bpm.UnpinPage(prev.GetPageID(), false)
			} else {
				t.rootLatch.RUnlock()
			}
		case !isFirst:
			// Pessimistic pass: exclusive all the way down, shedding the
			// held prefix as soon as this child proves safe.
			p.Lock()
			if t.isSafe(h, op) {
				t.unlockPageSet(txn, false)
			}
			txn.AddIntoPageSet(p)
		default:
			// Optimistic pass: shared on the way down, exclusive only at
			// the leaf.
			if h.IsLeafPage() {
				p.Lock()
				txn.AddIntoPageSet(p)
				if prev != nil {
					prev.RUnlock()
					t.bpm.UnpinPage(prev.GetPageID(), false)
				}
			} else {
				p.RLock()
				if prev != nil {
					prev.RUnlock()
					t.bpm.UnpinPage(prev.GetPageID(), false)
				} else {
					t.unlockPageSet(txn, false)
				}
			}
		}

		if h.IsLeafPage() {
			if op != opFind && isFirst && !t.isSafe(h, op) {
				t.unlockPageSet(txn, false)
				return t.getLeafPage(key, txn, op, false)
			}
			return p, nil
		}

		in := t.internal(h)
		size := in.GetSize()
		curPageID = in.ValueAt(size - 1)
		for i := 1; i < size; i++ {
			if t.order(in.KeyAt(i), key) > 0 {
				curPageID = in.ValueAt(i - 1)
				break
			}
		}
		prev = p
	}
}

// GetValue returns the values stored under key. Unique keys make the result
// empty or a single element.
func (t *BPlusTree[K, V]) GetValue(key K) ([]V, error) {
	p, err := t.getLeafPage(key, nil, opFind, true)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	leaf := t.leaf(header(p))
	var result []V
	for i := 0; i < leaf.GetSize(); i++ {
		if t.order(leaf.KeyAt(i), key) == 0 {
			result = append(result, leaf.ValueAt(i))
		}
	}
	p.RUnlock()
	t.bpm.UnpinPage(p.GetPageID(), false)
	return result, nil
}

// Insert adds the key/value pair, reporting false when the key exists.
func (t *BPlusTree[K, V]) Insert(key K, value V, txn *transaction.Transaction) (bool, error) {
	p, err := t.getLeafPage(key, txn, opInsert, true)
	if err != nil {
		return false, err
	}
	leaf := t.leaf(header(p))
	if !leaf.Insert(key, value, t.order) {
		t.unlockPageSet(txn, false)
		return false, nil
	}
	if leaf.GetSize() < t.leafMaxSize {
		t.unlockPageSet(txn, true)
		return true, nil
	}

	// The leaf filled up: split it and thread the new sibling into the
	// chain before telling the parent.
	rightPg, rightID, err := t.bpm.NewPage()
	if err != nil {
		leaf.Remove(key, t.order)
		t.unlockPageSet(txn, true)
		return false, fmt.Errorf("failed to allocate leaf for split: %w", err)
	}
	right := t.leaf(header(rightPg))
	right.Init(rightID, leaf.GetParentPageID(), t.leafMaxSize)
	leaf.Split(right)
	right.SetNextPageID(leaf.GetNextPageID())
	leaf.SetNextPageID(rightID)

	key0 := right.KeyAt(0)
	t.insertInParent(header(p), header(rightPg), key0, txn)
	t.count(func(m *internaltelemetry.StorageMetrics) { m.TreeSplitCounter.Add(context.Background(), 1) })

	t.unlockPageSet(txn, true)
	t.bpm.UnpinPage(rightID, true)
	return true, nil
}

// insertInParent links a freshly split right node into the tree, growing a
// new root when the left node was the root and splitting ancestors as needed.
func (t *BPlusTree[K, V]) insertInParent(left, right nodeHeader, key0 K, txn *transaction.Transaction) {
	if left.IsRootPage() {
		rootPg, rootID, err := t.bpm.NewPage()
		if err != nil {
			panic(fmt.Sprintf("btree %s: failed to allocate new root during split: %v", t.indexName, err))
		}
		root := t.internal(header(rootPg))
		root.Init(rootID, page.InvalidPageID, t.internalMaxSize)
		root.SetKeyAt(1, key0)
		root.SetValueAt(0, left.GetPageID())
		root.SetValueAt(1, right.GetPageID())
		root.SetSize(2)

		left.SetParentPageID(rootID)
		right.SetParentPageID(rootID)
		t.rootPageID = rootID
		t.updateRootRecord()
		t.bpm.UnpinPage(rootID, true)
		return
	}

	parentPg := txn.FindPage(left.GetParentPageID())
	if parentPg == nil {
		panic(fmt.Sprintf("btree %s: parent page %d not held during split", t.indexName, left.GetParentPageID()))
	}
	parent := t.internal(header(parentPg))
	if parent.GetSize() < t.internalMaxSize {
		parent.Insert(key0, right.GetPageID(), t.order)
		return
	}

	// The parent is full too: split it and promote the right half's first
	// key one level up.
	rightParentPg, rightParentID, err := t.bpm.NewPage()
	if err != nil {
		panic(fmt.Sprintf("btree %s: failed to allocate internal page during split: %v", t.indexName, err))
	}
	rightParent := t.internal(header(rightParentPg))
	rightParent.Init(rightParentID, parent.GetParentPageID(), t.internalMaxSize)
	parent.Split(rightParent, key0, right.GetPageID(), t.order)
	t.updateChildren(rightParent, 0, rightParent.GetSize())

	parentKey0 := rightParent.KeyAt(0)
	t.insertInParent(header(parentPg), header(rightParentPg), parentKey0, txn)
	t.count(func(m *internaltelemetry.StorageMetrics) { m.TreeSplitCounter.Add(context.Background(), 1) })

	t.bpm.UnpinPage(rightParentID, true)
}

// updateChildren rewrites the parent pointer of the node's children in
// [begin, end).
func (t *BPlusTree[K, V]) updateChildren(node internalNode[K], begin, end int) {
	for i := begin; i < end; i++ {
		childPg, err := t.bpm.FetchPage(node.ValueAt(i))
		if err != nil {
			panic(fmt.Sprintf("btree %s: failed to fetch child page %d: %v", t.indexName, node.ValueAt(i), err))
		}
		header(childPg).SetParentPageID(node.GetPageID())
		t.bpm.UnpinPage(childPg.GetPageID(), true)
	}
}

// Remove deletes the key if present, rebalancing underflowed nodes by
// borrowing from or merging with siblings. Pages emptied by merges are
// deleted only after every latch is released.
func (t *BPlusTree[K, V]) Remove(key K, txn *transaction.Transaction) error {
	p, err := t.getLeafPage(key, txn, opRemove, true)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	h := header(p)
	leaf := t.leaf(h)
	if !leaf.Remove(key, t.order) {
		t.unlockPageSet(txn, false)
		return nil
	}

	switch {
	case h.IsRootPage():
		if h.GetSize() == 0 {
			t.rootPageID = page.InvalidPageID
			t.updateRootRecord()
		}
		t.unlockPageSet(txn, true)
	case h.GetSize() >= h.GetMinSize():
		t.unlockPageSet(txn, true)
	default:
		t.handleUnderflow(h, txn)
		t.unlockPageSet(txn, true)
	}

	for pid := range txn.DeletedPageSet() {
		t.bpm.DeletePage(pid)
	}
	txn.ClearDeletedPageSet()
	return nil
}

// handleUnderflow restores the minimum-occupancy invariant of the node,
// preferring redistribution over merging. The node's unsafe ancestors are
// exclusively held in the transaction's page set.
func (t *BPlusTree[K, V]) handleUnderflow(h nodeHeader, txn *transaction.Transaction) {
	if h.IsRootPage() {
		if h.IsLeafPage() || h.GetSize() > 1 {
			return
		}
		// An internal root with a single child hands the root over.
		in := t.internal(h)
		txn.AddIntoDeletedPageSet(h.GetPageID())
		t.rootPageID = in.ValueAt(0)
		rootPg, err := t.bpm.FetchPage(t.rootPageID)
		if err != nil {
			panic(fmt.Sprintf("btree %s: failed to fetch promoted root %d: %v", t.indexName, t.rootPageID, err))
		}
		header(rootPg).SetParentPageID(page.InvalidPageID)
		t.updateRootRecord()
		t.bpm.UnpinPage(t.rootPageID, true)
		return
	}

	parentPg := txn.FindPage(h.GetParentPageID())
	if parentPg == nil {
		panic(fmt.Sprintf("btree %s: parent page %d not held during underflow", t.indexName, h.GetParentPageID()))
	}
	parent := t.internal(header(parentPg))

	leftID, rightID := t.siblings(h, parent)
	if leftID == page.InvalidPageID && rightID == page.InvalidPageID {
		panic(fmt.Sprintf("btree %s: non-root page %d has no sibling", t.indexName, h.GetPageID()))
	}

	var leftPg, rightPg *page.Page
	if leftID != page.InvalidPageID {
		leftPg = t.fetchLatched(leftID)
	}
	if rightID != page.InvalidPageID {
		rightPg = t.fetchLatched(rightID)
	}

	if t.tryBorrow(h, leftPg, parent, true) || t.tryBorrow(h, rightPg, parent, false) {
		t.unpinSiblings(leftPg, rightPg)
		return
	}

	// Merge with the left sibling when there is one, otherwise with the right
	// sibling; the right-hand node of the pair is folded into the left-hand one.
	var left, right nodeHeader
	if leftPg != nil {
		left, right = header(leftPg), h
	} else {
		left, right = h, header(rightPg)
	}
	t.merge(left, right, parent)
	txn.AddIntoDeletedPageSet(right.GetPageID())
	t.unpinSiblings(leftPg, rightPg)

	if parent.GetSize() < parent.GetMinSize() {
		t.handleUnderflow(parent.nodeHeader, txn)
	}
}

// fetchLatched fetches and exclusively latches a sibling page for the
// duration of one underflow repair.
func (t *BPlusTree[K, V]) fetchLatched(pageID page.PageID) *page.Page {
	p, err := t.bpm.FetchPage(pageID)
	if err != nil {
		panic(fmt.Sprintf("btree %s: failed to fetch sibling page %d: %v", t.indexName, pageID, err))
	}
	p.Lock()
	return p
}

// siblings returns the page ids of the node's immediate neighbors in the
// parent's child ordering. A missing neighbor is the invalid page id.
func (t *BPlusTree[K, V]) siblings(h nodeHeader, parent internalNode[K]) (left, right page.PageID) {
	index := parent.FindIndex(h.GetPageID())
	if index < 0 {
		panic(fmt.Sprintf("btree %s: page %d missing from parent %d", t.indexName, h.GetPageID(), parent.GetPageID()))
	}
	left, right = page.InvalidPageID, page.InvalidPageID
	if index > 0 {
		left = parent.ValueAt(index - 1)
	}
	if index < parent.GetSize()-1 {
		right = parent.ValueAt(index + 1)
	}
	return left, right
}

// tryBorrow moves one entry from the sibling into the underflowed node when
// the sibling can spare it, updating the separator in the parent.
func (t *BPlusTree[K, V]) tryBorrow(h nodeHeader, sibPg *page.Page, parent internalNode[K], isLeft bool) bool {
	if sibPg == nil {
		return false
	}
	sib := header(sibPg)
	if sib.GetSize() <= sib.GetMinSize() {
		return false
	}

	parentUpdateAt := parent.FindIndex(h.GetPageID())
	if !isLeft {
		parentUpdateAt++
	}
	var updateKey K

	if h.IsLeafPage() {
		leaf := t.leaf(h)
		sibLeaf := t.leaf(sib)
		borrowAt := 0
		if isLeft {
			borrowAt = sibLeaf.GetSize() - 1
		}
		leaf.Insert(sibLeaf.KeyAt(borrowAt), sibLeaf.ValueAt(borrowAt), t.order)
		sibLeaf.Remove(sibLeaf.KeyAt(borrowAt), t.order)
		if isLeft {
			updateKey = leaf.KeyAt(0)
		} else {
			updateKey = sibLeaf.KeyAt(0)
		}
	} else {
		in := t.internal(h)
		sibIn := t.internal(sib)
		if isLeft {
			// The parent separator rotates down in front of the node; the
			// sibling's last child moves across to slot 0 and the sibling's
			// last key rotates up into the parent.
			updateKey = sibIn.KeyAt(sibIn.GetSize() - 1)
			in.ShiftRight()
			in.SetKeyAt(1, parent.KeyAt(parentUpdateAt))
			in.SetValueAt(0, sibIn.ValueAt(sibIn.GetSize()-1))
			sibIn.IncreaseSize(-1)
			t.updateChildren(in, 0, 1)
		} else {
			// The parent separator rotates down at the node's end; the
			// sibling's first child moves across.
			updateKey = sibIn.KeyAt(1)
			in.SetKeyAt(in.GetSize(), parent.KeyAt(parentUpdateAt))
			in.SetValueAt(in.GetSize(), sibIn.ValueAt(0))
			in.IncreaseSize(1)
			sibIn.ShiftLeft(0)
			t.updateChildren(in, in.GetSize()-1, in.GetSize())
		}
	}

	parent.SetKeyAt(parentUpdateAt, updateKey)
	t.count(func(m *internaltelemetry.StorageMetrics) { m.TreeBorrowCounter.Add(context.Background(), 1) })
	return true
}

// merge folds the right node into the left one and drops the right node's
// slot from the parent. Leaf merges inherit the sibling pointer; internal
// merges pull the parent separator down between the two halves.
func (t *BPlusTree[K, V]) merge(left, right nodeHeader, parent internalNode[K]) {
	posLeft := parent.FindIndex(left.GetPageID())
	if posLeft < 0 {
		panic(fmt.Sprintf("btree %s: page %d missing from parent %d", t.indexName, left.GetPageID(), parent.GetPageID()))
	}

	if left.IsLeafPage() {
		l := t.leaf(left)
		r := t.leaf(right)
		for i := 0; i < r.GetSize(); i++ {
			l.Insert(r.KeyAt(i), r.ValueAt(i), t.order)
		}
		l.SetNextPageID(r.GetNextPageID())
	} else {
		l := t.internal(left)
		r := t.internal(right)
		oldSize := l.GetSize()

		l.SetKeyAt(l.GetSize(), parent.KeyAt(posLeft+1))
		l.SetValueAt(l.GetSize(), r.ValueAt(0))
		l.IncreaseSize(1)
		for i := 1; i < r.GetSize(); i++ {
			l.Insert(r.KeyAt(i), r.ValueAt(i), t.order)
		}
		t.updateChildren(l, oldSize, l.GetSize())
	}

	parent.ShiftLeft(posLeft + 1)
	t.count(func(m *internaltelemetry.StorageMetrics) { m.TreeMergeCounter.Add(context.Background(), 1) })
}

func (t *BPlusTree[K, V]) unpinSiblings(leftPg, rightPg *page.Page) {
	if leftPg != nil {
		leftPg.Unlock()
		t.bpm.UnpinPage(leftPg.GetPageID(), true)
	}
	if rightPg != nil {
		rightPg.Unlock()
		t.bpm.UnpinPage(rightPg.GetPageID(), true)
	}
}

// updateRootRecord persists the current root page id on the header page.
// Callers hold the root-id latch exclusively.
func (t *BPlusTree[K, V]) updateRootRecord() {
	headerPg, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		panic(fmt.Sprintf("btree %s: failed to fetch header page: %v", t.indexName, err))
	}
	headerPg.Lock()
	hp := asHeaderPage(headerPg)
	if !hp.UpdateRecord(t.indexName, t.rootPageID) {
		hp.InsertRecord(t.indexName, t.rootPageID)
	}
	headerPg.Unlock()
	t.bpm.UnpinPage(page.HeaderPageID, true)
}

func (t *BPlusTree[K, V]) count(fn func(*internaltelemetry.StorageMetrics)) {
	if t.metrics != nil {
		fn(t.metrics)
	}
}

// String renders the tree level by level for debugging. It takes no latches
// beyond the root-id latch and must not run concurrently with writers.
func (t *BPlusTree[K, V]) String() string {
	t.rootLatch.RLock()
	rootID := t.rootPageID
	t.rootLatch.RUnlock()
	if rootID == page.InvalidPageID {
		return "(empty)"
	}
	var sb strings.Builder
	t.dump(rootID, 0, &sb)
	return sb.String()
}

func (t *BPlusTree[K, V]) dump(pageID page.PageID, level int, sb *strings.Builder) {
	p, err := t.bpm.FetchPage(pageID)
	if err != nil {
		fmt.Fprintf(sb, "%s<unreadable page %d: %v>\n", strings.Repeat("  ", level), pageID, err)
		return
	}
	h := header(p)
	indent := strings.Repeat("  ", level)
	if h.IsLeafPage() {
		leaf := t.leaf(h)
		fmt.Fprintf(sb, "%sleaf %d next=%d [", indent, h.GetPageID(), h.GetNextPageID())
		for i := 0; i < leaf.GetSize(); i++ {
			if i > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(sb, "%v", leaf.KeyAt(i))
		}
		sb.WriteString("]\n")
		t.bpm.UnpinPage(pageID, false)
		return
	}
	in := t.internal(h)
	fmt.Fprintf(sb, "%sinternal %d [", indent, h.GetPageID())
	for i := 1; i < in.GetSize(); i++ {
		if i > 1 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(sb, "%v", in.KeyAt(i))
	}
	sb.WriteString("]\n")
	size := in.GetSize()
	children := make([]page.PageID, size)
	for i := 0; i < size; i++ {
		children[i] = in.ValueAt(i)
	}
	t.bpm.UnpinPage(pageID, false)
	for _, child := range children {
		t.dump(child, level+1, sb)
	}
}
