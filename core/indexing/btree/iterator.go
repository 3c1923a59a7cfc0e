package btree

import (
	"fmt"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// Iterator walks the leaf chain in ascending key order. It keeps exactly one
// leaf pinned at a time: the pin is taken when the iterator is created,
// moved on every page transition, and dropped when the iterator ends or is
// closed. An iterator is not safe for use from multiple goroutines, but it
// remains valid alongside concurrent readers.
type Iterator[K any, V any] struct {
	tree *BPlusTree[K, V]
	page *page.Page // pinned current leaf; nil once the iterator ended
	pos  int
}

// IsEnd reports whether the iterator has moved past the last entry.
func (it *Iterator[K, V]) IsEnd() bool { return it.page == nil }

// Key returns the key at the current position.
func (it *Iterator[K, V]) Key() K {
	it.mustBeValid()
	return it.tree.leaf(header(it.page)).KeyAt(it.pos)
}

// Value returns the value at the current position.
func (it *Iterator[K, V]) Value() V {
	it.mustBeValid()
	return it.tree.leaf(header(it.page)).ValueAt(it.pos)
}

func (it *Iterator[K, V]) mustBeValid() {
	if it.page == nil {
		panic("btree iterator: dereference past the end")
	}
}

// Advance moves to the next entry, following the sibling pointer at the end
// of a leaf. Advancing an ended iterator is a no-op.
func (it *Iterator[K, V]) Advance() error {
	if it.page == nil {
		return nil
	}
	leaf := it.tree.leaf(header(it.page))
	it.pos++
	if it.pos < leaf.GetSize() {
		return nil
	}
	next := leaf.GetNextPageID()
	it.tree.bpm.UnpinPage(it.page.GetPageID(), false)
	it.page = nil
	it.pos = 0
	if next == page.InvalidPageID {
		return nil
	}
	p, err := it.tree.bpm.FetchPage(next)
	if err != nil {
		return fmt.Errorf("failed to fetch next leaf %d: %w", next, err)
	}
	it.page = p
	return nil
}

// Equals reports whether two iterators are at the same position.
func (it *Iterator[K, V]) Equals(other *Iterator[K, V]) bool {
	if it.page == nil || other.page == nil {
		return it.page == nil && other.page == nil
	}
	return it.page.GetPageID() == other.page.GetPageID() && it.pos == other.pos
}

// Close drops the iterator's pin. It is safe to call on an ended iterator.
func (it *Iterator[K, V]) Close() {
	if it.page != nil {
		it.tree.bpm.UnpinPage(it.page.GetPageID(), false)
		it.page = nil
	}
}

// Begin returns an iterator positioned at the smallest key. The descent
// couples shared latches down the leftmost spine.
func (t *BPlusTree[K, V]) Begin() (*Iterator[K, V], error) {
	t.rootLatch.RLock()
	if t.rootPageID == page.InvalidPageID {
		t.rootLatch.RUnlock()
		return t.End(), nil
	}

	curPageID := t.rootPageID
	var prev *page.Page
	for {
		p, err := t.bpm.FetchPage(curPageID)
		if err != nil {
			if prev != nil {
				prev.RUnlock()
				t.bpm.UnpinPage(prev.GetPageID(), false)
			} else {
				t.rootLatch.RUnlock()
			}
			return nil, fmt.Errorf("failed to fetch page %d: %w", curPageID, err)
		}
		p.RLock()
		if prev != nil {
			prev.RUnlock()
			t.bpm.UnpinPage(prev.GetPageID(), false)
		} else {
			t.rootLatch.RUnlock()
		}

		h := header(p)
		if h.IsLeafPage() {
			p.RUnlock()
			if h.GetSize() == 0 {
				// Only an empty root leaf can be size zero.
				t.bpm.UnpinPage(p.GetPageID(), false)
				return t.End(), nil
			}
			return &Iterator[K, V]{tree: t, page: p, pos: 0}, nil
		}
		curPageID = t.internal(h).ValueAt(0)
		prev = p
	}
}

// BeginAt returns an iterator positioned at key, or the end iterator when
// the key is absent.
func (t *BPlusTree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	p, err := t.getLeafPage(key, nil, opFind, true)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return t.End(), nil
	}
	leaf := t.leaf(header(p))
	pos := leaf.LowerBound(key, t.order)
	if pos == leaf.GetSize() || t.order(leaf.KeyAt(pos), key) != 0 {
		p.RUnlock()
		t.bpm.UnpinPage(p.GetPageID(), false)
		return t.End(), nil
	}
	p.RUnlock()
	return &Iterator[K, V]{tree: t, page: p, pos: pos}, nil
}

// End returns the past-the-end iterator.
func (t *BPlusTree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{tree: t}
}
