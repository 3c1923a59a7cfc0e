package btree

import (
	"encoding/binary"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// pageType discriminates tree pages.
type pageType byte

const (
	invalidPageType pageType = iota
	leafPageType
	internalPageType
)

// On-disk tree page header layout. The header is shared by leaf and internal
// pages; the next-pointer slot is only meaningful on leaves.
//
//	offset  0: page type (1 byte)
//	offset  1: size (uint32)
//	offset  5: max size (uint32)
//	offset  9: parent page id (uint64)
//	offset 17: page id (uint64)
//	offset 25: next page id (uint64, leaf only)
//	offset 33: entry array
const (
	pageTypeOffset   = 0
	sizeOffset       = 1
	maxSizeOffset    = 5
	parentOffset     = 9
	pageIDOffset     = 17
	nextPageIDOffset = 25
	nodeHeaderSize   = 33
)

// nodeHeader gives typed access to the common header of a tree page's data.
type nodeHeader struct {
	data []byte
}

func header(p *page.Page) nodeHeader { return nodeHeader{data: p.GetData()} }

func (h nodeHeader) pageType() pageType      { return pageType(h.data[pageTypeOffset]) }
func (h nodeHeader) setPageType(t pageType)  { h.data[pageTypeOffset] = byte(t) }
func (h nodeHeader) IsLeafPage() bool        { return h.pageType() == leafPageType }
func (h nodeHeader) GetSize() int            { return int(binary.LittleEndian.Uint32(h.data[sizeOffset:])) }
func (h nodeHeader) SetSize(size int)        { binary.LittleEndian.PutUint32(h.data[sizeOffset:], uint32(size)) }
func (h nodeHeader) IncreaseSize(delta int)  { h.SetSize(h.GetSize() + delta) }
func (h nodeHeader) GetMaxSize() int         { return int(binary.LittleEndian.Uint32(h.data[maxSizeOffset:])) }
func (h nodeHeader) setMaxSize(maxSize int)  { binary.LittleEndian.PutUint32(h.data[maxSizeOffset:], uint32(maxSize)) }
func (h nodeHeader) IsRootPage() bool        { return h.GetParentPageID() == page.InvalidPageID }

func (h nodeHeader) GetParentPageID() page.PageID {
	return page.PageID(binary.LittleEndian.Uint64(h.data[parentOffset:]))
}

func (h nodeHeader) SetParentPageID(id page.PageID) {
	binary.LittleEndian.PutUint64(h.data[parentOffset:], uint64(id))
}

func (h nodeHeader) GetPageID() page.PageID {
	return page.PageID(binary.LittleEndian.Uint64(h.data[pageIDOffset:]))
}

func (h nodeHeader) setPageID(id page.PageID) {
	binary.LittleEndian.PutUint64(h.data[pageIDOffset:], uint64(id))
}

func (h nodeHeader) GetNextPageID() page.PageID {
	return page.PageID(binary.LittleEndian.Uint64(h.data[nextPageIDOffset:]))
}

func (h nodeHeader) SetNextPageID(id page.PageID) {
	binary.LittleEndian.PutUint64(h.data[nextPageIDOffset:], uint64(id))
}

// GetMinSize returns the underflow threshold of a non-root node.
func (h nodeHeader) GetMinSize() int {
	if h.IsLeafPage() {
		return h.GetMaxSize() / 2
	}
	return (h.GetMaxSize() + 1) / 2
}

// leafNode is a typed view over a leaf page: sorted key/value pairs plus a
// next-sibling pointer.
type leafNode[K any, V any] struct {
	nodeHeader
	keyCodec KeyCodec[K]
	valCodec ValueCodec[V]
}

func (n leafNode[K, V]) Init(pageID, parentID page.PageID, maxSize int) {
	n.setPageType(leafPageType)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	n.SetParentPageID(parentID)
	n.setPageID(pageID)
	n.SetNextPageID(page.InvalidPageID)
}

func (n leafNode[K, V]) entrySize() int { return n.keyCodec.Size + n.valCodec.Size }

func (n leafNode[K, V]) keyOffset(i int) int { return nodeHeaderSize + i*n.entrySize() }

func (n leafNode[K, V]) valueOffset(i int) int { return n.keyOffset(i) + n.keyCodec.Size }

func (n leafNode[K, V]) KeyAt(i int) K {
	return n.keyCodec.Decode(n.data[n.keyOffset(i):])
}

func (n leafNode[K, V]) SetKeyAt(i int, key K) {
	n.keyCodec.Encode(key, n.data[n.keyOffset(i):])
}

func (n leafNode[K, V]) ValueAt(i int) V {
	return n.valCodec.Decode(n.data[n.valueOffset(i):])
}

func (n leafNode[K, V]) SetValueAt(i int, value V) {
	n.valCodec.Encode(value, n.data[n.valueOffset(i):])
}

// LowerBound returns the smallest slot whose key is >= key, or size.
func (n leafNode[K, V]) LowerBound(key K, order Order[K]) int {
	left, right := 0, n.GetSize()
	for left < right {
		mid := (left + right) / 2
		if order(key, n.KeyAt(mid)) <= 0 {
			right = mid
		} else {
			left = mid + 1
		}
	}
	return left
}

// shift moves entries [from, size) to [to, ...) within the page.
func (n leafNode[K, V]) shift(from, to int) {
	es := n.entrySize()
	copy(n.data[n.keyOffset(to):], n.data[n.keyOffset(from):n.keyOffset(from)+(n.GetSize()-from)*es])
}

// Insert places the pair in sorted position, reporting false on a duplicate
// key.
func (n leafNode[K, V]) Insert(key K, value V, order Order[K]) bool {
	index := n.LowerBound(key, order)
	if index < n.GetSize() && order(key, n.KeyAt(index)) == 0 {
		return false
	}
	es := n.entrySize()
	copy(n.data[n.keyOffset(index+1):n.keyOffset(index+1)+(n.GetSize()-index)*es],
		n.data[n.keyOffset(index):])
	n.SetKeyAt(index, key)
	n.SetValueAt(index, value)
	n.IncreaseSize(1)
	return true
}

// Remove deletes the key, reporting whether it was present.
func (n leafNode[K, V]) Remove(key K, order Order[K]) bool {
	index := n.LowerBound(key, order)
	if index == n.GetSize() || order(key, n.KeyAt(index)) != 0 {
		return false
	}
	n.shift(index+1, index)
	n.IncreaseSize(-1)
	return true
}

// Split moves the upper half of the entries, from the min size onward, into
// the (empty) right sibling.
func (n leafNode[K, V]) Split(right leafNode[K, V]) {
	x := n.GetMinSize()
	moved := n.GetSize() - x
	es := n.entrySize()
	copy(right.data[nodeHeaderSize:], n.data[n.keyOffset(x):n.keyOffset(x)+moved*es])
	right.SetSize(moved)
	n.SetSize(x)
}

// internalNode is a typed view over an internal page: size child pointers
// where slot 0 carries no key and slots 1..size-1 carry separator keys.
type internalNode[K any] struct {
	nodeHeader
	keyCodec KeyCodec[K]
}

func (n internalNode[K]) Init(pageID, parentID page.PageID, maxSize int) {
	n.setPageType(internalPageType)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	n.SetParentPageID(parentID)
	n.setPageID(pageID)
}

func (n internalNode[K]) entrySize() int { return n.keyCodec.Size + 8 }

func (n internalNode[K]) keyOffset(i int) int { return nodeHeaderSize + i*n.entrySize() }

func (n internalNode[K]) valueOffset(i int) int { return n.keyOffset(i) + n.keyCodec.Size }

func (n internalNode[K]) KeyAt(i int) K {
	return n.keyCodec.Decode(n.data[n.keyOffset(i):])
}

func (n internalNode[K]) SetKeyAt(i int, key K) {
	n.keyCodec.Encode(key, n.data[n.keyOffset(i):])
}

func (n internalNode[K]) ValueAt(i int) page.PageID {
	return page.PageID(binary.LittleEndian.Uint64(n.data[n.valueOffset(i):]))
}

func (n internalNode[K]) SetValueAt(i int, id page.PageID) {
	binary.LittleEndian.PutUint64(n.data[n.valueOffset(i):], uint64(id))
}

// FindIndex returns the slot holding the given child, or -1.
func (n internalNode[K]) FindIndex(child page.PageID) int {
	for i := 0; i < n.GetSize(); i++ {
		if n.ValueAt(i) == child {
			return i
		}
	}
	return -1
}

// LowerBound returns the smallest separator slot in [1, size) whose key is
// >= key, or size.
func (n internalNode[K]) LowerBound(key K, order Order[K]) int {
	left, right := 1, n.GetSize()
	for left < right {
		mid := (left + right) / 2
		if order(key, n.KeyAt(mid)) <= 0 {
			right = mid
		} else {
			left = mid + 1
		}
	}
	return left
}

// Insert places the separator and child in sorted position.
func (n internalNode[K]) Insert(key K, child page.PageID, order Order[K]) {
	index := n.LowerBound(key, order)
	es := n.entrySize()
	copy(n.data[n.keyOffset(index+1):n.keyOffset(index+1)+(n.GetSize()-index)*es],
		n.data[n.keyOffset(index):])
	n.SetKeyAt(index, key)
	n.SetValueAt(index, child)
	n.IncreaseSize(1)
}

// ShiftRight opens slot 0, moving every entry up by one.
func (n internalNode[K]) ShiftRight() {
	es := n.entrySize()
	copy(n.data[n.keyOffset(1):n.keyOffset(1)+n.GetSize()*es], n.data[n.keyOffset(0):])
	n.IncreaseSize(1)
}

// ShiftLeft closes the given slot, moving the entries after it down by one.
func (n internalNode[K]) ShiftLeft(index int) {
	es := n.entrySize()
	copy(n.data[n.keyOffset(index):], n.data[n.keyOffset(index+1):n.keyOffset(index+1)+(n.GetSize()-index-1)*es])
	n.IncreaseSize(-1)
}

// internalEntry pairs a separator with its child for split staging.
type internalEntry[K any] struct {
	key   K
	child page.PageID
}

// Split distributes this full node's entries plus the incoming one across
// this node and the (empty) right sibling. The lower half, min size entries,
// stays here; the upper half moves right. The first key of the right half is
// the separator the caller promotes.
func (n internalNode[K]) Split(right internalNode[K], key K, child page.PageID, order Order[K]) {
	size := n.GetSize()
	entries := make([]internalEntry[K], size, size+1)
	for i := 0; i < size; i++ {
		entries[i] = internalEntry[K]{key: n.KeyAt(i), child: n.ValueAt(i)}
	}
	index := size
	for i := 1; i < size; i++ {
		if order(key, entries[i].key) <= 0 {
			index = i
			break
		}
	}
	entries = append(entries, internalEntry[K]{})
	copy(entries[index+1:], entries[index:])
	entries[index] = internalEntry[K]{key: key, child: child}

	x := n.GetMinSize()
	n.SetSize(x)
	for i := 0; i < x; i++ {
		n.SetKeyAt(i, entries[i].key)
		n.SetValueAt(i, entries[i].child)
	}
	right.SetSize(len(entries) - x)
	for i := x; i < len(entries); i++ {
		right.SetKeyAt(i-x, entries[i].key)
		right.SetValueAt(i-x, entries[i].child)
	}
}
