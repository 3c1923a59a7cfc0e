package btree

import (
	"encoding/binary"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// headerPage is a typed view over the well-known header page. It stores
// (index name, root page id) records so that indexes can find their root
// across restarts.
//
// Layout: record count (uint32) followed by fixed-width records of a 32-byte
// name and an 8-byte root page id.
type headerPage struct {
	data []byte
}

const (
	headerNameSize    = 32
	headerRecordSize  = headerNameSize + 8
	headerCountOffset = 0
	headerRecordsBase = 4
)

func asHeaderPage(p *page.Page) headerPage { return headerPage{data: p.GetData()} }

func (h headerPage) recordCount() int {
	return int(binary.LittleEndian.Uint32(h.data[headerCountOffset:]))
}

func (h headerPage) setRecordCount(n int) {
	binary.LittleEndian.PutUint32(h.data[headerCountOffset:], uint32(n))
}

func (h headerPage) maxRecords() int {
	return (len(h.data) - headerRecordsBase) / headerRecordSize
}

func (h headerPage) nameAt(i int) string {
	off := headerRecordsBase + i*headerRecordSize
	raw := h.data[off : off+headerNameSize]
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return string(raw[:end])
}

func (h headerPage) rootAt(i int) page.PageID {
	off := headerRecordsBase + i*headerRecordSize + headerNameSize
	return page.PageID(binary.LittleEndian.Uint64(h.data[off:]))
}

func (h headerPage) setRootAt(i int, id page.PageID) {
	off := headerRecordsBase + i*headerRecordSize + headerNameSize
	binary.LittleEndian.PutUint64(h.data[off:], uint64(id))
}

func (h headerPage) findRecord(name string) int {
	for i := 0; i < h.recordCount(); i++ {
		if h.nameAt(i) == name {
			return i
		}
	}
	return -1
}

// GetRootID looks up the root record of the named index.
func (h headerPage) GetRootID(name string) (page.PageID, bool) {
	i := h.findRecord(name)
	if i < 0 {
		return page.InvalidPageID, false
	}
	return h.rootAt(i), true
}

// InsertRecord adds a record for the named index. It reports false when the
// name exists already or the page is full.
func (h headerPage) InsertRecord(name string, rootID page.PageID) bool {
	if len(name) >= headerNameSize || h.findRecord(name) >= 0 {
		return false
	}
	count := h.recordCount()
	if count >= h.maxRecords() {
		return false
	}
	off := headerRecordsBase + count*headerRecordSize
	copy(h.data[off:off+headerNameSize], name)
	for i := off + len(name); i < off+headerNameSize; i++ {
		h.data[i] = 0
	}
	h.setRootAt(count, rootID)
	h.setRecordCount(count + 1)
	return true
}

// UpdateRecord rewrites the root of the named index, reporting false when no
// record exists.
func (h headerPage) UpdateRecord(name string, rootID page.PageID) bool {
	i := h.findRecord(name)
	if i < 0 {
		return false
	}
	h.setRootAt(i, rootID)
	return true
}
