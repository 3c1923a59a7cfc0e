package disk

import (
	"sync"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// MemManager is an in-memory Manager. It backs tests and throwaway engines
// where durability does not matter.
type MemManager struct {
	pageSize int

	mu         sync.Mutex
	pages      map[page.PageID][]byte
	nextPageID page.PageID
	freeIDs    []page.PageID
}

// NewMemManager creates an in-memory disk manager with the given page size.
func NewMemManager(pageSize int) *MemManager {
	return &MemManager{
		pageSize:   pageSize,
		pages:      make(map[page.PageID][]byte),
		nextPageID: page.HeaderPageID + 1,
	}
}

func (mm *MemManager) ReadPage(pageID page.PageID, buf []byte) error {
	if pageID == page.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != mm.pageSize {
		return ErrShortPage
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if data, ok := mm.pages[pageID]; ok {
		copy(buf, data)
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (mm *MemManager) WritePage(pageID page.PageID, buf []byte) error {
	if pageID == page.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != mm.pageSize {
		return ErrShortPage
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	data, ok := mm.pages[pageID]
	if !ok {
		data = make([]byte, mm.pageSize)
		mm.pages[pageID] = data
	}
	copy(data, buf)
	return nil
}

func (mm *MemManager) AllocatePage() (page.PageID, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if n := len(mm.freeIDs); n > 0 {
		id := mm.freeIDs[n-1]
		mm.freeIDs = mm.freeIDs[:n-1]
		return id, nil
	}
	id := mm.nextPageID
	mm.nextPageID++
	return id, nil
}

func (mm *MemManager) DeallocatePage(pageID page.PageID) error {
	if pageID == page.InvalidPageID || pageID == page.HeaderPageID {
		return ErrInvalidPageID
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.pages, pageID)
	mm.freeIDs = append(mm.freeIDs, pageID)
	return nil
}

func (mm *MemManager) Sync() error  { return nil }
func (mm *MemManager) Close() error { return nil }

func (mm *MemManager) PageSize() int { return mm.pageSize }
