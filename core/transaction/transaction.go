// Package transaction carries the per-operation latch bookkeeping the B+
// tree borrows during a traversal: the FIFO of latched pages and the set of
// pages scheduled for deletion once all latches are released.
package transaction

import (
	"github.com/google/uuid"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// Transaction is the context of a single index operation. It is not a
// concurrency-control transaction: it only records which pages the operation
// holds exclusively latched (in acquisition order) and which page ids must be
// deleted after the latches are dropped.
//
// A nil entry in the page set is the sentinel for the tree's root-id latch,
// so that releasing the set front-to-back releases the root-id latch at the
// right point.
type Transaction struct {
	id      uuid.UUID
	pageSet []*page.Page
	deleted map[page.PageID]struct{}
}

// New creates an empty transaction context.
func New() *Transaction {
	return &Transaction{
		id:      uuid.New(),
		deleted: make(map[page.PageID]struct{}),
	}
}

// ID returns the context's unique id.
func (t *Transaction) ID() uuid.UUID { return t.id }

// AddIntoPageSet appends a latched page (or the nil root-latch sentinel) to
// the FIFO.
func (t *Transaction) AddIntoPageSet(p *page.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PageSet returns the FIFO of latched pages, oldest first.
func (t *Transaction) PageSet() []*page.Page { return t.pageSet }

// PopFrontPageSet removes and returns the oldest entry. ok is false when the
// set is empty.
func (t *Transaction) PopFrontPageSet() (p *page.Page, ok bool) {
	if len(t.pageSet) == 0 {
		return nil, false
	}
	p = t.pageSet[0]
	t.pageSet = t.pageSet[1:]
	return p, true
}

// FindPage scans the page set newest-first for the given page id. The B+
// tree uses it to reach a held ancestor without re-fetching it.
func (t *Transaction) FindPage(pageID page.PageID) *page.Page {
	for i := len(t.pageSet) - 1; i >= 0; i-- {
		if t.pageSet[i] != nil && t.pageSet[i].GetPageID() == pageID {
			return t.pageSet[i]
		}
	}
	return nil
}

// AddIntoDeletedPageSet schedules a page for deletion after unlatching.
func (t *Transaction) AddIntoDeletedPageSet(pageID page.PageID) {
	t.deleted[pageID] = struct{}{}
}

// DeletedPageSet returns the pages scheduled for deletion.
func (t *Transaction) DeletedPageSet() map[page.PageID]struct{} { return t.deleted }

// ClearDeletedPageSet empties the deleted-page set.
func (t *Transaction) ClearDeletedPageSet() {
	t.deleted = make(map[page.PageID]struct{})
}
