// Package disk implements fixed-size page I/O below the buffer pool.
package disk

import (
	"errors"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// Common disk layer errors.
var (
	ErrInvalidPageID = errors.New("invalid page id")
	ErrShortPage     = errors.New("buffer size does not match page size")
	ErrClosed        = errors.New("disk manager is closed")
)

// Manager is the narrow contract the buffer pool holds on the disk layer:
// synchronous fixed-size page I/O plus on-disk page id lifecycle.
type Manager interface {
	// ReadPage reads the page image identified by pageID into buf.
	// A page that was allocated but never written reads back as zeroes.
	ReadPage(pageID page.PageID, buf []byte) error
	// WritePage writes buf as the page image identified by pageID.
	WritePage(pageID page.PageID, buf []byte) error
	// AllocatePage reserves a fresh page id on disk.
	AllocatePage() (page.PageID, error)
	// DeallocatePage returns a page id to the free pool.
	DeallocatePage(pageID page.PageID) error
	// Sync makes all previous writes durable.
	Sync() error
	// Close releases the underlying resources.
	Close() error
	// PageSize reports the fixed page size in bytes.
	PageSize() int
}
