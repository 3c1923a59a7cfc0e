package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// MaxFilenameLength bounds the data file path.
const MaxFilenameLength = 255

// FileManager is a Manager backed by a single paged file. Page N lives at
// byte offset N*pageSize; slot 0 is never used because page id 0 is the
// invalid sentinel.
type FileManager struct {
	filePath string
	file     *os.File
	pageSize int
	logger   *zap.Logger

	mu         sync.Mutex
	nextPageID page.PageID
	freeIDs    []page.PageID
	closed     bool
}

// NewFileManager opens or creates the paged data file. The header page id is
// always considered allocated so that indexes can fetch it unconditionally.
func NewFileManager(filePath string, pageSize int, logger *zap.Logger) (*FileManager, error) {
	if len(filePath) > MaxFilenameLength {
		return nil, fmt.Errorf("file path too long: %s", filePath)
	}
	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", filePath, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat data file %s: %w", filePath, err)
	}

	// The first unused id is one past the highest page the file can hold.
	next := page.PageID(uint64(info.Size()) / uint64(pageSize))
	if next <= page.HeaderPageID {
		next = page.HeaderPageID + 1
	}

	fm := &FileManager{
		filePath:   filePath,
		file:       file,
		pageSize:   pageSize,
		logger:     logger,
		nextPageID: next,
	}
	fm.logger.Info("opened data file",
		zap.String("path", filePath),
		zap.Int("page_size", pageSize),
		zap.Uint64("next_page_id", uint64(next)),
	)
	return fm, nil
}

func (fm *FileManager) ReadPage(pageID page.PageID, buf []byte) error {
	if pageID == page.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != fm.pageSize {
		return ErrShortPage
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.closed {
		return ErrClosed
	}
	n, err := fm.file.ReadAt(buf, int64(pageID)*int64(fm.pageSize))
	if err == io.EOF {
		// Allocated but never written: reads back as zeroes.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read page %d: %w", pageID, err)
	}
	return nil
}

func (fm *FileManager) WritePage(pageID page.PageID, buf []byte) error {
	if pageID == page.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != fm.pageSize {
		return ErrShortPage
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.closed {
		return ErrClosed
	}
	if _, err := fm.file.WriteAt(buf, int64(pageID)*int64(fm.pageSize)); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}
	return nil
}

func (fm *FileManager) AllocatePage() (page.PageID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.closed {
		return page.InvalidPageID, ErrClosed
	}
	if n := len(fm.freeIDs); n > 0 {
		id := fm.freeIDs[n-1]
		fm.freeIDs = fm.freeIDs[:n-1]
		return id, nil
	}
	id := fm.nextPageID
	fm.nextPageID++
	return id, nil
}

func (fm *FileManager) DeallocatePage(pageID page.PageID) error {
	if pageID == page.InvalidPageID || pageID == page.HeaderPageID {
		return ErrInvalidPageID
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.closed {
		return ErrClosed
	}
	fm.freeIDs = append(fm.freeIDs, pageID)
	return nil
}

func (fm *FileManager) Sync() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.closed {
		return ErrClosed
	}
	if err := fm.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync data file: %w", err)
	}
	return nil
}

func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.closed {
		return nil
	}
	fm.closed = true
	if err := fm.file.Sync(); err != nil {
		fm.file.Close()
		return fmt.Errorf("failed to sync data file on close: %w", err)
	}
	return fm.file.Close()
}

func (fm *FileManager) PageSize() int { return fm.pageSize }
