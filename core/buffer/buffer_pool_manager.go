// Package buffer implements the fixed-capacity buffer pool and its LRU-K
// replacement policy.
package buffer

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	internaltelemetry "github.com/WhatTheGQlee/kurodb/internal/telemetry"

	"github.com/WhatTheGQlee/kurodb/core/container/hash"
	"github.com/WhatTheGQlee/kurodb/core/storage/disk"
	"github.com/WhatTheGQlee/kurodb/core/storage/page"
	"github.com/WhatTheGQlee/kurodb/core/wal"
)

var (
	// ErrBufferPoolFull is returned when every frame is pinned and none can
	// be evicted.
	ErrBufferPoolFull = errors.New("buffer pool is full and no pages can be evicted")
	// ErrPageNotFound names the condition of a page id with no frame in the
	// pool. No BufferPoolManager method returns it: UnpinPage and FlushPage
	// report that case as false.
	ErrPageNotFound = errors.New("page not found in buffer pool")
)

// pageTableBucketSize bounds the page-table directory buckets.
const pageTableBucketSize = 8

// BufferPoolManager caches disk pages in a fixed array of frames. Frames are
// handed out from the free list first and reclaimed through the LRU-K
// replacer once it runs dry. A single mutex serializes the pool's metadata;
// the per-page latches are acquired by callers and are not this layer's
// concern.
type BufferPoolManager struct {
	diskManager disk.Manager
	logManager  *wal.LogManager // optional
	logger      *zap.Logger
	metrics     *internaltelemetry.StorageMetrics // optional

	poolSize int
	pages    []*page.Page
	// pageTable is the single source of truth for page id to frame.
	pageTable *hash.ExtendibleHashTable[page.PageID, FrameID]
	replacer  *LRUKReplacer
	freeList  *list.List // element values are FrameID

	mu sync.Mutex
}

// NewBufferPoolManager creates a pool of poolSize frames over diskManager.
// logManager and metrics may be nil.
func NewBufferPoolManager(poolSize, replacerK int, diskManager disk.Manager, logManager *wal.LogManager, logger *zap.Logger, metrics *internaltelemetry.StorageMetrics) *BufferPoolManager {
	bpm := &BufferPoolManager{
		diskManager: diskManager,
		logManager:  logManager,
		logger:      logger,
		metrics:     metrics,
		poolSize:    poolSize,
		pages:       make([]*page.Page, poolSize),
		pageTable:   hash.NewExtendibleHashTable[page.PageID, FrameID](pageTableBucketSize, func(id page.PageID) uint64 { return hash.Uint64Hasher(uint64(id)) }),
		replacer:    NewLRUKReplacer(poolSize, replacerK),
		freeList:    list.New(),
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = page.NewPage(page.InvalidPageID, diskManager.PageSize())
		bpm.freeList.PushBack(FrameID(i))
	}
	logger.Info("buffer pool initialized",
		zap.Int("pool_size", poolSize),
		zap.Int("replacer_k", replacerK),
		zap.Int("page_size", diskManager.PageSize()),
	)
	return bpm
}


// acquireFrame obtains a reusable frame: free list first, then the replacer.
// The returned frame's page is reset and unmapped. Must be called with the
// pool latched.
func (bpm *BufferPoolManager) acquireFrame() (FrameID, bool) {
	if front := bpm.freeList.Front(); front != nil {
		bpm.freeList.Remove(front)
		return front.Value.(FrameID), true
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return 0, false
	}
	victim := bpm.pages[frameID]
	bpm.pageTable.Remove(victim.GetPageID())
	if victim.IsDirty() {
		bpm.syncLog()
		if err := bpm.diskManager.WritePage(victim.GetPageID(), victim.GetData()); err != nil {
			// The victim's mapping is gone and its frame is about to be
			// reused; a failed write-back means losing the page image.
			panic(fmt.Sprintf("buffer pool: failed to write back dirty victim page %d: %v", victim.GetPageID(), err))
		}
		bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PoolFlushCounter.Add(context.Background(), 1) })
	}
	bpm.logger.Debug("evicted frame",
		zap.Int("frame_id", int(frameID)),
		zap.Uint64("old_page_id", uint64(victim.GetPageID())),
	)
	victim.Reset()
	bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PoolEvictionCounter.Add(context.Background(), 1) })
	return frameID, true
}

// NewPage allocates a fresh page id and installs a zeroed, pinned page for it.
// It returns ErrBufferPoolFull when every frame is pinned.
func (bpm *BufferPoolManager) NewPage() (*page.Page, page.PageID, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.acquireFrame()
	if !ok {
		return nil, page.InvalidPageID, ErrBufferPoolFull
	}
	pageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		bpm.freeList.PushBack(frameID)
		return nil, page.InvalidPageID, fmt.Errorf("failed to allocate page on disk: %w", err)
	}

	p := bpm.pages[frameID]
	p.SetPageID(pageID)
	p.SetPinCount(1)
	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)

	bpm.appendLog(&wal.LogRecord{Type: wal.LogRecordTypeNewPage, PageID: pageID})
	bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PinnedUpDownCounter.Add(context.Background(), 1) })
	bpm.logger.Debug("new page", zap.Uint64("page_id", uint64(pageID)), zap.Int("frame_id", int(frameID)))
	return p, pageID, nil
}

// FetchPage returns the page pinned, reading it from disk if it is not
// resident. It returns ErrBufferPoolFull when the page is not resident and
// every frame is pinned.
func (bpm *BufferPoolManager) FetchPage(pageID page.PageID) (*page.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable.Find(pageID); ok {
		p := bpm.pages[frameID]
		if p.GetPinCount() == 0 {
			bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PinnedUpDownCounter.Add(context.Background(), 1) })
		}
		p.Pin()
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PoolHitCounter.Add(context.Background(), 1) })
		return p, nil
	}

	frameID, ok := bpm.acquireFrame()
	if !ok {
		return nil, ErrBufferPoolFull
	}
	p := bpm.pages[frameID]
	if err := bpm.diskManager.ReadPage(pageID, p.GetData()); err != nil {
		bpm.freeList.PushBack(frameID)
		return nil, fmt.Errorf("failed to read page %d from disk: %w", pageID, err)
	}
	p.SetPageID(pageID)
	p.SetPinCount(1)
	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	bpm.count(func(m *internaltelemetry.StorageMetrics) {
		m.PoolMissCounter.Add(context.Background(), 1)
		m.PinnedUpDownCounter.Add(context.Background(), 1)
	})
	return p, nil
}

// UnpinPage drops one pin from the page, ORs in the dirty flag, and hands the
// frame to the replacer once the pin count reaches zero. It reports false if
// the page is not resident or was not pinned.
func (bpm *BufferPoolManager) UnpinPage(pageID page.PageID, isDirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	p := bpm.pages[frameID]
	if p.GetPinCount() == 0 {
		bpm.logger.Warn("unpin of page with zero pin count", zap.Uint64("page_id", uint64(pageID)))
		return false
	}
	p.Unpin()
	if isDirty {
		p.SetDirty(true)
		bpm.appendLog(&wal.LogRecord{Type: wal.LogRecordTypeUpdate, PageID: pageID})
	}
	if p.GetPinCount() == 0 {
		bpm.replacer.SetEvictable(frameID, true)
		bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PinnedUpDownCounter.Add(context.Background(), -1) })
	}
	return true
}

// FlushPage writes the page image to disk regardless of its dirty flag and
// clears the flag. It reports false if the page is not resident. Flushing the
// invalid page id is a programmer error.
func (bpm *BufferPoolManager) FlushPage(pageID page.PageID) bool {
	if pageID == page.InvalidPageID {
		panic("buffer pool: flush of the invalid page id")
	}
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}
	p := bpm.pages[frameID]
	bpm.syncLog()
	if err := bpm.diskManager.WritePage(pageID, p.GetData()); err != nil {
		panic(fmt.Sprintf("buffer pool: failed to flush page %d: %v", pageID, err))
	}
	p.SetDirty(false)
	bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PoolFlushCounter.Add(context.Background(), 1) })
	return true
}

// FlushAllPages writes every resident page image to disk and clears the
// dirty flags.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	bpm.syncLog()
	for _, p := range bpm.pages {
		if p.GetPageID() == page.InvalidPageID {
			continue
		}
		if err := bpm.diskManager.WritePage(p.GetPageID(), p.GetData()); err != nil {
			panic(fmt.Sprintf("buffer pool: failed to flush page %d: %v", p.GetPageID(), err))
		}
		p.SetDirty(false)
		bpm.count(func(m *internaltelemetry.StorageMetrics) { m.PoolFlushCounter.Add(context.Background(), 1) })
	}
}

// DeletePage evicts the page from the pool and deallocates its disk id. It
// reports true if the page was not resident, false if the page is pinned.
func (bpm *BufferPoolManager) DeletePage(pageID page.PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return true
	}
	p := bpm.pages[frameID]
	if p.GetPinCount() > 0 {
		return false
	}
	bpm.replacer.Remove(frameID)
	bpm.pageTable.Remove(pageID)
	bpm.freeList.PushBack(frameID)
	p.Reset()

	bpm.appendLog(&wal.LogRecord{Type: wal.LogRecordTypeFreePage, PageID: pageID})
	if err := bpm.diskManager.DeallocatePage(pageID); err != nil {
		bpm.logger.Error("failed to deallocate page on disk",
			zap.Uint64("page_id", uint64(pageID)), zap.Error(err))
	}
	return true
}

// PoolSize reports the number of frames.
func (bpm *BufferPoolManager) PoolSize() int { return bpm.poolSize }

// PageSize reports the fixed page size in bytes.
func (bpm *BufferPoolManager) PageSize() int { return bpm.diskManager.PageSize() }

// syncLog makes the write-ahead log durable before a page image hits disk.
// Must be called with the pool latched.
func (bpm *BufferPoolManager) syncLog() {
	if bpm.logManager == nil {
		return
	}
	if err := bpm.logManager.Sync(); err != nil {
		panic(fmt.Sprintf("buffer pool: failed to sync log before page write: %v", err))
	}
}

func (bpm *BufferPoolManager) appendLog(record *wal.LogRecord) {
	if bpm.logManager == nil {
		return
	}
	if _, err := bpm.logManager.AppendRecord(record); err != nil {
		bpm.logger.Error("failed to append log record",
			zap.Uint64("page_id", uint64(record.PageID)), zap.Error(err))
	}
}

func (bpm *BufferPoolManager) count(fn func(*internaltelemetry.StorageMetrics)) {
	if bpm.metrics != nil {
		fn(bpm.metrics)
	}
}
