package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// StorageMetrics holds all the metric instruments for the storage engine:
// buffer pool traffic and B+ tree structural churn.
type StorageMetrics struct {
	PoolHitCounter      metric.Int64Counter
	PoolMissCounter     metric.Int64Counter
	PoolEvictionCounter metric.Int64Counter
	PoolFlushCounter    metric.Int64Counter
	PinnedUpDownCounter metric.Int64UpDownCounter

	TreeSplitCounter  metric.Int64Counter
	TreeMergeCounter  metric.Int64Counter
	TreeBorrowCounter metric.Int64Counter
}

// NewStorageMetrics creates and registers all the metrics for the storage engine.
func NewStorageMetrics(meter metric.Meter) (*StorageMetrics, error) {
	poolHitCounter, err := meter.Int64Counter(
		"kurodb.buffer.pool.hits_total",
		metric.WithDescription("Total number of page fetches served from the pool."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	poolMissCounter, err := meter.Int64Counter(
		"kurodb.buffer.pool.misses_total",
		metric.WithDescription("Total number of page fetches that went to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	poolEvictionCounter, err := meter.Int64Counter(
		"kurodb.buffer.pool.evictions_total",
		metric.WithDescription("Total number of frames reclaimed through the replacer."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	poolFlushCounter, err := meter.Int64Counter(
		"kurodb.buffer.pool.flushes_total",
		metric.WithDescription("Total number of page images written back to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pinnedUpDownCounter, err := meter.Int64UpDownCounter(
		"kurodb.buffer.pool.pinned_pages",
		metric.WithDescription("Number of currently pinned pages."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	treeSplitCounter, err := meter.Int64Counter(
		"kurodb.btree.splits_total",
		metric.WithDescription("Total number of node splits."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	treeMergeCounter, err := meter.Int64Counter(
		"kurodb.btree.merges_total",
		metric.WithDescription("Total number of node merges."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	treeBorrowCounter, err := meter.Int64Counter(
		"kurodb.btree.borrows_total",
		metric.WithDescription("Total number of sibling redistributions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &StorageMetrics{
		PoolHitCounter:      poolHitCounter,
		PoolMissCounter:     poolMissCounter,
		PoolEvictionCounter: poolEvictionCounter,
		PoolFlushCounter:    poolFlushCounter,
		PinnedUpDownCounter: pinnedUpDownCounter,
		TreeSplitCounter:    treeSplitCounter,
		TreeMergeCounter:    treeMergeCounter,
		TreeBorrowCounter:   treeBorrowCounter,
	}, nil
}
