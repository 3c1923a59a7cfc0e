package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

func setupLogManager(t *testing.T) (*LogManager, string) {
	t.Helper()
	tempDir := t.TempDir()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	lm, err := NewLogManager(tempDir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { lm.Close() })
	return lm, tempDir
}

func TestLogManager_AppendAssignsSequentialLSNs(t *testing.T) {
	lm, _ := setupLogManager(t)

	for i := 1; i <= 5; i++ {
		lsn, err := lm.AppendRecord(&LogRecord{
			Type:   LogRecordTypeUpdate,
			PageID: page.PageID(i),
		})
		require.NoError(t, err)
		require.Equal(t, LSN(i), lsn, "LSNs are sequential and 1-based")
	}
	require.Equal(t, LSN(5), lm.CurrentLSN())
}

func TestLogManager_SyncThenDecodeRoundTrip(t *testing.T) {
	lm, dir := setupLogManager(t)

	records := []*LogRecord{
		{Type: LogRecordTypeNewPage, PageID: 2},
		{Type: LogRecordTypeUpdate, PageID: 2, Data: []byte("payload")},
		{Type: LogRecordTypeFreePage, PageID: 2},
		{Type: LogRecordTypeRootChange, PageID: 3},
	}
	for _, r := range records {
		_, err := lm.AppendRecord(r)
		require.NoError(t, err)
	}
	require.NoError(t, lm.Sync())

	raw, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)

	offset := 0
	for i, want := range records {
		got, n, err := DecodeLogRecord(raw[offset:])
		require.NoError(t, err, "record %d", i)
		require.Equal(t, LSN(i+1), got.LSN)
		require.Equal(t, want.Type, got.Type)
		require.Equal(t, want.PageID, got.PageID)
		require.Equal(t, want.Data, got.Data)
		offset += n
	}
	require.Equal(t, len(raw), offset, "no trailing bytes after the last record")
}

func TestLogManager_NothingDurableBeforeSync(t *testing.T) {
	lm, dir := setupLogManager(t)

	_, err := lm.AppendRecord(&LogRecord{Type: LogRecordTypeUpdate, PageID: 1})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	require.Empty(t, raw, "records are buffered until Sync")

	require.NoError(t, lm.Sync())
	raw, err = os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestLogManager_DecodeRejectsCorruption(t *testing.T) {
	lm, dir := setupLogManager(t)

	_, err := lm.AppendRecord(&LogRecord{Type: LogRecordTypeUpdate, PageID: 7, Data: []byte("abc")})
	require.NoError(t, err)
	require.NoError(t, lm.Sync())

	raw, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)

	raw[len(raw)-1] ^= 0xFF
	_, _, err = DecodeLogRecord(raw)
	require.ErrorIs(t, err, ErrCorruptRecord)

	_, _, err = DecodeLogRecord(raw[:4])
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestLogManager_AppendAfterCloseFails(t *testing.T) {
	lm, _ := setupLogManager(t)
	require.NoError(t, lm.Close())
	_, err := lm.AppendRecord(&LogRecord{Type: LogRecordTypeUpdate, PageID: 1})
	require.ErrorIs(t, err, ErrLogClosed)
	require.ErrorIs(t, lm.Sync(), ErrLogClosed)
}
