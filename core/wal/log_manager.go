// Package wal implements the engine's write-ahead log: an append-only record
// stream the buffer pool syncs before writing back dirty pages. The engine
// does not replay the log; there is no recovery.
package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// LSN is a log sequence number. A LogManager assigns them in increasing
// order starting at 1; the count restarts at 1 each time the log file is
// opened, while new records are appended after the existing ones.
type LSN uint64

// InvalidLSN marks the absence of a log record.
const InvalidLSN LSN = 0

// LogRecordType defines the type of operation logged.
type LogRecordType byte

const (
	// LogRecordTypeUpdate records a page image change.
	LogRecordTypeUpdate LogRecordType = iota + 1
	// LogRecordTypeNewPage records the allocation of a page.
	LogRecordTypeNewPage
	// LogRecordTypeFreePage records the deallocation of a page.
	LogRecordTypeFreePage
	// LogRecordTypeRootChange records an index root page id change.
	LogRecordTypeRootChange
)

// LogRecord represents a single entry in the write-ahead log.
type LogRecord struct {
	LSN    LSN
	Type   LogRecordType
	PageID page.PageID
	Data   []byte
}

var (
	// ErrLogClosed is returned when appending to a closed log.
	ErrLogClosed = errors.New("log manager is closed")
	// ErrCorruptRecord is returned when a record fails its checksum.
	ErrCorruptRecord = errors.New("log record checksum mismatch")
)

const logFileName = "kurodb.wal"

// recordHeaderSize: payload length (4) + crc (4) + lsn (8) + type (1) + page id (8).
const recordHeaderSize = 4 + 4 + 8 + 1 + 8

// LogManager appends log records to a single segment file. Records are
// buffered in memory and become durable on Sync.
type LogManager struct {
	logDir  string
	logFile *os.File
	logger  *zap.Logger

	mu         sync.Mutex
	currentLSN LSN
	buffer     bytes.Buffer
	closed     bool
}

// NewLogManager opens (or creates) the log segment under logDir.
func NewLogManager(logDir string, logger *zap.Logger) (*LogManager, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}
	path := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	lm := &LogManager{
		logDir:  logDir,
		logFile: file,
		logger:  logger,
	}
	lm.logger.Info("opened write-ahead log", zap.String("path", path))
	return lm, nil
}

// AppendRecord assigns the next LSN to the record, encodes it into the
// in-memory buffer, and returns the assigned LSN. The record is not durable
// until Sync returns.
func (lm *LogManager) AppendRecord(record *LogRecord) (LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return InvalidLSN, ErrLogClosed
	}
	lm.currentLSN++
	record.LSN = lm.currentLSN

	encoded := encodeRecord(record)
	if _, err := lm.buffer.Write(encoded); err != nil {
		return InvalidLSN, fmt.Errorf("failed to buffer log record: %w", err)
	}
	return record.LSN, nil
}

// Sync flushes the buffered records to the segment file and fsyncs it.
func (lm *LogManager) Sync() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return ErrLogClosed
	}
	if lm.buffer.Len() > 0 {
		if _, err := lm.logFile.Write(lm.buffer.Bytes()); err != nil {
			return fmt.Errorf("failed to write log buffer: %w", err)
		}
		lm.buffer.Reset()
	}
	if err := lm.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return nil
}

// CurrentLSN reports the most recently assigned LSN.
func (lm *LogManager) CurrentLSN() LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.currentLSN
}

// Close flushes pending records and closes the segment file.
func (lm *LogManager) Close() error {
	if err := lm.Sync(); err != nil && !errors.Is(err, ErrLogClosed) {
		return err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return nil
	}
	lm.closed = true
	return lm.logFile.Close()
}

func encodeRecord(record *LogRecord) []byte {
	buf := make([]byte, recordHeaderSize+len(record.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(record.Data)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(record.LSN))
	buf[16] = byte(record.Type)
	binary.LittleEndian.PutUint64(buf[17:25], uint64(record.PageID))
	copy(buf[recordHeaderSize:], record.Data)

	// Checksum covers everything after the crc field: lsn, type, page id and
	// payload. The length prefix is not covered.
	crc := crc32.ChecksumIEEE(buf[8:])
	binary.LittleEndian.PutUint32(buf[4:8], crc)
	return buf
}

// DecodeLogRecord decodes a single record from buf and returns it along with
// the number of bytes consumed.
func DecodeLogRecord(buf []byte) (*LogRecord, int, error) {
	if len(buf) < recordHeaderSize {
		return nil, 0, fmt.Errorf("%w: truncated header", ErrCorruptRecord)
	}
	dataLen := int(binary.LittleEndian.Uint32(buf[0:4]))
	total := recordHeaderSize + dataLen
	if len(buf) < total {
		return nil, 0, fmt.Errorf("%w: truncated payload", ErrCorruptRecord)
	}
	crc := binary.LittleEndian.Uint32(buf[4:8])
	if crc32.ChecksumIEEE(buf[8:total]) != crc {
		return nil, 0, ErrCorruptRecord
	}
	record := &LogRecord{
		LSN:    LSN(binary.LittleEndian.Uint64(buf[8:16])),
		Type:   LogRecordType(buf[16]),
		PageID: page.PageID(binary.LittleEndian.Uint64(buf[17:25])),
	}
	if dataLen > 0 {
		record.Data = make([]byte, dataLen)
		copy(record.Data, buf[recordHeaderSize:total])
	}
	return record, total, nil
}
