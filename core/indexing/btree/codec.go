package btree

import (
	"cmp"
	"encoding/binary"
	"fmt"

	"github.com/WhatTheGQlee/kurodb/core/storage/page"
)

// Order compares two keys: negative when a < b, zero when equal, positive
// when a > b.
type Order[K any] func(a, b K) int

// DefaultOrder builds an Order for any naturally ordered key type.
func DefaultOrder[K cmp.Ordered]() Order[K] {
	return func(a, b K) int { return cmp.Compare(a, b) }
}

// KeyCodec encodes keys into the fixed-width slots of a tree page.
type KeyCodec[K any] struct {
	Size   int
	Encode func(K, []byte)
	Decode func([]byte) K
}

// ValueCodec encodes values into the fixed-width slots of a leaf page.
type ValueCodec[V any] struct {
	Size   int
	Encode func(V, []byte)
	Decode func([]byte) V
}

// Int64KeyCodec encodes int64 keys in 8 bytes.
func Int64KeyCodec() KeyCodec[int64] {
	return KeyCodec[int64]{
		Size:   8,
		Encode: func(k int64, buf []byte) { binary.LittleEndian.PutUint64(buf, uint64(k)) },
		Decode: func(buf []byte) int64 { return int64(binary.LittleEndian.Uint64(buf)) },
	}
}

// Uint64KeyCodec encodes uint64 keys in 8 bytes.
func Uint64KeyCodec() KeyCodec[uint64] {
	return KeyCodec[uint64]{
		Size:   8,
		Encode: func(k uint64, buf []byte) { binary.LittleEndian.PutUint64(buf, k) },
		Decode: func(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf) },
	}
}

// GenericKeyWidths are the supported fixed key widths for byte-string keys.
var GenericKeyWidths = []int{4, 8, 16, 32, 64}

// GenericKeyCodec encodes opaque byte-string keys at one of the supported
// fixed widths. Shorter keys are zero-padded; longer keys are truncated to
// the slot width at encode time, without an error.
func GenericKeyCodec(width int) (KeyCodec[[]byte], error) {
	supported := false
	for _, w := range GenericKeyWidths {
		if w == width {
			supported = true
			break
		}
	}
	if !supported {
		return KeyCodec[[]byte]{}, fmt.Errorf("unsupported generic key width %d (supported: %v)", width, GenericKeyWidths)
	}
	return KeyCodec[[]byte]{
		Size: width,
		Encode: func(k []byte, buf []byte) {
			n := copy(buf[:width], k)
			for i := n; i < width; i++ {
				buf[i] = 0
			}
		},
		Decode: func(buf []byte) []byte {
			out := make([]byte, width)
			copy(out, buf[:width])
			return out
		},
	}, nil
}

// RID is a record identifier: the page a record lives on and its slot there.
// It is the value payload of table indexes.
type RID struct {
	PageID  page.PageID
	SlotNum uint32
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotNum)
}

// RIDValueCodec encodes RIDs in 12 bytes.
func RIDValueCodec() ValueCodec[RID] {
	return ValueCodec[RID]{
		Size: 12,
		Encode: func(v RID, buf []byte) {
			binary.LittleEndian.PutUint64(buf[0:8], uint64(v.PageID))
			binary.LittleEndian.PutUint32(buf[8:12], v.SlotNum)
		},
		Decode: func(buf []byte) RID {
			return RID{
				PageID:  page.PageID(binary.LittleEndian.Uint64(buf[0:8])),
				SlotNum: binary.LittleEndian.Uint32(buf[8:12]),
			}
		},
	}
}

// Uint64ValueCodec encodes uint64 values in 8 bytes.
func Uint64ValueCodec() ValueCodec[uint64] {
	return ValueCodec[uint64]{
		Size:   8,
		Encode: func(v uint64, buf []byte) { binary.LittleEndian.PutUint64(buf, v) },
		Decode: func(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf) },
	}
}
