package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Uint64Hasher hashes a 64-bit key through xxhash so that nearby ids spread
// across directory slots.
func Uint64Hasher(key uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return xxhash.Sum64(buf[:])
}

// StringHasher hashes a string key.
func StringHasher(key string) uint64 {
	return xxhash.Sum64String(key)
}

// IdentityHasher uses the key itself as its hash. Useful in tests where the
// bit pattern of the key must drive the bucket layout directly.
func IdentityHasher(key uint64) uint64 { return key }
