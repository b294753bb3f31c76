package book

import (
	"crypto/sha256"
	"encoding/binary"
)

// Digest returns a SHA-256 over the current depth ledger, levels in
// ascending price order, each encoded as price and depth in 8-byte
// little-endian. Identical event streams always produce identical digests.
func (r *Reconstructor) Digest() [32]byte {
	hasher := sha256.New()

	var buf [16]byte
	r.depth.Scan(func(price, depth int64) bool {
		binary.LittleEndian.PutUint64(buf[:8], uint64(price))
		binary.LittleEndian.PutUint64(buf[8:], uint64(depth))
		hasher.Write(buf[:])
		return true
	})

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}
