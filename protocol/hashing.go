package protocol

import (
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

var keccakPool = sync.Pool{
	New: func() any {
		return sha3.NewLegacyKeccak256()
	},
}

// Keccak256 hashes the concatenation of parts with legacy Keccak-256, the
// digest used by EVM chains.
func Keccak256(parts ...[]byte) Bytes32 {
	h, ok := keccakPool.Get().(hash.Hash)
	if !ok {
		panic("keccak pool returned a non-hash value")
	}
	defer keccakPool.Put(h)

	h.Reset()
	for _, p := range parts {
		h.Write(p) // nolint:revive // hash writes never fail
	}
	var out Bytes32
	h.Sum(out[:0])
	return out
}
