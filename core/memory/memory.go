// Package memory models the shared, word-addressed memory the speculative
// threads operate on.
package memory

// WordSize is the access granularity of the engine in bytes.
const WordSize = 8

// CacheLineSize is the alignment of allocations.
const CacheLineSize = 64

// Memory is shared real memory. Load and Store operate on the aligned 8-byte
// word containing addr and must be safe for concurrent use.
type Memory interface {
	Load(addr uint64) uint64
	Store(addr, value uint64)
}

// AlignDown returns the address of the word containing addr.
func AlignDown(addr uint64) uint64 { return addr &^ (WordSize - 1) }
