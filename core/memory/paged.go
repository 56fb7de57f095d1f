package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var ErrOutOfMemory = errors.New("address space exhausted")

// HeapBase is the first address handed out by Alloc. Everything below it stays
// unmapped so that small integers are never valid pointers.
const HeapBase uint64 = 0x10000

// Paged is a sparse memory made of lazily created pages. Reads of pages that
// were never written return zero without allocating.
type Paged struct {
	mu    sync.RWMutex
	pages map[PageID]*Page
	next  atomic.Uint64 // Bump pointer for Alloc
}

// NewPaged returns an empty memory.
func NewPaged() *Paged {
	m := &Paged{pages: make(map[PageID]*Page)}
	m.next.Store(HeapBase)
	return m
}

func (m *Paged) page(id PageID) *Page {
	m.mu.RLock()
	p := m.pages[id]
	m.mu.RUnlock()
	return p
}

func (m *Paged) pageForStore(id PageID) *Page {
	if p := m.page(id); p != nil {
		return p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	if !ok {
		p = NewPage(id)
		m.pages[id] = p
	}
	return p
}

// Load returns the word containing addr.
func (m *Paged) Load(addr uint64) uint64 {
	id, idx := pageOf(addr)
	p := m.page(id)
	if p == nil {
		return 0
	}
	return p.load(idx)
}

// Store writes the word containing addr.
func (m *Paged) Store(addr, value uint64) {
	id, idx := pageOf(addr)
	m.pageForStore(id).store(idx, value)
}

// Alloc reserves words consecutive words aligned to a cache line and returns
// the address of the first one. Allocated memory reads as zero.
func (m *Paged) Alloc(words int) (uint64, error) {
	if words <= 0 {
		return 0, fmt.Errorf("invalid allocation of %d words", words)
	}
	size := (uint64(words)*WordSize + CacheLineSize - 1) &^ (CacheLineSize - 1)
	for {
		cur := m.next.Load()
		end := cur + size
		if end < cur {
			return 0, fmt.Errorf("%w: %d words", ErrOutOfMemory, words)
		}
		if m.next.CompareAndSwap(cur, end) {
			return cur, nil
		}
	}
}

// MustAlloc is Alloc for fixed-size setup code.
func (m *Paged) MustAlloc(words int) uint64 {
	addr, err := m.Alloc(words)
	if err != nil {
		panic(err)
	}
	return addr
}

// Pages returns the number of materialized pages.
func (m *Paged) Pages() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// Snapshot returns every non-zero word keyed by address.
func (m *Paged) Snapshot() map[uint64]uint64 {
	m.mu.RLock()
	pages := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	m.mu.RUnlock()

	out := make(map[uint64]uint64)
	for _, p := range pages {
		for i := 0; i < WordsPerPage; i++ {
			if v := p.load(i); v != 0 {
				out[p.Base()+uint64(i)*WordSize] = v
			}
		}
	}
	return out
}

// Dump returns Snapshot as address-sorted pairs, for diagnostics.
func (m *Paged) Dump() [][2]uint64 {
	snap := m.Snapshot()
	out := make([][2]uint64, 0, len(snap))
	for a, v := range snap {
		out = append(out, [2]uint64{a, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Fill stores values into consecutive words starting at base.
func Fill(m Memory, base uint64, values []uint64) {
	for i, v := range values {
		m.Store(base+uint64(i)*WordSize, v)
	}
}

// Read loads n consecutive words starting at base.
func Read(m Memory, base uint64, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = m.Load(base + uint64(i)*WordSize)
	}
	return out
}
