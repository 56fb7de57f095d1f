package memory

import (
	"sync/atomic"
	"time"
)

// --- Page Management ---

const (
	PageSize     = 4096
	WordsPerPage = PageSize / WordSize
	pageShift    = 12
)

// PageID identifies a page by the address of its first byte shifted right by
// the page size.
type PageID uint64

// Page is a 4 KiB block of words. Individual words are atomic so committing
// threads and reading threads never need a page latch.
type Page struct {
	id        PageID
	words     [WordsPerPage]atomic.Uint64
	updatedAt atomic.Int64 // Unix nanos of the last store
}

// NewPage creates a zeroed page.
func NewPage(id PageID) *Page {
	return &Page{id: id}
}

func pageOf(addr uint64) (PageID, int) {
	return PageID(addr >> pageShift), int(addr&(PageSize-1)) / WordSize
}

func (p *Page) GetPageID() PageID { return p.id }

// Base returns the address of the first word of the page.
func (p *Page) Base() uint64 { return uint64(p.id) << pageShift }

func (p *Page) load(idx int) uint64 { return p.words[idx].Load() }

func (p *Page) store(idx int, v uint64) {
	p.words[idx].Store(v)
	p.updatedAt.Store(time.Now().UnixNano())
}

// GetUpdatedAt returns the time of the last store into the page.
func (p *Page) GetUpdatedAt() time.Time {
	ns := p.updatedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
