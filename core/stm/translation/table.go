package translation

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---

var (
	ErrFull          = errors.New("translation table is full")
	ErrZeroAddress   = errors.New("address 0 is reserved for empty slots")
	ErrBadTransition = errors.New("illegal translation entry transition")
	ErrInvalidBits   = errors.New("translation table width must be between 1 and 30 bits")
)

// MaxBits bounds the table width so slot indices fit an int32.
const MaxBits = 30

// Table maps word addresses to entries. It is owned by exactly one thread and
// performs no synchronization.
//
// The home slot of an address is its low N bits. Collisions are resolved by
// linear probing that wraps at the end of the array. There are no tombstones:
// entries are only ever removed all at once by Clear, which zeroes the slots
// recorded in the flush table.
type Table struct {
	slots []Entry
	mask  uint64
	flush []int32 // Slots created since the last Clear, in creation order
}

// New allocates a table with 1<<bits slots.
func New(bits uint) (*Table, error) {
	if bits == 0 || bits > MaxBits {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBits, bits)
	}
	size := 1 << bits
	return &Table{
		slots: make([]Entry, size),
		mask:  uint64(size - 1),
		flush: make([]int32, 0, size),
	}, nil
}

// LookupOrCreate returns the entry bound to addr. When none exists, an empty
// slot is claimed for addr, recorded in the flush table and returned with
// created set. The caller binds the new entry to a log item.
func (t *Table) LookupOrCreate(addr uint64) (*Entry, bool, error) {
	if addr == 0 {
		return nil, false, ErrZeroAddress
	}
	idx := addr & t.mask
	for probes := 0; probes < len(t.slots); probes++ {
		e := &t.slots[idx]
		switch e.addr {
		case addr:
			return e, false, nil
		case 0:
			e.addr = addr
			t.flush = append(t.flush, int32(idx))
			return e, true, nil
		}
		idx = (idx + 1) & t.mask
	}
	return nil, false, fmt.Errorf("%w: %d entries, address 0x%x", ErrFull, len(t.flush), addr)
}

// Lookup returns the entry bound to addr without creating one.
func (t *Table) Lookup(addr uint64) (*Entry, bool) {
	if addr == 0 {
		return nil, false
	}
	idx := addr & t.mask
	for probes := 0; probes < len(t.slots); probes++ {
		e := &t.slots[idx]
		switch e.addr {
		case addr:
			return e, true
		case 0:
			return nil, false
		}
		idx = (idx + 1) & t.mask
	}
	return nil, false
}

// Clear zeroes every slot touched since the previous Clear. Its cost is
// proportional to the number of touched slots, not to the capacity.
func (t *Table) Clear() {
	for _, idx := range t.flush {
		t.slots[idx].reset()
	}
	t.flush = t.flush[:0]
}

// Len returns the number of live entries, which equals the flush table size.
func (t *Table) Len() int { return len(t.flush) }

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.slots) }

// Touched returns the slot indices recorded in the flush table. The slice is
// only valid until the next mutation.
func (t *Table) Touched() []int32 { return t.flush }
