// Package translation implements the per-thread translation table of the STM
// engine: a fixed-capacity, open-addressed index from a word address to the
// log item that currently represents it inside the running transaction.
package translation

import "fmt"

// Kind is the variant tag of an Entry.
type Kind uint8

const (
	Empty     Kind = iota // Slot is unused; the address field is 0
	ReadOnly              // Address was read; Slot indexes the read log
	ReadWrite             // Address was written; Slot indexes the write log
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is one slot of the table.
//
// An entry moves Empty -> ReadOnly -> ReadWrite or Empty -> ReadWrite inside a
// transaction and never back. Only Table.Clear returns it to Empty.
type Entry struct {
	addr uint64
	kind Kind
	slot int32
}

// Addr returns the original address bound to the entry, or 0 when empty.
func (e *Entry) Addr() uint64 { return e.addr }

// Kind returns the variant tag.
func (e *Entry) Kind() Kind { return e.kind }

// Slot returns the log index the entry redirects to.
func (e *Entry) Slot() int { return int(e.slot) }

// IsWrite reports whether the entry redirects to the write log.
func (e *Entry) IsWrite() bool { return e.kind == ReadWrite }

// The transitions below panic on misuse: the engine checks Kind before
// calling them, so a bad transition is a bug in the caller.

// BindRead turns a freshly created entry into ReadOnly(slot).
func (e *Entry) BindRead(slot int) {
	e.move(Empty, ReadOnly, slot)
}

// BindWrite turns a freshly created entry into ReadWrite(slot).
func (e *Entry) BindWrite(slot int) {
	e.move(Empty, ReadWrite, slot)
}

// Promote moves a ReadOnly entry to ReadWrite(slot). The read item it pointed
// at stays in the read log and is still validated.
func (e *Entry) Promote(slot int) {
	e.move(ReadOnly, ReadWrite, slot)
}

func (e *Entry) move(from, to Kind, slot int) {
	if e.kind != from {
		panic(fmt.Errorf("%w: %s -> %s on %s entry 0x%x", ErrBadTransition, from, to, e.kind, e.addr))
	}
	e.kind = to
	e.slot = int32(slot)
}

func (e *Entry) reset() {
	*e = Entry{}
}
