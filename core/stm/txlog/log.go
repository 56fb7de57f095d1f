// Package txlog provides the bounded, append-only logs a transaction uses to
// buffer observed (read) and intended (write) memory values.
package txlog

import (
	"errors"
	"fmt"
)

var ErrFull = errors.New("transaction log is full")

// Item is one buffered word.
type Item struct {
	Addr  uint64
	Value uint64
}

// Log is a fixed-capacity arena of items indexed by slot. The backing array
// is allocated once and reused across transactions.
type Log struct {
	name  string
	items []Item
	n     int
}

// New returns an empty log that can hold capacity items.
func New(name string, capacity int) *Log {
	return &Log{name: name, items: make([]Item, capacity)}
}

// Append stores a new item and returns its slot.
func (l *Log) Append(addr, value uint64) (int, error) {
	if l.n == len(l.items) {
		return -1, fmt.Errorf("%w: %s holds %d items", ErrFull, l.name, l.n)
	}
	slot := l.n
	l.items[slot] = Item{Addr: addr, Value: value}
	l.n++
	return slot, nil
}

// At returns a pointer to the item in slot. The pointer stays valid until
// Reset.
func (l *Log) At(slot int) *Item { return &l.items[slot] }

// Items returns the live items in append order.
func (l *Log) Items() []Item { return l.items[:l.n] }

// Reset drops every item. The arena is kept.
func (l *Log) Reset() { l.n = 0 }

func (l *Log) Len() int      { return l.n }
func (l *Log) Capacity() int { return len(l.items) }
func (l *Log) Name() string  { return l.name }
