// Package sequencer implements the FIFO ticket that totally orders commits.
//
// Every transaction is stamped with the ticket of the loop iteration range it
// executes. The sequencer holds the ticket of the oldest uncommitted range. A
// transaction may validate and commit only while its ticket is current, and
// committing advances the current ticket by one, which hands the token to the
// next-oldest transaction.
package sequencer

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
)

var (
	ErrYielded    = errors.New("sequencer yielded while waiting")
	ErrOutOfOrder = errors.New("ticket is not the current commit ticket")
	ErrStale      = errors.New("ticket has already committed")
)

// Ticket is a monotonically increasing stamp in original iteration order.
type Ticket uint64

// Sequencer is safe for concurrent use by all worker threads.
type Sequencer struct {
	current atomic.Uint64
	yield   atomic.Bool
}

// New returns a sequencer whose first eligible ticket is start.
func New(start Ticket) *Sequencer {
	s := &Sequencer{}
	s.current.Store(uint64(start))
	return s
}

// Current returns the ticket of the oldest uncommitted transaction.
func (s *Sequencer) Current() Ticket { return Ticket(s.current.Load()) }

// Distance returns how many commits separate t from the commit frontier.
// The count is in tickets, one per transaction, not in loop iterations. A
// ticket that is current, or already behind the frontier, has distance 0.
func (s *Sequencer) Distance(t Ticket) uint64 {
	cur := s.current.Load()
	if uint64(t) <= cur {
		return 0
	}
	return uint64(t) - cur
}

// Oldest reports whether t is the ticket currently allowed to commit.
func (s *Sequencer) Oldest(t Ticket) bool { return s.current.Load() == uint64(t) }

// Wait blocks until t becomes current. It busy-waits and has no timeout; the
// only way out besides admission is Yield.
func (s *Sequencer) Wait(t Ticket) error {
	for {
		cur := s.current.Load()
		if cur == uint64(t) {
			return nil
		}
		if cur > uint64(t) {
			return fmt.Errorf("%w: ticket %d, current %d", ErrStale, t, cur)
		}
		if s.yield.Load() {
			return ErrYielded
		}
		runtime.Gosched()
	}
}

// Advance passes the token from t to t+1. The release store publishes every
// memory write the caller made before the call to the next ticket holder.
func (s *Sequencer) Advance(t Ticket) error {
	if !s.current.CompareAndSwap(uint64(t), uint64(t)+1) {
		return fmt.Errorf("%w: ticket %d, current %d", ErrOutOfOrder, t, s.current.Load())
	}
	return nil
}

// Yield releases every waiter with ErrYielded. It is used when a loop is
// abandoned so no worker stays blocked on a predecessor that will never
// commit.
func (s *Sequencer) Yield() { s.yield.Store(true) }

// Yielded reports whether Yield has been called since the last Reset.
func (s *Sequencer) Yielded() bool { return s.yield.Load() }

// Reset prepares the sequencer for a new loop starting at ticket start.
func (s *Sequencer) Reset(start Ticket) {
	s.current.Store(uint64(start))
	s.yield.Store(false)
}
