package transaction

import (
	"errors"
	"fmt"
)

var ErrInvalidState = errors.New("transaction is in an invalid state for this operation")

// TransactionState represents where a thread's speculative transaction is in
// the commit protocol.
type TransactionState int

const (
	TxnStateInactive    TransactionState = iota // No transaction; accesses go straight to memory
	TxnStateActive                              // Checkpoint saved, accesses are buffered
	TxnStateWait                                // Region finished, waiting to become the oldest
	TxnStateValidating                          // Oldest; comparing the read log against memory
	TxnStateCommitting                          // Validated; applying the write log
	TxnStateRollingBack                         // Discarding buffers and restoring the checkpoint
)

var stateNames = map[TransactionState]string{
	TxnStateInactive:    "INACTIVE",
	TxnStateActive:      "ACTIVE",
	TxnStateWait:        "WAIT",
	TxnStateValidating:  "VALIDATING",
	TxnStateCommitting:  "COMMITTING",
	TxnStateRollingBack: "ROLLING_BACK",
}

func (s TransactionState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// transitions lists the legal successor states. Active and Wait may roll back
// directly when a fault is detected inside the region.
var transitions = map[TransactionState][]TransactionState{
	TxnStateInactive:    {TxnStateActive},
	TxnStateActive:      {TxnStateWait, TxnStateRollingBack},
	TxnStateWait:        {TxnStateValidating, TxnStateRollingBack},
	TxnStateValidating:  {TxnStateCommitting, TxnStateRollingBack},
	TxnStateCommitting:  {TxnStateInactive},
	TxnStateRollingBack: {TxnStateInactive},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to TransactionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transaction is the bookkeeping record of one speculative execution of an
// iteration range.
type Transaction struct {
	ID      uint64 // Ticket of the iteration range
	State   TransactionState
	Retries int // Rollbacks suffered by this range so far
	// RolledBackAsOldest is set once the range has been rolled back while it
	// held the commit token. A fault raised after that is not speculative.
	RolledBackAsOldest bool
}

// Transition moves the transaction to next or returns ErrInvalidState.
func (t *Transaction) Transition(next TransactionState) error {
	if !CanTransition(t.State, next) {
		return fmt.Errorf("%w: %s -> %s (txn %d)", ErrInvalidState, t.State, next, t.ID)
	}
	t.State = next
	return nil
}

// Expect returns ErrInvalidState unless the transaction is in one of states.
func (t *Transaction) Expect(op string, states ...TransactionState) error {
	for _, s := range states {
		if t.State == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s (txn %d)", ErrInvalidState, op, t.State, t.ID)
}

// Reset starts a new range with ticket id.
func (t *Transaction) Reset(id uint64) {
	*t = Transaction{ID: id}
}
