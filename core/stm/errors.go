package stm

import (
	"errors"
	"fmt"

	"github.com/sushant-115/gojostm/core/stm/sequencer"
)

// --- Error Definitions ---

var (
	ErrInvalidConfig  = errors.New("invalid stm configuration")
	ErrNilMemory      = errors.New("stm engine requires a memory")
	ErrNotOldest      = errors.New("transaction is not the oldest and cannot validate")
	ErrNotValidated   = errors.New("transaction has not been validated")
	ErrStraddle       = errors.New("access straddles a word boundary")
	ErrNullAccess     = errors.New("access to address 0")
	ErrThreadOutRange = errors.New("thread index out of range")
)

// Structure names used in capacity diagnostics.
const (
	StructureTable    = "translation table"
	StructureReadLog  = "read log"
	StructureWriteLog = "write log"
)

// CapacityError reports that a bounded per-thread structure overflowed. It is
// a configuration error: the capacities must be raised and the loop re-run.
type CapacityError struct {
	Structure string
	Size      int // Entries held when the insert was attempted
	Capacity  int
	Thread    int
	Ticket    sequencer.Ticket
	Addr      uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s overflow on thread %d (ticket %d): %d/%d entries at address 0x%x",
		e.Structure, e.Thread, e.Ticket, e.Size, e.Capacity, e.Addr)
}

// FaultError is raised for a fault inside a transactional region. While the
// transaction is speculative a fault is treated as a symptom of stale data and
// recovered by rollback; only a repeated fault by the oldest transaction
// surfaces as a FaultError to the caller.
type FaultError struct {
	Thread int
	Ticket sequencer.Ticket
	Addr   uint64
	Cause  error
}

func (e *FaultError) Error() string {
	if e.Addr != 0 {
		return fmt.Sprintf("fault on thread %d (ticket %d) at 0x%x: %v", e.Thread, e.Ticket, e.Addr, e.Cause)
	}
	return fmt.Sprintf("fault on thread %d (ticket %d): %v", e.Thread, e.Ticket, e.Cause)
}

func (e *FaultError) Unwrap() error { return e.Cause }
