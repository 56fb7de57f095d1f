package stm

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/stm/sequencer"
	"github.com/sushant-115/gojostm/core/stm/txlog"
	"github.com/sushant-115/gojostm/core/transaction"
)

func sampleRegs() checkpoint.RegisterFile {
	var rf checkpoint.RegisterFile
	for r := checkpoint.Reg(0); r < checkpoint.NumGeneral; r++ {
		rf.Set(r, 0x100+uint64(r))
	}
	rf.Vector[1] = [2]uint64{7, 8}
	rf.Flags = 0x202
	return rf
}

// TestThread_ConflictExample: T reads 0x1000 (5), an older thread commits 7,
// T writes 9 and fails validation. Memory keeps 7 and T's registers return to
// the checkpoint.
func TestThread_ConflictExample(t *testing.T) {
	e, mem, _ := setupEngine(t, testConfig(2))
	const a = 0x1000
	mem.Store(a, 5)

	older, tx := thread(t, e, 0), thread(t, e, 1)
	orig := sampleRegs()
	regs := orig
	require.NoError(t, tx.Begin(1, &regs, 0x401000))
	require.Equal(t, uint64(5), tx.Read(a))
	regs.Set(checkpoint.RAX, 0xdead)

	var oregs checkpoint.RegisterFile
	begin(t, older, 0, &oregs)
	older.Write(a, 7)
	out, err := older.Finish(&oregs)
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, out)

	tx.Write(a, 9)
	require.Equal(t, []txlog.Item{{Addr: a, Value: 9}}, tx.WriteLog())

	require.NoError(t, tx.Wait())
	ok, err := tx.Validate()
	require.NoError(t, err)
	require.False(t, ok)

	pc, err := tx.Rollback(&regs)
	require.NoError(t, err)
	require.Equal(t, uint64(0x401000), pc)
	require.Equal(t, uint64(7), mem.Load(a))
	require.Equal(t, orig, regs)
	require.Equal(t, transaction.TxnStateInactive, tx.State())
	require.Equal(t, 0, tx.Entries())
	require.Empty(t, tx.ReadLog())
	require.Empty(t, tx.WriteLog())
}

// TestThread_RollbackIdempotence runs reads, writes, sub-word and
// read-modify-write accesses, rolls back, and compares memory and registers
// with the pre-transaction state.
func TestThread_RollbackIdempotence(t *testing.T) {
	e, mem, _ := setupEngine(t, testConfig(1))
	th := thread(t, e, 0)
	base := mem.MustAlloc(8)
	for i := 0; i < 8; i++ {
		mem.Store(base+uint64(i)*8, uint64(i*i+1))
	}
	before := mem.Snapshot()

	orig := sampleRegs()
	regs := orig
	require.NoError(t, th.Begin(0, &regs, 0x500))
	th.Read(base)
	th.Write(base+8, 99)
	th.Write(base+16, th.ReadModifyWrite(base+16)+1)
	th.Write8(base+24, 0xee)
	regs.Set(checkpoint.RBX, 1)
	regs.Vector[1] = [2]uint64{}

	pc, err := th.Rollback(&regs)
	require.NoError(t, err)
	require.Equal(t, uint64(0x500), pc)
	require.Equal(t, before, mem.Snapshot())
	require.Equal(t, orig, regs)
	require.Equal(t, 1, th.Retries())
}

// TestThread_ValidationSoundness commits to an address the younger thread
// never touched; the younger thread must validate.
func TestThread_ValidationSoundness(t *testing.T) {
	e, mem, _ := setupEngine(t, testConfig(2))
	base := mem.MustAlloc(2)
	var r0, r1 checkpoint.RegisterFile

	t0, t1 := thread(t, e, 0), thread(t, e, 1)
	begin(t, t1, 1, &r1)
	t1.Read(base)
	t1.Write(base+8, 1)

	begin(t, t0, 0, &r0)
	t0.Write(base+64, 3)
	_, err := t0.Finish(&r0)
	require.NoError(t, err)

	out, err := t1.Finish(&r1)
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, out)
}

// TestThread_WriteOnlyNotValidated has both threads blindly write the same
// word. No read was made, so the younger thread commits and its value wins.
func TestThread_WriteOnlyNotValidated(t *testing.T) {
	e, mem, _ := setupEngine(t, testConfig(2))
	a := mem.MustAlloc(1)
	var r0, r1 checkpoint.RegisterFile

	t0, t1 := thread(t, e, 0), thread(t, e, 1)
	begin(t, t1, 1, &r1)
	t1.Write(a, 22)
	begin(t, t0, 0, &r0)
	t0.Write(a, 11)

	_, err := t0.Finish(&r0)
	require.NoError(t, err)
	out, err := t1.Finish(&r1)
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, out)
	require.Equal(t, uint64(22), mem.Load(a))
}

// runRange executes body as ticket on th until it commits.
func runRange(th *Thread, ticket sequencer.Ticket, body func(th *Thread)) error {
	var regs checkpoint.RegisterFile
	for {
		if err := th.Begin(ticket, &regs, 0); err != nil {
			return err
		}
		body(th)
		out, err := th.Finish(&regs)
		if err != nil {
			return err
		}
		if out == OutcomeCommitted {
			return nil
		}
	}
}

// TestThread_SerialOrder starts three threads youngest first. Each one
// appends the shared counter to its own slot and increments it, so any
// out-of-order commit shows up in the slots.
func TestThread_SerialOrder(t *testing.T) {
	const n = 3
	e, mem, _ := setupEngine(t, testConfig(n))
	counter := mem.MustAlloc(1)
	slots := mem.MustAlloc(n)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := n - 1; i >= 0; i-- {
		th := thread(t, e, i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- runRange(th, sequencer.Ticket(i), func(th *Thread) {
				v := th.ReadModifyWrite(counter)
				th.Write(slots+uint64(i)*8, v)
				th.Write(counter, v+1)
			})
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, uint64(n), mem.Load(counter))
	for i := 0; i < n; i++ {
		require.Equal(t, uint64(i), mem.Load(slots+uint64(i)*8), fmt.Sprintf("slot %d", i))
	}
	require.Equal(t, sequencer.Ticket(n), e.Sequencer().Current())
}

// TestThread_FaultAsOldest rolls back the first fault of the oldest thread and
// delivers the repeated one.
func TestThread_FaultAsOldest(t *testing.T) {
	e, _, _ := setupEngine(t, testConfig(1))
	th := thread(t, e, 0)
	cause := errors.New("bad pointer")

	orig := sampleRegs()
	regs := orig
	require.NoError(t, th.Begin(0, &regs, 0x10))
	regs.Set(checkpoint.RCX, 0)
	out, err := th.Fault(&regs, cause)
	require.NoError(t, err)
	require.Equal(t, OutcomeRolledBack, out)
	require.Equal(t, orig, regs)

	require.NoError(t, th.Begin(0, &regs, 0x10))
	_, err = th.Fault(&regs, cause)
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	require.ErrorIs(t, err, cause)
	require.Equal(t, sequencer.Ticket(0), fe.Ticket)
	require.Equal(t, transaction.TxnStateInactive, th.State())
	require.Equal(t, uint64(2), e.Stats().Faults)
	require.Equal(t, sequencer.Ticket(0), e.Sequencer().Current(), "a delivered fault never commits")
}

// TestThread_SpeculativeFaultRecovers raises a fault in a younger thread. It
// waits for the older commit, rolls back and then succeeds on retry.
func TestThread_SpeculativeFaultRecovers(t *testing.T) {
	e, mem, _ := setupEngine(t, testConfig(2))
	a := mem.MustAlloc(1)
	t0, t1 := thread(t, e, 0), thread(t, e, 1)

	var r1 checkpoint.RegisterFile
	begin(t, t1, 1, &r1)
	done := make(chan error, 1)
	go func() {
		_, err := t1.Fault(&r1, errors.New("stale index"))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("a younger thread must wait before handling its fault")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, runRange(t0, 0, func(th *Thread) { th.Write(a, 1) }))
	require.NoError(t, <-done)
	require.Equal(t, 1, t1.Retries())

	require.NoError(t, runRange(t1, 1, func(th *Thread) { th.Write(a, th.Read(a)+1) }))
	require.Equal(t, uint64(2), mem.Load(a))
}

func TestThread_FinishYielded(t *testing.T) {
	e, _, _ := setupEngine(t, testConfig(2))
	t1 := thread(t, e, 1)

	var regs checkpoint.RegisterFile
	begin(t, t1, 1, &regs)
	done := make(chan error, 1)
	go func() {
		_, err := t1.Finish(&regs)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	e.Sequencer().Yield()

	select {
	case err := <-done:
		require.ErrorIs(t, err, sequencer.ErrYielded)
	case <-time.After(2 * time.Second):
		t.Fatal("finish did not return after yield")
	}
	require.Equal(t, transaction.TxnStateInactive, t1.State())
}

func TestThread_ProtocolMisuse(t *testing.T) {
	e, _, _ := setupEngine(t, testConfig(1))
	th := thread(t, e, 0)
	var regs checkpoint.RegisterFile

	_, err := th.Validate()
	require.ErrorIs(t, err, transaction.ErrInvalidState)
	require.ErrorIs(t, th.Commit(), transaction.ErrInvalidState)
	_, err = th.Rollback(&regs)
	require.ErrorIs(t, err, transaction.ErrInvalidState)

	begin(t, th, 0, &regs)
	require.ErrorIs(t, th.Begin(0, &regs, 0), transaction.ErrInvalidState)
	_, err = th.Validate()
	require.ErrorIs(t, err, transaction.ErrInvalidState, "validate requires wait")

	require.NoError(t, th.Wait())
	require.ErrorIs(t, th.Commit(), transaction.ErrInvalidState, "commit requires validate")
	ok, err := th.Validate()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, th.Commit())
	require.NoError(t, th.Abandon(), "abandon is a no-op when inactive")
}
