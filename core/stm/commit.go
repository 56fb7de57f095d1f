package stm

import (
	"errors"
	"fmt"
	"time"

	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/transaction"
	"go.uber.org/zap"
)

// --- Commit protocol ---

// Wait ends the speculative region and blocks until this thread holds the
// oldest uncommitted ticket. It busy-waits without a timeout; the only early
// exit is a yield of the sequencer, reported as sequencer.ErrYielded.
func (th *Thread) Wait() error {
	if err := th.txn.Transition(transaction.TxnStateWait); err != nil {
		return err
	}
	return th.waitTurn()
}

func (th *Thread) waitTurn() error {
	start := time.Now()
	err := th.seq.Wait(th.ticket)
	th.metrics.WaitLatencyHistogram.Record(metricCtx, time.Since(start).Microseconds(), th.attrs)
	if err != nil {
		return fmt.Errorf("thread %d waiting with ticket %d: %w", th.id, th.ticket, err)
	}
	return nil
}

// Validate compares every read log item against a fresh load of real memory
// and reports whether all of them still hold. Write-only addresses are not
// checked. It must be called by the oldest thread after Wait.
func (th *Thread) Validate() (bool, error) {
	if err := th.txn.Expect("validate", transaction.TxnStateWait); err != nil {
		return false, err
	}
	if !th.seq.Oldest(th.ticket) {
		return false, fmt.Errorf("%w: ticket %d, current %d", ErrNotOldest, th.ticket, th.seq.Current())
	}
	if err := th.txn.Transition(transaction.TxnStateValidating); err != nil {
		return false, err
	}
	for _, it := range th.reads.Items() {
		if live := th.mem.Load(it.Addr); live != it.Value {
			th.stats.Conflicts.Add(1)
			th.metrics.ConflictsCounter.Add(metricCtx, 1, th.attrs)
			if ce := th.logger.Check(zap.DebugLevel, "Validation failed"); ce != nil {
				ce.Write(
					zap.Uint64("ticket", uint64(th.ticket)),
					zap.String("addr", fmt.Sprintf("0x%x", it.Addr)),
					zap.Uint64("buffered", it.Value),
					zap.Uint64("live", live),
				)
			}
			return false, nil
		}
	}
	th.validated = true
	return true, nil
}

// Commit applies the write log to real memory in log order, clears the
// transaction and passes the commit token to the next ticket. The stores
// complete before the token moves, so the next committer observes them.
func (th *Thread) Commit() error {
	if err := th.txn.Expect("commit", transaction.TxnStateValidating); err != nil {
		return err
	}
	if !th.validated {
		return fmt.Errorf("%w: ticket %d", ErrNotValidated, th.ticket)
	}
	if err := th.txn.Transition(transaction.TxnStateCommitting); err != nil {
		return err
	}
	for _, it := range th.writes.Items() {
		th.mem.Store(it.Addr, it.Value)
	}

	th.stats.ReadEntries.Add(uint64(th.reads.Len()))
	th.stats.WriteEntries.Add(uint64(th.writes.Len()))
	th.end()
	th.cp.Discard()
	th.validated = false
	if err := th.txn.Transition(transaction.TxnStateInactive); err != nil {
		return err
	}
	th.stats.Commits.Add(1)
	th.metrics.CommitsCounter.Add(metricCtx, 1, th.attrs)
	return th.seq.Advance(th.ticket)
}

// Rollback discards the transaction, restores every register of the
// checkpoint into regs and returns the PC the region restarts at. Real memory
// is never touched. The caller re-executes the region by calling Begin with
// the same ticket and the restored registers.
func (th *Thread) Rollback(regs *checkpoint.RegisterFile) (uint64, error) {
	if err := th.txn.Transition(transaction.TxnStateRollingBack); err != nil {
		return 0, err
	}
	if th.seq.Oldest(th.ticket) {
		th.txn.RolledBackAsOldest = true
	}
	reads, writes := th.reads.Len(), th.writes.Len()
	th.end()
	th.validated = false

	pc, err := th.cp.Restore(regs)
	if err != nil {
		return 0, err
	}
	th.txn.Retries++
	if err := th.txn.Transition(transaction.TxnStateInactive); err != nil {
		return 0, err
	}
	th.retrying = true
	th.stats.Rollbacks.Add(1)
	th.metrics.RollbacksCounter.Add(metricCtx, 1, th.attrs)

	if th.engine.allowRollbackLog() {
		th.logger.Warn("Transaction rolled back",
			zap.Uint64("ticket", uint64(th.ticket)),
			zap.Int("retries", th.txn.Retries),
			zap.Int("readSet", reads),
			zap.Int("writeSet", writes),
			zap.Uint64("resumePC", pc),
		)
	}
	return pc, nil
}

// Abandon drops the transaction without restoring registers or retrying. It
// is used when the loop is given up, for example after a yield.
func (th *Thread) Abandon() error {
	if th.txn.State == transaction.TxnStateInactive {
		return nil
	}
	if err := th.txn.Transition(transaction.TxnStateRollingBack); err != nil {
		return err
	}
	th.end()
	th.cp.Discard()
	th.validated = false
	th.retrying = false
	return th.txn.Transition(transaction.TxnStateInactive)
}

// Finish runs the end of the region: Wait, then Validate, then Commit on
// success or Rollback into regs on a conflict.
func (th *Thread) Finish(regs *checkpoint.RegisterFile) (Outcome, error) {
	if err := th.Wait(); err != nil {
		if abandonErr := th.Abandon(); abandonErr != nil {
			return OutcomeRolledBack, abandonErr
		}
		return OutcomeRolledBack, err
	}
	ok, err := th.Validate()
	if err != nil {
		return OutcomeRolledBack, err
	}
	if ok {
		return OutcomeCommitted, th.Commit()
	}
	if _, err := th.Rollback(regs); err != nil {
		return OutcomeRolledBack, err
	}
	return OutcomeRolledBack, nil
}

// Fault handles a fault raised inside the region, such as a bad address
// computed from stale data. The thread first waits until it is the oldest,
// since a fault seen by a speculative transaction may disappear once its
// inputs are committed, and then rolls back into regs. A fault repeated after
// the range was already rolled back as the oldest is genuine and is returned
// as a *FaultError.
func (th *Thread) Fault(regs *checkpoint.RegisterFile, cause error) (Outcome, error) {
	if err := th.txn.Expect("fault", transaction.TxnStateActive); err != nil {
		return OutcomeRolledBack, err
	}
	th.stats.Faults.Add(1)
	th.metrics.FaultsCounter.Add(metricCtx, 1, th.attrs)

	if err := th.Wait(); err != nil {
		if abandonErr := th.Abandon(); abandonErr != nil {
			return OutcomeRolledBack, abandonErr
		}
		return OutcomeRolledBack, err
	}
	if th.txn.RolledBackAsOldest {
		th.logger.Error("Fault repeated by the oldest transaction",
			zap.Uint64("ticket", uint64(th.ticket)),
			zap.Int("retries", th.txn.Retries),
			zap.Error(cause),
		)
		if err := th.Abandon(); err != nil {
			return OutcomeRolledBack, err
		}
		var fe *FaultError
		if errors.As(cause, &fe) {
			return OutcomeRolledBack, fe
		}
		return OutcomeRolledBack, &FaultError{Thread: th.id, Ticket: th.ticket, Cause: cause}
	}
	if _, err := th.Rollback(regs); err != nil {
		return OutcomeRolledBack, err
	}
	return OutcomeRolledBack, nil
}
