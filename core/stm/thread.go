package stm

import (
	"context"
	"fmt"

	"github.com/sushant-115/gojostm/core/memory"
	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/stm/sequencer"
	"github.com/sushant-115/gojostm/core/stm/translation"
	"github.com/sushant-115/gojostm/core/stm/txlog"
	"github.com/sushant-115/gojostm/core/transaction"
	commonutils "github.com/sushant-115/gojostm/internal/common_utils"
	internaltelemetry "github.com/sushant-115/gojostm/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Outcome is the result of finishing a transaction.
type Outcome int

const (
	OutcomeCommitted  Outcome = iota // Writes published, token handed on
	OutcomeRolledBack                // Buffers discarded, registers restored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeRolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var metricCtx = context.Background()

// Thread is the transactional context of one worker. Only the goroutine that
// owns it may call its methods, except for Stats which is safe anywhere.
type Thread struct {
	id     int
	engine *Engine
	mem    memory.Memory
	seq    *sequencer.Sequencer

	table  *translation.Table
	reads  *txlog.Log
	writes *txlog.Log
	cp     checkpoint.Checkpoint
	txn    transaction.Transaction
	ticket sequencer.Ticket

	retrying  bool // Last transaction rolled back and may be resumed with the same ticket
	validated bool

	logger  *zap.Logger
	metrics *internaltelemetry.STMMetrics
	attrs   metric.MeasurementOption
	stats   Stats
}

func newThread(e *Engine, id int) (*Thread, error) {
	table, err := translation.New(e.cfg.HashBits)
	if err != nil {
		return nil, fmt.Errorf("thread %d: %w", id, err)
	}
	return &Thread{
		id:      id,
		engine:  e,
		mem:     e.mem,
		seq:     e.seq,
		table:   table,
		reads:   txlog.New(StructureReadLog, e.cfg.ReadLimit()),
		writes:  txlog.New(StructureWriteLog, e.cfg.WriteLimit()),
		logger:  e.logger.With(zap.Int("thread", id)),
		metrics: e.metrics,
		attrs:   metric.WithAttributes(attribute.Int("thread", id)),
	}, nil
}

// Begin starts a transaction for the iteration range stamped with ticket. The
// registers and the resume PC are checkpointed; a later rollback restores them
// verbatim. Calling Begin again with the same ticket after a rollback resumes
// the retry bookkeeping of that range.
func (th *Thread) Begin(ticket sequencer.Ticket, regs *checkpoint.RegisterFile, pc uint64) error {
	if err := th.txn.Expect("begin", transaction.TxnStateInactive); err != nil {
		return err
	}
	if !th.retrying || ticket != th.ticket {
		th.txn.Reset(uint64(ticket))
	}
	th.retrying = false
	th.validated = false
	th.ticket = ticket
	th.cp.Save(regs, pc)
	if err := th.txn.Transition(transaction.TxnStateActive); err != nil {
		return err
	}
	th.stats.Transactions.Add(1)
	th.metrics.ActiveTxnsUpDownCounter.Add(metricCtx, 1, th.attrs)
	return nil
}

// clear empties the translation table through its flush table and drops both
// logs.
func (th *Thread) clear() {
	th.table.Clear()
	th.reads.Reset()
	th.writes.Reset()
}

func (th *Thread) reset() {
	th.clear()
	th.cp.Discard()
	th.txn.Reset(0)
	th.ticket = 0
	th.retrying = false
	th.validated = false
}

// end leaves the transaction and records its footprint.
func (th *Thread) end() {
	th.metrics.ReadSetHistogram.Record(metricCtx, int64(th.reads.Len()), th.attrs)
	th.metrics.WriteSetHistogram.Record(metricCtx, int64(th.writes.Len()), th.attrs)
	th.metrics.ActiveTxnsUpDownCounter.Add(metricCtx, -1, th.attrs)
	th.clear()
}

// overflow reports a capacity overflow and terminates the process through the
// logger's fatal path. When the logger is configured with a fatal hook that
// does not exit, the goroutine unwinds with the *CapacityError instead.
func (th *Thread) overflow(structure string, size, capacity int, addr uint64) {
	err := &CapacityError{
		Structure: structure,
		Size:      size,
		Capacity:  capacity,
		Thread:    th.id,
		Ticket:    th.ticket,
		Addr:      addr,
	}
	defer func() {
		// A hook that exits or calls runtime.Goexit leaves nothing to recover.
		if r := recover(); r != nil {
			panic(err)
		}
	}()
	th.logger.Fatal("STM capacity exhausted, raise the configured capacity and rerun",
		zap.String("structure", structure),
		zap.Int("size", size),
		zap.Int("capacity", capacity),
		zap.Uint64("ticket", uint64(th.ticket)),
		zap.String("addr", fmt.Sprintf("0x%x", addr)),
		zap.Int64("goroutine", commonutils.GoID()),
		zap.String("callSite", commonutils.Caller(4)),
	)
}

// fault aborts the current access as a fault on addr.
func (th *Thread) fault(addr uint64, cause error) {
	panic(&FaultError{Thread: th.id, Ticket: th.ticket, Addr: addr, Cause: cause})
}

// --- Accessors ---

func (th *Thread) ID() int                             { return th.id }
func (th *Thread) Ticket() sequencer.Ticket            { return th.ticket }
func (th *Thread) State() transaction.TransactionState { return th.txn.State }
func (th *Thread) Retries() int                        { return th.txn.Retries }
func (th *Thread) ResumePC() uint64                    { return th.cp.PC() }
func (th *Thread) Stats() StatsSnapshot                { return th.stats.Snapshot() }

// Active reports whether accesses are currently buffered.
func (th *Thread) Active() bool { return th.txn.State == transaction.TxnStateActive }

// Distance returns how many commits separate this thread from the frontier.
func (th *Thread) Distance() uint64 { return th.seq.Distance(th.ticket) }

// Oldest reports whether this thread holds the commit token.
func (th *Thread) Oldest() bool { return th.seq.Oldest(th.ticket) }

// Lookup reports how addr is currently represented in the transaction.
func (th *Thread) Lookup(addr uint64) (translation.Kind, bool) {
	e, ok := th.table.Lookup(memory.AlignDown(addr))
	if !ok {
		return translation.Empty, false
	}
	return e.Kind(), true
}

// ReadLog returns the live read log. The slice is only valid until the next
// access.
func (th *Thread) ReadLog() []txlog.Item { return th.reads.Items() }

// WriteLog returns the live write log. The slice is only valid until the next
// access.
func (th *Thread) WriteLog() []txlog.Item { return th.writes.Items() }

// Entries returns the number of translation entries, which equals the flush
// table size.
func (th *Thread) Entries() int { return th.table.Len() }
