package stm

import (
	"github.com/sushant-115/gojostm/core/memory"
	"github.com/sushant-115/gojostm/core/stm/predict"
	"github.com/sushant-115/gojostm/core/stm/translation"
	"github.com/sushant-115/gojostm/core/stm/txlog"
	"go.uber.org/zap"
)

// --- Translation helpers ---

func (th *Thread) lookup(addr uint64) (*translation.Entry, bool) {
	e, created, err := th.table.LookupOrCreate(addr)
	if err != nil {
		th.overflow(StructureTable, th.table.Len(), th.table.Capacity(), addr)
	}
	return e, created
}

func (th *Thread) appendRead(addr, value uint64) int {
	slot, err := th.reads.Append(addr, value)
	if err != nil {
		th.overflow(StructureReadLog, th.reads.Len(), th.reads.Capacity(), addr)
	}
	return slot
}

func (th *Thread) appendWrite(addr, value uint64) int {
	slot, err := th.writes.Append(addr, value)
	if err != nil {
		th.overflow(StructureWriteLog, th.writes.Len(), th.writes.Capacity(), addr)
	}
	return slot
}

// item returns the log item an entry currently redirects to.
func (th *Thread) item(e *translation.Entry) *txlog.Item {
	if e.IsWrite() {
		return th.writes.At(e.Slot())
	}
	return th.reads.At(e.Slot())
}

// writable returns the write item for addr, creating a paired read and write
// item from one probe when the address is new, or promoting a read-only entry.
func (th *Thread) writable(addr uint64) *txlog.Item {
	e, created := th.lookup(addr)
	switch {
	case created:
		v := th.mem.Load(addr)
		e.BindRead(th.appendRead(addr, v))
		e.Promote(th.appendWrite(addr, v))
	case !e.IsWrite():
		v := th.reads.At(e.Slot()).Value
		e.Promote(th.appendWrite(addr, v))
	}
	return th.writes.At(e.Slot())
}

func (th *Thread) word(addr uint64) uint64 {
	w := memory.AlignDown(addr)
	if w == 0 {
		th.fault(addr, ErrNullAccess)
	}
	return w
}

// --- Word accesses ---

// Read returns the word at addr as seen by the transaction. The first read of
// an address loads real memory and logs the value for validation; later reads
// return the buffered value, including values written by this transaction.
// Outside a transaction Read loads real memory directly.
func (th *Thread) Read(addr uint64) uint64 {
	addr = th.word(addr)
	if !th.Active() {
		return th.mem.Load(addr)
	}
	e, created := th.lookup(addr)
	if !created {
		return th.item(e).Value
	}
	v := th.mem.Load(addr)
	e.BindRead(th.appendRead(addr, v))
	return v
}

// Write buffers value for addr. A write to an address that was only read
// promotes its entry: the read item stays in the read log and a new write item
// holds value. Further writes overwrite that item in place.
func (th *Thread) Write(addr, value uint64) {
	addr = th.word(addr)
	if !th.Active() {
		th.mem.Store(addr, value)
		return
	}
	e, created := th.lookup(addr)
	switch {
	case created:
		e.BindWrite(th.appendWrite(addr, value))
	case e.IsWrite():
		th.writes.At(e.Slot()).Value = value
	default:
		e.Promote(th.appendWrite(addr, value))
	}
}

// ReadModifyWrite returns the word at addr and prepares it for a following
// Write. A new address gets a read item and a write item sharing the loaded
// value from a single table probe.
func (th *Thread) ReadModifyWrite(addr uint64) uint64 {
	addr = th.word(addr)
	if !th.Active() {
		return th.mem.Load(addr)
	}
	return th.writable(addr).Value
}

// --- Sub-word accesses ---

// subword splits a size-byte access into its word address, bit shift and
// value mask. Accesses crossing a word boundary fault.
func (th *Thread) subword(addr uint64, size uint64) (uint64, uint, uint64) {
	off := addr & (memory.WordSize - 1)
	if off+size > memory.WordSize {
		th.fault(addr, ErrStraddle)
	}
	return th.word(addr), uint(off * 8), (uint64(1) << (size * 8)) - 1
}

func (th *Thread) readSub(addr, size uint64) uint64 {
	w, shift, mask := th.subword(addr, size)
	return (th.Read(w) >> shift) & mask
}

func (th *Thread) writeSub(addr, size, value uint64) {
	w, shift, mask := th.subword(addr, size)
	if !th.Active() {
		old := th.mem.Load(w)
		th.mem.Store(w, old&^(mask<<shift)|(value&mask)<<shift)
		return
	}
	it := th.writable(w)
	it.Value = it.Value&^(mask<<shift) | (value&mask)<<shift
}

func (th *Thread) Read8(addr uint64) uint8   { return uint8(th.readSub(addr, 1)) }
func (th *Thread) Read16(addr uint64) uint16 { return uint16(th.readSub(addr, 2)) }
func (th *Thread) Read32(addr uint64) uint32 { return uint32(th.readSub(addr, 4)) }

// Write8, Write16 and Write32 merge the value into the containing word. The
// whole word is logged for validation, so a concurrent commit to any byte of
// it is a conflict.
func (th *Thread) Write8(addr uint64, v uint8)   { th.writeSub(addr, 1, uint64(v)) }
func (th *Thread) Write16(addr uint64, v uint16) { th.writeSub(addr, 2, uint64(v)) }
func (th *Thread) Write32(addr uint64, v uint32) { th.writeSub(addr, 4, uint64(v)) }

// --- Value prediction ---

// Predict returns the value of an induction variable for this transaction.
//
// The oldest transaction reads the variable like any other word. A younger
// one computes it from the last committed value and its distance to the
// commit frontier, then logs the result in the ordinary read log so Validate
// confirms it once the transaction becomes the oldest. A wrong prediction is
// therefore an ordinary conflict.
func (th *Thread) Predict(v predict.Variable) uint64 {
	addr := th.word(v.Addr)
	if !th.Active() || !th.engine.cfg.Prediction {
		return th.Read(addr)
	}
	if e, ok := th.table.Lookup(addr); ok {
		return th.item(e).Value
	}

	var live, distance uint64
	for {
		cur := th.seq.Current()
		live = th.mem.Load(addr)
		if th.seq.Current() == cur {
			distance = th.seq.Distance(th.ticket)
			if th.seq.Current() == cur {
				break
			}
		}
	}
	if distance == 0 {
		return th.Read(addr)
	}

	value := v.Advance(live, distance)
	e, _ := th.lookup(addr)
	e.BindRead(th.appendRead(addr, value))
	th.stats.Predictions.Add(1)
	th.metrics.PredictionsCounter.Add(metricCtx, 1, th.attrs)
	if ce := th.logger.Check(zap.DebugLevel, "Predicted induction variable"); ce != nil {
		ce.Write(
			zap.String("variable", v.Name),
			zap.Uint64("ticket", uint64(th.ticket)),
			zap.Uint64("distance", distance),
			zap.Uint64("live", live),
			zap.Uint64("predicted", value),
		)
	}
	return value
}
