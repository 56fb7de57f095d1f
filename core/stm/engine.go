// Package stm implements the speculative transactional memory engine used to
// run loop iterations in parallel while preserving their sequential meaning.
//
// Each worker thread owns one Thread. Between Begin and Finish every memory
// access of the loop body goes through the Thread, which buffers reads and
// writes in private logs indexed by a translation table. Finish waits until
// the thread holds the oldest uncommitted ticket, validates the read log
// against real memory and either publishes the write log or rolls back to the
// checkpoint taken by Begin.
package stm

import (
	"fmt"
	"time"

	"github.com/sushant-115/gojostm/core/memory"
	"github.com/sushant-115/gojostm/core/stm/sequencer"
	internaltelemetry "github.com/sushant-115/gojostm/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Engine owns the per-thread transactions and the commit sequencer shared by
// them. The engine never starts goroutines; callers drive each Thread from
// their own worker.
type Engine struct {
	cfg      Config
	mem      memory.Memory
	seq      *sequencer.Sequencer
	threads  []*Thread
	logger   *zap.Logger
	metrics  *internaltelemetry.STMMetrics
	rollback *rate.Limiter
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger *zap.Logger
	meter  metric.Meter
}

// WithLogger sets the logger. Capacity overflows are reported through its
// Fatal level.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithMeter sets the meter the engine instruments are created from.
func WithMeter(m metric.Meter) Option {
	return func(o *engineOptions) { o.meter = m }
}

// NewEngine validates cfg and allocates every thread's table, logs and
// checkpoint up front.
func NewEngine(cfg Config, mem memory.Memory, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, ErrNilMemory
	}
	o := engineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	metrics, err := internaltelemetry.NewSTMMetrics(o.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create stm metrics: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		mem:     mem,
		seq:     sequencer.New(0),
		threads: make([]*Thread, cfg.Threads),
		logger:  o.logger.Named("stm"),
		metrics: metrics,
	}
	if cfg.RollbackLogRate > 0 {
		e.rollback = rate.NewLimiter(rate.Limit(cfg.RollbackLogRate), 1)
	}
	for i := range e.threads {
		th, err := newThread(e, i)
		if err != nil {
			return nil, err
		}
		e.threads[i] = th
	}

	e.logger.Info("STM engine initialized",
		zap.Int("threads", cfg.Threads),
		zap.Int("tableSize", cfg.TableSize()),
		zap.Int("readCapacity", cfg.ReadLimit()),
		zap.Int("writeCapacity", cfg.WriteLimit()),
		zap.Bool("prediction", cfg.Prediction),
	)
	return e, nil
}

// Thread returns the transaction owned by worker i.
func (e *Engine) Thread(i int) (*Thread, error) {
	if i < 0 || i >= len(e.threads) {
		return nil, fmt.Errorf("%w: %d of %d", ErrThreadOutRange, i, len(e.threads))
	}
	return e.threads[i], nil
}

// Threads returns the number of worker threads.
func (e *Engine) Threads() int { return len(e.threads) }

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config { return e.cfg }

// Memory returns the real memory transactions commit to.
func (e *Engine) Memory() memory.Memory { return e.mem }

// Sequencer returns the commit order shared by every thread.
func (e *Engine) Sequencer() *sequencer.Sequencer { return e.seq }

// Logger returns the engine's named logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Reset prepares the engine for a new loop whose first ticket is start. It
// must not be called while any thread is inside a transaction.
func (e *Engine) Reset(start sequencer.Ticket) {
	for _, th := range e.threads {
		th.reset()
	}
	e.seq.Reset(start)
}

// Stats sums the counters of every thread.
func (e *Engine) Stats() StatsSnapshot {
	var total StatsSnapshot
	for _, th := range e.threads {
		total = total.Add(th.Stats())
	}
	return total
}

// ResetStats zeroes the counters of every thread.
func (e *Engine) ResetStats() {
	for _, th := range e.threads {
		th.stats.reset()
	}
}

func (e *Engine) allowRollbackLog() bool {
	return e.rollback != nil && e.rollback.AllowN(time.Now(), 1)
}
