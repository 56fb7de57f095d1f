package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sushant-115/gojostm/core/stm"
	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/stm/sequencer"
	commonutils "github.com/sushant-115/gojostm/internal/common_utils"
	internaltelemetry "github.com/sushant-115/gojostm/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of iterations per transaction when neither
// the loop nor the configuration sets one.
const DefaultChunkSize = 64

// Config holds the runner configuration.
type Config struct {
	// ChunkSize is the default number of iterations per transaction.
	ChunkSize uint64 `yaml:"chunk_size"`
	// LockOSThread pins every worker goroutine to its own OS thread.
	LockOSThread bool `yaml:"lock_os_thread"`
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, LockOSThread: true}
}

// Result describes one finished loop execution.
type Result struct {
	RunID      uuid.UUID
	Name       string
	Chunks     int
	Iterations uint64
	// Registers are the entry registers with the live-out registers of the
	// last committed range applied.
	Registers checkpoint.RegisterFile
	Stats     stm.StatsSnapshot
	Duration  time.Duration
}

// Runner executes loops on the threads of an engine. Chunk k of a loop gets
// ticket k and runs on worker k mod N, so commits happen in iteration order.
// A runner executes one loop at a time.
type Runner struct {
	engine  *stm.Engine
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *internaltelemetry.LoopMetrics
	mu      sync.Mutex
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

func WithLogger(l *zap.Logger) Option  { return func(o *runnerOptions) { o.logger = l } }
func WithTracer(t trace.Tracer) Option { return func(o *runnerOptions) { o.tracer = t } }
func WithMeter(m metric.Meter) Option  { return func(o *runnerOptions) { o.meter = m } }

// NewRunner creates a runner over engine.
func NewRunner(engine *stm.Engine, cfg Config, opts ...Option) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("loop runner requires an engine")
	}
	o := runnerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = nooptrace.NewTracerProvider().Tracer("")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	metrics, err := internaltelemetry.NewLoopMetrics(o.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create loop metrics: %w", err)
	}
	return &Runner{
		engine:  engine,
		cfg:     cfg,
		logger:  o.logger.Named("loop"),
		tracer:  o.tracer,
		metrics: metrics,
	}, nil
}

// Engine returns the engine the runner drives.
func (r *Runner) Engine() *stm.Engine { return r.engine }

func (r *Runner) chunkSize(l *Loop) uint64 {
	if l.Chunk > 0 {
		return l.Chunk
	}
	return r.cfg.ChunkSize
}

// Run executes l speculatively on every engine thread and returns once all
// ranges have committed. A fault that persists when its range is the oldest,
// a body error in the same situation, or ctx cancellation stops the loop and
// is returned; ranges committed before that stay committed.
func (r *Runner) Run(ctx context.Context, l Loop) (Result, error) {
	if err := l.Validate(); err != nil {
		return Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk := r.chunkSize(&l)
	ranges := l.Ranges(chunk)
	res := Result{RunID: uuid.New(), Name: l.Meta.Name, Chunks: len(ranges), Iterations: l.End - l.Start, Registers: l.Init}

	ctx, span := r.tracer.Start(ctx, "loop.run", trace.WithAttributes(
		attribute.String("loop.name", l.Meta.Name),
		attribute.String("loop.run_id", res.RunID.String()),
		attribute.Int("loop.chunks", len(ranges)),
		attribute.Int("loop.threads", r.engine.Threads()),
		attribute.Int64("loop.chunk_size", int64(chunk)),
	))
	defer span.End()

	logger := r.logger.With(zap.String("loop", l.Meta.Name), zap.String("runID", res.RunID.String()))
	logger.Debug("Starting parallel loop",
		zap.Uint64("start", l.Start),
		zap.Uint64("end", l.End),
		zap.Uint64("chunkSize", chunk),
		zap.Int("inductions", len(l.Meta.Inductions)),
	)

	r.engine.Reset(0)
	before := r.engine.Stats()
	start := time.Now()

	seq := r.engine.Sequencer()
	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-gctx.Done():
			// Release workers spinning on a predecessor that will not commit.
			seq.Yield()
		case <-stop:
		}
	}()

	last := len(ranges) - 1
	for w := 0; w < r.engine.Threads() && w < len(ranges); w++ {
		th, err := r.engine.Thread(w)
		if err != nil {
			close(stop)
			<-watchDone
			return res, err
		}
		g.Go(func() error {
			if r.cfg.LockOSThread {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
			}
			for k := th.ID(); k < len(ranges); k += r.engine.Threads() {
				regs, err := r.runRange(gctx, th, sequencer.Ticket(k), ranges[k], &l)
				if err != nil {
					return fmt.Errorf("range %s: %w", ranges[k], err)
				}
				if k == last {
					l.Meta.LiveOut.Copy(&res.Registers, &regs)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	close(stop)
	<-watchDone

	res.Duration = time.Since(start)
	res.Stats = r.engine.Stats().Sub(before)
	attrs := metric.WithAttributes(attribute.String("loop", l.Meta.Name))
	r.metrics.RunsCounter.Add(ctx, 1, attrs)
	r.metrics.ChunksCounter.Add(ctx, int64(res.Stats.Commits), attrs)
	r.metrics.RetriesCounter.Add(ctx, int64(res.Stats.Rollbacks), attrs)
	r.metrics.RunLatencyHistogram.Record(ctx, res.Duration.Milliseconds(), attrs)
	span.SetAttributes(
		attribute.Int64("loop.commits", int64(res.Stats.Commits)),
		attribute.Int64("loop.rollbacks", int64(res.Stats.Rollbacks)),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Parallel loop aborted", zap.Error(err), zap.Uint64("committed", res.Stats.Commits))
		return res, err
	}
	logger.Info("Parallel loop finished",
		zap.Int("chunks", res.Chunks),
		zap.Uint64("commits", res.Stats.Commits),
		zap.Uint64("rollbacks", res.Stats.Rollbacks),
		zap.Uint64("predictions", res.Stats.Predictions),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// runRange executes one range until it commits and returns the registers it
// committed with.
func (r *Runner) runRange(ctx context.Context, th *stm.Thread, ticket sequencer.Ticket, rng Range, l *Loop) (checkpoint.RegisterFile, error) {
	regs := l.Init
	pc := l.Meta.StartPC
	for {
		if err := ctx.Err(); err != nil {
			return regs, err
		}
		if err := th.Begin(ticket, &regs, pc); err != nil {
			return regs, err
		}
		var (
			out stm.Outcome
			err error
		)
		if bodyErr := invoke(th, &regs, rng, l.Body); bodyErr != nil {
			out, err = th.Fault(&regs, bodyErr)
		} else {
			out, err = th.Finish(&regs)
		}
		if err != nil {
			return regs, err
		}
		if out == stm.OutcomeCommitted {
			return regs, nil
		}
		pc = th.ResumePC()
	}
}

// invoke runs the body and converts a panic into a fault error. Capacity
// overflows are not faults and keep unwinding.
func invoke(th *stm.Thread, regs *checkpoint.RegisterFile, rng Range, body Body) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		perr := commonutils.PanicValue(rec)
		var capErr *stm.CapacityError
		if errors.As(perr, &capErr) {
			panic(rec)
		}
		err = perr
	}()
	return body(th, regs, rng)
}

// RunSequential executes l on worker 0 outside any transaction, in iteration
// order. Every access goes straight to memory. It is the reference the
// speculative execution has to match.
func (r *Runner) RunSequential(ctx context.Context, l Loop) (Result, error) {
	if err := l.Validate(); err != nil {
		return Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	th, err := r.engine.Thread(0)
	if err != nil {
		return Result{}, err
	}
	ranges := l.Ranges(r.chunkSize(&l))
	res := Result{RunID: uuid.New(), Name: l.Meta.Name, Chunks: len(ranges), Iterations: l.End - l.Start, Registers: l.Init}
	_, span := r.tracer.Start(ctx, "loop.run_sequential", trace.WithAttributes(
		attribute.String("loop.name", l.Meta.Name),
		attribute.String("loop.run_id", res.RunID.String()),
	))
	defer span.End()

	start := time.Now()
	for _, rng := range ranges {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		regs := l.Init
		if err := invoke(th, &regs, rng, l.Body); err != nil {
			span.RecordError(err)
			return res, fmt.Errorf("range %s: %w", rng, err)
		}
		l.Meta.LiveOut.Copy(&res.Registers, &regs)
	}
	res.Duration = time.Since(start)
	return res, nil
}
