// Package session runs kernels on fresh engines for the gojostm binaries.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sushant-115/gojostm/config"
	"github.com/sushant-115/gojostm/core/kernels"
	"github.com/sushant-115/gojostm/core/loop"
	"github.com/sushant-115/gojostm/core/memory"
	"github.com/sushant-115/gojostm/core/stm"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Mode selects how a workload is executed.
type Mode int

const (
	ModeParallel Mode = iota
	ModeSequential
)

func (m Mode) String() string {
	if m == ModeSequential {
		return "sequential"
	}
	return "parallel"
}

// Request describes one run. Zero values take the session configuration.
type Request struct {
	Kernel  string
	Params  kernels.Params
	Threads int
	Mode    Mode
	Verify  bool
}

// Report is the outcome of one run.
type Report struct {
	Kernel   string            `json:"kernel"`
	Mode     string            `json:"mode"`
	Threads  int               `json:"threads"`
	Params   kernels.Params    `json:"params"`
	RunID    string            `json:"run_id"`
	Chunks   int               `json:"chunks"`
	Duration time.Duration     `json:"duration_ns"`
	Stats    stm.StatsSnapshot `json:"stats"`
	Verified bool              `json:"verified"`
	Pages    int               `json:"pages"`
}

func (r Report) String() string {
	return fmt.Sprintf("%s %s threads=%d n=%d chunks=%d in %s: %s", r.Kernel, r.Mode, r.Threads, r.Params.N, r.Chunks, r.Duration, r.Stats)
}

// Session holds what runs share: configuration, logger and telemetry.
type Session struct {
	cfg    config.Config
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter
	last   *Report
}

// New creates a session. tracer and meter may be nil.
func New(cfg config.Config, logger *zap.Logger, tracer trace.Tracer, meter metric.Meter) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, logger: logger, tracer: tracer, meter: meter}
}

// Config returns the session configuration.
func (s *Session) Config() config.Config { return s.cfg }

// Last returns the report of the previous successful run, if any.
func (s *Session) Last() (Report, bool) {
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// Defaults fills the zero fields of req from the configuration.
func (s *Session) Defaults(req Request) Request {
	if req.Kernel == "" {
		req.Kernel = s.cfg.Workload.Kernel
	}
	if req.Params.N == 0 {
		req.Params.N = s.cfg.Workload.Params.N
	}
	if req.Params.Chunk == 0 {
		req.Params.Chunk = s.cfg.Workload.Params.Chunk
	}
	if req.Threads == 0 {
		req.Threads = s.cfg.STM.Threads
	}
	return req
}

// Run builds the kernel in a fresh memory, executes it on a fresh engine and
// optionally verifies the result.
func (s *Session) Run(ctx context.Context, req Request) (Report, error) {
	req = s.Defaults(req)
	build, err := kernels.ByName(req.Kernel)
	if err != nil {
		return Report{}, err
	}

	mem := memory.NewPaged()
	w, err := build(mem, req.Params)
	if err != nil {
		return Report{}, fmt.Errorf("failed to build %s: %w", req.Kernel, err)
	}

	stmCfg := s.cfg.STM
	stmCfg.Threads = req.Threads
	engine, err := stm.NewEngine(stmCfg, mem, stm.WithLogger(s.logger), stm.WithMeter(s.meter))
	if err != nil {
		return Report{}, err
	}
	opts := []loop.Option{loop.WithLogger(s.logger), loop.WithMeter(s.meter)}
	if s.tracer != nil {
		opts = append(opts, loop.WithTracer(s.tracer))
	}
	runner, err := loop.NewRunner(engine, s.cfg.Loop, opts...)
	if err != nil {
		return Report{}, err
	}

	var res loop.Result
	if req.Mode == ModeSequential {
		res, err = runner.RunSequential(ctx, w.Loop)
	} else {
		res, err = runner.Run(ctx, w.Loop)
	}
	rep := Report{
		Kernel:   req.Kernel,
		Mode:     req.Mode.String(),
		Threads:  req.Threads,
		Params:   req.Params,
		RunID:    res.RunID.String(),
		Chunks:   res.Chunks,
		Duration: res.Duration,
		Stats:    res.Stats,
		Pages:    mem.Pages(),
	}
	if err != nil {
		return rep, fmt.Errorf("%s: %w", req.Kernel, err)
	}
	if req.Verify {
		if err := w.Verify(mem); err != nil {
			return rep, err
		}
		rep.Verified = true
	}
	s.last = &rep
	return rep, nil
}
