package stm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostm/core/memory"
	"github.com/sushant-115/gojostm/core/stm/checkpoint"
	"github.com/sushant-115/gojostm/core/stm/sequencer"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Test Helpers ---

func testConfig(threads int) Config {
	return Config{
		Threads:    threads,
		HashBits:   8,
		Prediction: true,
	}
}

// setupEngine creates an engine over a fresh paged memory. The logger turns
// Fatal into a panic so overflow paths can be observed.
func setupEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *memory.Paged, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core, zap.WithFatalHook(zapcore.WriteThenPanic))

	mem := memory.NewPaged()
	e, err := NewEngine(cfg, mem, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return e, mem, logs
}

func thread(t *testing.T, e *Engine, i int) *Thread {
	t.Helper()
	th, err := e.Thread(i)
	require.NoError(t, err)
	return th
}

func begin(t *testing.T, th *Thread, ticket sequencer.Ticket, regs *checkpoint.RegisterFile) {
	t.Helper()
	require.NoError(t, th.Begin(ticket, regs, 0x400000+uint64(ticket)))
}

// capturePanic runs f and returns the value it panicked with, or nil.
func capturePanic(f func()) (v any) {
	defer func() { v = recover() }()
	f()
	return nil
}

// --- Test Cases ---

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Threads = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.HashBits = 31
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.HashBits = 1
	cfg.WriteCapacity = 0
	require.NoError(t, cfg.Validate(), "one slot of write log is still usable")

	cfg = DefaultConfig()
	cfg.ReadCapacity = -1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestConfig_Limits(t *testing.T) {
	cfg := Config{Threads: 1, HashBits: 10}
	require.Equal(t, 1024, cfg.TableSize())
	require.Equal(t, 1024, cfg.ReadLimit())
	require.Equal(t, 512, cfg.WriteLimit())

	cfg.ReadCapacity, cfg.WriteCapacity = 7, 3
	require.Equal(t, 7, cfg.ReadLimit())
	require.Equal(t, 3, cfg.WriteLimit())
}

func TestNewEngine_Errors(t *testing.T) {
	_, err := NewEngine(testConfig(1), nil)
	require.ErrorIs(t, err, ErrNilMemory)

	_, err = NewEngine(Config{}, memory.NewPaged())
	require.ErrorIs(t, err, ErrInvalidConfig)

	e, _, _ := setupEngine(t, testConfig(2))
	_, err = e.Thread(2)
	require.ErrorIs(t, err, ErrThreadOutRange)
	require.Equal(t, 2, e.Threads())
}

// TestEngine_StatsAndReset drives one commit and one rollback and checks that
// the per-thread counters aggregate and reset.
func TestEngine_StatsAndReset(t *testing.T) {
	e, mem, _ := setupEngine(t, testConfig(2))
	addr := mem.MustAlloc(1)
	var regs checkpoint.RegisterFile

	t0, t1 := thread(t, e, 0), thread(t, e, 1)
	begin(t, t1, 1, &regs)
	t1.Read(addr)

	begin(t, t0, 0, &regs)
	t0.Write(addr, 1)
	out, err := t0.Finish(&regs)
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, out)

	out, err = t1.Finish(&regs)
	require.NoError(t, err)
	require.Equal(t, OutcomeRolledBack, out)

	s := e.Stats()
	require.Equal(t, uint64(2), s.Transactions)
	require.Equal(t, uint64(1), s.Commits)
	require.Equal(t, uint64(1), s.Rollbacks)
	require.Equal(t, uint64(1), s.Conflicts)
	require.Equal(t, 1.0, s.RollbackRatio())

	e.Reset(10)
	e.ResetStats()
	require.Equal(t, StatsSnapshot{}, e.Stats())
	require.Equal(t, sequencer.Ticket(10), e.Sequencer().Current())
	require.Equal(t, 0, t1.Retries())
}

func TestEngine_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e, mem, _ := setupEngine(t, testConfig(1), WithMeter(provider.Meter("stm-test")))

	addr := mem.MustAlloc(1)
	var regs checkpoint.RegisterFile
	th := thread(t, e, 0)
	begin(t, th, 0, &regs)
	th.Write(addr, 5)
	_, err := th.Finish(&regs)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "gojostm.stm.commits_total" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Equal(t, int64(1), sum.DataPoints[0].Value)
			}
		}
	}
	require.True(t, found["gojostm.stm.commits_total"])
	require.True(t, found["gojostm.stm.write_set.size"])
	require.True(t, found["gojostm.stm.wait.duration"])
}

// TestThread_OverflowWithGoexitHook uses a fatal hook that ends the goroutine
// with runtime.Goexit. The overflow must let it through instead of turning it
// into a panic.
func TestThread_OverflowWithGoexitHook(t *testing.T) {
	cfg := testConfig(1)
	cfg.ReadCapacity = 1
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core, zap.WithFatalHook(zapcore.WriteThenGoexit))
	mem := memory.NewPaged()
	e, err := NewEngine(cfg, mem, WithLogger(logger))
	require.NoError(t, err)
	th := thread(t, e, 0)
	base := mem.MustAlloc(2)

	var regs checkpoint.RegisterFile
	begin(t, th, 0, &regs)
	th.Read(base)

	done := make(chan any, 1)
	returned := false
	go func() {
		defer func() { done <- recover() }()
		th.Read(base + 8)
		returned = true
	}()
	require.Nil(t, <-done, "goexit surfaced as a panic")
	require.False(t, returned)
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.FatalLevel).Len())
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "committed", OutcomeCommitted.String())
	require.Equal(t, "rolled back", OutcomeRolledBack.String())
	require.Equal(t, "outcome(7)", Outcome(7).String())
}

func TestEngine_Accessors(t *testing.T) {
	cfg := testConfig(2)
	e, mem, _ := setupEngine(t, cfg)
	require.Equal(t, cfg, e.Config())
	require.Same(t, mem, e.Memory())
	require.NotNil(t, e.Sequencer())
	require.NotNil(t, e.Logger())
}
