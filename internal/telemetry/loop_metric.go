package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// LoopMetrics holds the instruments of the loop runner.
type LoopMetrics struct {
	RunsCounter         metric.Int64Counter
	ChunksCounter       metric.Int64Counter
	RetriesCounter      metric.Int64Counter
	RunLatencyHistogram metric.Int64Histogram
}

// NewLoopMetrics creates and registers all the metrics for the loop runner.
func NewLoopMetrics(meter metric.Meter) (*LoopMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	runsCounter, err := meter.Int64Counter(
		"gojostm.loop.runs_total",
		metric.WithDescription("Total number of parallel loop executions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	chunksCounter, err := meter.Int64Counter(
		"gojostm.loop.chunks_total",
		metric.WithDescription("Total number of committed iteration chunks."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	retriesCounter, err := meter.Int64Counter(
		"gojostm.loop.retries_total",
		metric.WithDescription("Total number of chunk re-executions after rollback."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	runLatencyHistogram, err := meter.Int64Histogram(
		"gojostm.loop.run.duration",
		metric.WithDescription("Wall time of a parallel loop execution."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &LoopMetrics{
		RunsCounter:         runsCounter,
		ChunksCounter:       chunksCounter,
		RetriesCounter:      retriesCounter,
		RunLatencyHistogram: runLatencyHistogram,
	}, nil
}
