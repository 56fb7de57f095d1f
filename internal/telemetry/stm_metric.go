package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// STMMetrics holds all the metric instruments for the transactional engine.
type STMMetrics struct {
	CommitsCounter          metric.Int64Counter
	RollbacksCounter        metric.Int64Counter
	ConflictsCounter        metric.Int64Counter
	FaultsCounter           metric.Int64Counter
	PredictionsCounter      metric.Int64Counter
	WaitLatencyHistogram    metric.Int64Histogram
	ReadSetHistogram        metric.Int64Histogram
	WriteSetHistogram       metric.Int64Histogram
	ActiveTxnsUpDownCounter metric.Int64UpDownCounter
}

// NewSTMMetrics creates and registers all the metrics for the engine.
func NewSTMMetrics(meter metric.Meter) (*STMMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	commitsCounter, err := meter.Int64Counter(
		"gojostm.stm.commits_total",
		metric.WithDescription("Total number of committed transactions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	rollbacksCounter, err := meter.Int64Counter(
		"gojostm.stm.rollbacks_total",
		metric.WithDescription("Total number of rolled back transactions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	conflictsCounter, err := meter.Int64Counter(
		"gojostm.stm.conflicts_total",
		metric.WithDescription("Total number of failed validations."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	faultsCounter, err := meter.Int64Counter(
		"gojostm.stm.faults_total",
		metric.WithDescription("Total number of faults raised inside transactions."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	predictionsCounter, err := meter.Int64Counter(
		"gojostm.stm.predictions_total",
		metric.WithDescription("Total number of predicted induction variable loads."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	waitLatencyHistogram, err := meter.Int64Histogram(
		"gojostm.stm.wait.duration",
		metric.WithDescription("Time spent waiting to become the oldest transaction."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	readSetHistogram, err := meter.Int64Histogram(
		"gojostm.stm.read_set.size",
		metric.WithDescription("Read log entries per finished transaction."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	writeSetHistogram, err := meter.Int64Histogram(
		"gojostm.stm.write_set.size",
		metric.WithDescription("Write log entries per finished transaction."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	activeTxnsUpDownCounter, err := meter.Int64UpDownCounter(
		"gojostm.stm.active_transactions",
		metric.WithDescription("Number of transactions currently in flight."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &STMMetrics{
		CommitsCounter:          commitsCounter,
		RollbacksCounter:        rollbacksCounter,
		ConflictsCounter:        conflictsCounter,
		FaultsCounter:           faultsCounter,
		PredictionsCounter:      predictionsCounter,
		WaitLatencyHistogram:    waitLatencyHistogram,
		ReadSetHistogram:        readSetHistogram,
		WriteSetHistogram:       writeSetHistogram,
		ActiveTxnsUpDownCounter: activeTxnsUpDownCounter,
	}, nil
}
