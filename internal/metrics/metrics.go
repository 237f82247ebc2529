// Package metrics wires the daemon's OpenTelemetry instruments. By
// default the process uses a no-op MeterProvider (Init is never called),
// so instrument calls are free; Init swaps in a real provider backed by a
// stdout periodic exporter when the operator passes --metrics.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var meter = otel.Meter("github.com/RUBclim/vpf-730")

var (
	// QueueDepth is an async gauge of queue.qsize(), sampled on demand by
	// the exporter via the callback RegisterQueueDepthSource installs.
	QueueDepth metric.Int64ObservableGauge
	// Retries counts task_failed calls that resulted in a retry
	// (retries < max_retries).
	Retries metric.Int64Counter
	// Deadlettered counts messages routed to the deadletter table.
	Deadlettered metric.Int64Counter
	// Pruned counts successful _prune runs (one per run, not the number
	// of rows each run removed).
	Pruned metric.Int64Counter
	// BusyRetries counts SQLite "database is locked" retries absorbed by
	// the storage adapter's backoff wrapper.
	BusyRetries metric.Int64Counter
)

func init() {
	QueueDepth, _ = meter.Int64ObservableGauge("vpf730.queue.depth",
		metric.WithDescription("current number of eligible messages on the queue"),
		metric.WithUnit("{message}"),
	)
	Retries, _ = meter.Int64Counter("vpf730.queue.retries",
		metric.WithDescription("messages returned to the queue for retry"),
		metric.WithUnit("{retry}"),
	)
	Deadlettered, _ = meter.Int64Counter("vpf730.queue.deadlettered",
		metric.WithDescription("messages routed to the deadletter table"),
		metric.WithUnit("{message}"),
	)
	Pruned, _ = meter.Int64Counter("vpf730.queue.pruned",
		metric.WithDescription("completed prune runs over acknowledged rows"),
		metric.WithUnit("{run}"),
	)
	BusyRetries, _ = meter.Int64Counter("vpf730.storage.busy_retries",
		metric.WithDescription("SQLite busy/locked errors absorbed by backoff retry"),
		metric.WithUnit("{retry}"),
	)
}

// RegisterQueueDepthSource wires size as the callback backing the
// QueueDepth observable gauge: whenever the configured reader collects,
// size is invoked once and its result is reported as the current depth.
// Call it once at startup after the queue is constructed, since this
// package has no reference to it on its own. Safe to call whether or
// not --metrics/Init was used: against the default no-op provider the
// callback is simply never invoked.
func RegisterQueueDepthSource(size func(context.Context) (int, error)) (metric.Registration, error) {
	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := size(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(QueueDepth, int64(n))
		return nil
	}, QueueDepth)
}

// Init installs a real MeterProvider that periodically exports to stdout.
// Call it once at startup when --metrics is set; without it, all
// instruments above are backed by the otel no-op provider.
func Init(ctx context.Context, interval time.Duration) (shutdown func(context.Context) error, err error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	// otel's global Meter is a delegating proxy: instruments created
	// against it before this call (see init() above) automatically start
	// forwarding to the real provider once it's installed.
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}
