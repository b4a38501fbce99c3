// Package export implements the asynchronous batching exporter: a bounded
// multi-producer queue drained by a single worker that assembles spans into
// batches and hands them to a Transport. Producers never block and never
// observe a failure; telemetry loss degrades to diagnostic counters and logs.
package export

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// State is the exporter lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

// Config controls queueing and batching behavior. Zero values fall back to
// the defaults below, so the exporter works with no configuration at all.
type Config struct {
	// MaxBatchSize triggers a flush when the in-memory batch reaches it.
	MaxBatchSize int
	// BatchTimeout triggers a flush when the oldest buffered span has
	// waited this long, bounding worst-case latency.
	BatchTimeout time.Duration
	// QueueCapacity bounds the producer-facing queue; spans submitted while
	// it is full are dropped.
	QueueCapacity int
	// ExportTimeout bounds one transport call.
	ExportTimeout time.Duration
	// ShutdownGrace bounds the final drain during Shutdown.
	ShutdownGrace time.Duration
}

const (
	defaultMaxBatchSize  = 100
	defaultBatchTimeout  = 1000 * time.Millisecond
	defaultQueueCapacity = 10000
	defaultExportTimeout = 10 * time.Second
	defaultShutdownGrace = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = defaultExportTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	return c
}

// Exporter is the producer-facing span sink. Many goroutines may call
// ReportSpan concurrently; exactly one worker goroutine consumes the queue
// and performs network I/O. No lock is ever held across a transport call.
type Exporter struct {
	config    Config
	transport Transport
	logger    *zap.Logger
	clock     clockz.Clock
	metrics   *Metrics

	resource trace.Resource
	scope    trace.Scope

	queue  chan trace.Span
	stopCh chan struct{}
	done   chan struct{}

	state    atomic.Int32
	dropped  atomic.Int64
	exported atomic.Int64
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithClock injects a clock for deterministic timing in tests.
func WithClock(clock clockz.Clock) Option {
	return func(e *Exporter) { e.clock = clock }
}

// WithMetrics attaches self-diagnostic counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// New creates an exporter in the Uninitialized state. The transport must
// already be open; the exporter takes ownership and closes it on Shutdown.
func New(cfg Config, transport Transport, resource trace.Resource, scope trace.Scope, logger *zap.Logger, opts ...Option) *Exporter {
	cfg = cfg.withDefaults()
	e := &Exporter{
		config:    cfg,
		transport: transport,
		logger:    logger,
		clock:     clockz.RealClock,
		resource:  resource,
		scope:     scope,
		queue:     make(chan trace.Span, cfg.QueueCapacity),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the background worker and transitions to Running.
// Calling Start more than once is a no-op.
func (e *Exporter) Start() {
	if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateRunning)) {
		return
	}
	go e.run()
	e.logger.Info("Exporter started",
		zap.Int("max_batch_size", e.config.MaxBatchSize),
		zap.Duration("batch_timeout", e.config.BatchTimeout),
		zap.Int("queue_capacity", e.config.QueueCapacity),
	)
}

// State returns the current lifecycle state.
func (e *Exporter) State() State {
	return State(e.state.Load())
}

// ReportSpan submits a completed span for export. It never blocks: outside
// the Running state it is a silent no-op, and when the queue is at capacity
// the span is dropped and counted. Added latency on the host application's
// call path is considered worse than losing a span.
func (e *Exporter) ReportSpan(span trace.Span) {
	if e.State() != StateRunning {
		return
	}
	select {
	case e.queue <- span:
		if e.metrics != nil {
			e.metrics.SpansReported.Inc()
		}
	default:
		n := e.dropped.Add(1)
		if e.metrics != nil {
			e.metrics.SpansDropped.Inc()
		}
		if n == 1 || n%1000 == 0 {
			e.logger.Warn("Span queue full, dropping",
				zap.Int64("dropped_total", n),
			)
		}
	}
}

// DroppedCount returns the number of spans dropped due to backpressure.
func (e *Exporter) DroppedCount() int64 {
	return e.dropped.Load()
}

// ExportedCount returns the number of spans accepted by the backend.
func (e *Exporter) ExportedCount() int64 {
	return e.exported.Load()
}

// Shutdown transitions to ShuttingDown, drains queued spans into one final
// batch under the configured grace period, closes the transport, and moves
// to Stopped. ReportSpan is permanently a no-op afterwards. Shutdown of an
// exporter that is not Running does nothing.
func (e *Exporter) Shutdown() {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		return
	}
	close(e.stopCh)
	select {
	case <-e.done:
	case <-time.After(e.config.ShutdownGrace):
		e.logger.Warn("Shutdown drain exceeded grace period",
			zap.Duration("grace", e.config.ShutdownGrace),
		)
	}
	if err := e.transport.Close(); err != nil {
		e.logger.Warn("Transport close failed", zap.Error(err))
	}
	e.state.Store(int32(StateStopped))
	e.logger.Info("Exporter stopped",
		zap.Int64("spans_exported", e.exported.Load()),
		zap.Int64("spans_dropped", e.dropped.Load()),
	)
}

// run is the single consumer loop. It owns the batch buffer exclusively:
// spans accumulate until either the batch reaches MaxBatchSize or the first
// buffered span is older than BatchTimeout, whichever happens first.
func (e *Exporter) run() {
	defer close(e.done)

	batch := make([]trace.Span, 0, e.config.MaxBatchSize)
	var flushC <-chan time.Time // armed when the batch gains its first span

	for {
		select {
		case span := <-e.queue:
			batch = append(batch, span)
			if len(batch) == 1 {
				flushC = e.clock.After(e.config.BatchTimeout)
			}
			if len(batch) >= e.config.MaxBatchSize {
				batch = e.send(batch)
				flushC = nil
			}

		case <-flushC:
			batch = e.send(batch)
			flushC = nil

		case <-e.stopCh:
			// Drain whatever is still queued into the final batch.
			for {
				select {
				case span := <-e.queue:
					batch = append(batch, span)
				default:
					e.send(batch)
					return
				}
			}
		}
	}
}

// send hands one batch to the transport and returns an empty buffer for
// reuse. Failures are logged and the batch is discarded: no retry, no
// persistent queue.
func (e *Exporter) send(batch []trace.Span) []trace.Span {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.ExportTimeout)
	defer cancel()

	result, err := e.transport.Export(ctx, trace.Batch{
		Resource: e.resource,
		Scope:    e.scope,
		Spans:    batch,
	})
	if e.metrics != nil {
		e.metrics.ExportBatches.Inc()
	}

	switch {
	case err != nil:
		if e.metrics != nil {
			e.metrics.ExportFailures.Inc()
		}
		e.logger.Error("Failed to export batch",
			zap.Int("spans", len(batch)),
			zap.Error(err),
		)
	case result.RejectedSpans > 0:
		accepted := int64(len(batch)) - result.RejectedSpans
		if accepted < 0 {
			accepted = 0
		}
		e.exported.Add(accepted)
		if e.metrics != nil {
			e.metrics.SpansExported.Add(float64(accepted))
			e.metrics.SpansRejected.Add(float64(result.RejectedSpans))
		}
		e.logger.Warn("Backend rejected spans from batch",
			zap.Int64("rejected", result.RejectedSpans),
			zap.String("reason", result.ErrorMessage),
		)
	default:
		e.exported.Add(int64(len(batch)))
		if e.metrics != nil {
			e.metrics.SpansExported.Add(float64(len(batch)))
		}
	}

	// The worker owns the buffer; the transport has fully serialized the
	// spans by the time Export returns, so the backing array is reusable.
	return batch[:0]
}
