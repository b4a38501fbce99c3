// Package instrument is the boundary between the interception layer and the
// tracing core. The interception layer reports "operation started" and
// "operation finished" events; this package turns them into immutable spans,
// manages the per-execution trace context, applies the sanitizers, and hands
// the finished spans to the exporter.
//
// A tracing failure must never alter the behavior of the host application:
// every entry point suppresses internal panics and degrades to a log line.
package instrument

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Artur-Abalov/Kortex-agent/internal/export"
	"github.com/Artur-Abalov/Kortex-agent/internal/sanitize"
	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// Recorder builds spans from operation start/end events.
type Recorder struct {
	exporter *export.Exporter
	logger   *zap.Logger

	// CaptureHeaders lists the HTTP headers recorded on server spans.
	// Values pass through the header sanitizer before capture.
	captureHeaders []string
}

// NewRecorder creates a recorder that reports finished spans to exp.
func NewRecorder(exp *export.Exporter, logger *zap.Logger) *Recorder {
	return &Recorder{
		exporter:       exp,
		logger:         logger,
		captureHeaders: []string{"User-Agent", "Content-Type"},
	}
}

// Operation is the token returned by StartOperation and closed by End.
// A nil Operation is valid and inert, so callers never need to branch on
// tracing health.
type Operation struct {
	rec   *Recorder
	ec    *trace.ExecutionContext
	span  trace.Span
	start time.Time
	ended bool
}

// StartOperation begins a span for one instrumented operation. The returned
// context carries the execution context for nested operations and outbound
// propagation.
func (r *Recorder) StartOperation(ctx context.Context, name string, kind trace.SpanKind, attrs ...trace.KeyValue) (outCtx context.Context, op *Operation) {
	outCtx = ctx
	defer r.suppress("start operation")

	outCtx, ec := trace.Execution(ctx)
	traceID := ec.GetOrCreateTraceID()
	spanID := ec.EnterSpan()

	// time.Now carries a monotonic reading; End derives the end timestamp
	// from this same reading so end >= start holds regardless of wall-clock
	// adjustments.
	start := time.Now()

	op = &Operation{
		rec:   r,
		ec:    ec,
		start: start,
		span: trace.Span{
			TraceID:      traceID,
			SpanID:       spanID,
			ParentSpanID: ec.ParentSpanID(),
			Name:         name,
			Kind:         kind,
			StartTime:    start,
			Attributes:   attrs,
			TraceState:   ec.TraceState(),
			Flags:        ec.Flags(),
		},
	}
	return outCtx, op
}

// SetAttribute adds an attribute to the span under construction.
// No-op after End or on a nil operation.
func (o *Operation) SetAttribute(kv trace.KeyValue) {
	if o == nil || o.ended {
		return
	}
	o.span.Attributes = append(o.span.Attributes, kv)
}

// End finishes the operation: it stamps the end time, derives the status
// from err, pops the execution context frame, and reports the span. Safe to
// call on a nil operation and safe to call twice.
func (o *Operation) End(err error) {
	if o == nil || o.ended {
		return
	}
	o.ended = true
	defer o.rec.suppress("end operation")

	o.span.EndTime = o.start.Add(time.Since(o.start))
	if err != nil {
		o.span.Status = trace.Status{Code: trace.StatusError, Message: err.Error()}
	} else {
		o.span.Status = trace.Status{Code: trace.StatusOK}
	}

	o.ec.ExitSpan()
	o.rec.exporter.ReportSpan(o.span)
}

// StartQuery begins a CLIENT span for a database call. The raw statement is
// supplied by the interception layer; only its sanitized form is attached.
// Database semantics ride on attributes, there is no dedicated span kind.
func (r *Recorder) StartQuery(ctx context.Context, system, statement string) (context.Context, *Operation) {
	sanitized := sanitize.SQL(statement)
	name := queryName(statement)
	return r.StartOperation(ctx, name, trace.SpanKindClient,
		trace.String("db.system", system),
		trace.String("db.statement", sanitized),
	)
}

// queryName derives a low-cardinality span name from the statement verb.
func queryName(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return "query"
	}
	return strings.ToUpper(fields[0])
}

// suppress logs and swallows unexpected internal faults so they are never
// re-raised into the host application's call path.
func (r *Recorder) suppress(where string) {
	if rec := recover(); rec != nil {
		r.logger.Error("Suppressed internal tracing failure",
			zap.String("where", where),
			zap.Any("panic", rec),
		)
	}
}
