package trace

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
)

// traceparentVersion is the only W3C trace context version this agent
// understands.
const traceparentVersion = "00"

// FlagSampled is bit 0 of the trace flags.
const FlagSampled byte = 0x01

// ExecutionContext holds the trace identity active for one logical unit of
// execution, plus a stack of in-flight spans for nested operations.
//
// An ExecutionContext is confined to a single goroutine and needs no
// locking. It must be cleared at natural request boundaries so pooled
// goroutines never leak a stale identity into unrelated work.
type ExecutionContext struct {
	gen          *IDGenerator
	traceID      string
	spanID       string
	parentSpanID string
	traceState   string
	flags        byte
	flagsSet     bool
	stack        []spanFrame
}

// spanFrame snapshots the identity that an EnterSpan call displaced.
type spanFrame struct {
	spanID       string
	parentSpanID string
}

// NewExecutionContext creates an empty execution context.
func NewExecutionContext(gen *IDGenerator) *ExecutionContext {
	if gen == nil {
		gen = NewIDGenerator()
	}
	return &ExecutionContext{gen: gen}
}

// GetOrCreateTraceID returns the trace ID for this execution unit,
// generating and storing a fresh one if none exists yet.
func (e *ExecutionContext) GetOrCreateTraceID() string {
	if e.traceID == "" {
		e.traceID = e.gen.NewTraceID()
	}
	return e.traceID
}

// SpanID returns the currently active span ID, or "" if none.
func (e *ExecutionContext) SpanID() string { return e.spanID }

// SetSpanID overrides the active span ID.
func (e *ExecutionContext) SetSpanID(id string) { e.spanID = id }

// ParentSpanID returns the parent of the active span, or "" for roots.
func (e *ExecutionContext) ParentSpanID() string { return e.parentSpanID }

// SetParentSpanID overrides the parent span ID.
func (e *ExecutionContext) SetParentSpanID(id string) { e.parentSpanID = id }

// TraceState returns the opaque tracestate value captured on an inbound
// request. It is forwarded unmodified, never validated or mutated.
func (e *ExecutionContext) TraceState() string { return e.traceState }

// SetTraceState stores an opaque tracestate value for passthrough.
func (e *ExecutionContext) SetTraceState(s string) { e.traceState = s }

// Flags returns the trace flags, defaulting to sampled when no inbound
// header established a value.
func (e *ExecutionContext) Flags() byte {
	if !e.flagsSet {
		return FlagSampled
	}
	return e.flags
}

// EnterSpan generates a span ID for a new instrumented operation and makes
// it active. If a span is already active it becomes the new span's parent,
// and its identity is pushed onto the stack so arbitrarily nested calls
// restore correctly on exit.
func (e *ExecutionContext) EnterSpan() string {
	id := e.gen.NewSpanID()
	if e.spanID != "" {
		e.stack = append(e.stack, spanFrame{spanID: e.spanID, parentSpanID: e.parentSpanID})
		e.parentSpanID = e.spanID
	}
	e.spanID = id
	return id
}

// ExitSpan restores the identity active before the matching EnterSpan.
func (e *ExecutionContext) ExitSpan() {
	if n := len(e.stack); n > 0 {
		top := e.stack[n-1]
		e.stack = e.stack[:n-1]
		e.spanID = top.spanID
		e.parentSpanID = top.parentSpanID
		return
	}
	e.spanID = ""
}

// Clear resets all fields. Call at the natural end of a unit of work.
func (e *ExecutionContext) Clear() {
	e.traceID = ""
	e.spanID = ""
	e.parentSpanID = ""
	e.traceState = ""
	e.flags = 0
	e.flagsSet = false
	e.stack = nil
}

// ParseTraceparent parses a W3C traceparent header of the form
// "00-<32 hex trace id>-<16 hex span id>-<2 hex flags>". On success the
// trace ID, parent span ID, and flags are stored and true is returned. On
// any structural violation the context is left untouched and false is
// returned; the caller falls back to GetOrCreateTraceID to start a fresh
// root trace.
func (e *ExecutionContext) ParseTraceparent(header string) bool {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 {
		return false
	}
	if parts[0] != traceparentVersion {
		return false
	}
	traceID := strings.ToLower(parts[1])
	spanID := strings.ToLower(parts[2])
	if len(traceID) != 32 || !isHex(traceID) {
		return false
	}
	if len(spanID) != 16 || !isHex(spanID) {
		return false
	}
	if len(parts[3]) != 2 || !isHex(strings.ToLower(parts[3])) {
		return false
	}
	flags, err := hex.DecodeString(strings.ToLower(parts[3]))
	if err != nil {
		return false
	}

	e.traceID = traceID
	e.parentSpanID = spanID
	e.flags = flags[0]
	e.flagsSet = true
	return true
}

// Traceparent assembles the outbound W3C traceparent header from the
// current context, generating a span ID if none is active.
func (e *ExecutionContext) Traceparent() string {
	traceID := e.GetOrCreateTraceID()
	if e.spanID == "" {
		e.spanID = e.gen.NewSpanID()
	}
	return fmt.Sprintf("%s-%s-%s-%02x", traceparentVersion, traceID, e.spanID, e.Flags())
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HexToBytes converts a hex textual ID to its fixed-width binary form:
// 16 bytes for trace IDs, 8 for span IDs. It is only ever invoked on IDs
// produced by this package's generator, so input length is always even;
// callers must not feed arbitrary external strings without validating
// length parity first.
func HexToBytes(s string) []byte {
	b, _ := hex.DecodeString(strings.ToLower(s))
	return b
}

// BytesToHex converts a binary ID back to its lowercase hex textual form.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

type executionKeyType struct{}

var executionKey executionKeyType

// WithExecution returns a context carrying the given execution context.
func WithExecution(ctx context.Context, e *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionKey, e)
}

// FromContext extracts the execution context, or nil if none is present.
func FromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if e, ok := ctx.Value(executionKey).(*ExecutionContext); ok {
		return e
	}
	return nil
}

// Execution returns the execution context carried by ctx, creating and
// attaching one lazily on first access.
func Execution(ctx context.Context) (context.Context, *ExecutionContext) {
	if e := FromContext(ctx); e != nil {
		return ctx, e
	}
	e := NewExecutionContext(nil)
	return WithExecution(ctx, e), e
}
