// Package trace defines the span data model and the per-execution trace
// context used by the instrumentation layer to build and propagate spans.
package trace

import "time"

// SpanKind classifies the role of a span within a trace.
type SpanKind int

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindInternal
	SpanKindServer
	SpanKindClient
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindInternal:
		return "INTERNAL"
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	default:
		return "UNSPECIFIED"
	}
}

// StatusCode represents the outcome of the operation a span describes.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// Status combines a status code with an optional human-readable message.
type Status struct {
	Code    StatusCode
	Message string
}

// ValueType discriminates the variants of AnyValue.
type ValueType int

const (
	ValueTypeString ValueType = iota
	ValueTypeBool
	ValueTypeInt64
	ValueTypeDouble
	ValueTypeBytes
	ValueTypeArray
	ValueTypeKeyValueList
)

// AnyValue is a typed attribute value. Only one field matching Type is set.
// The tracing core itself only produces string values; the other variants
// exist so exported attributes stay queryable without reparsing strings.
type AnyValue struct {
	Type   ValueType
	Str    string
	Bool   bool
	Int    int64
	Double float64
	Bytes  []byte
	Array  []AnyValue
	KVList []KeyValue
}

// KeyValue is a single span, resource, or scope attribute.
// Keys are unique within one attribute list.
type KeyValue struct {
	Key   string
	Value AnyValue
}

// String builds a string-valued attribute.
func String(key, value string) KeyValue {
	return KeyValue{Key: key, Value: AnyValue{Type: ValueTypeString, Str: value}}
}

// Bool builds a bool-valued attribute.
func Bool(key string, value bool) KeyValue {
	return KeyValue{Key: key, Value: AnyValue{Type: ValueTypeBool, Bool: value}}
}

// Int64 builds an int64-valued attribute.
func Int64(key string, value int64) KeyValue {
	return KeyValue{Key: key, Value: AnyValue{Type: ValueTypeInt64, Int: value}}
}

// Double builds a float64-valued attribute.
func Double(key string, value float64) KeyValue {
	return KeyValue{Key: key, Value: AnyValue{Type: ValueTypeDouble, Double: value}}
}

// Span is one timed unit of work within a trace. A span is constructed once
// by the instrumentation layer and never mutated after it is handed to the
// exporter. IDs are lowercase hex: 32 characters for TraceID, 16 for SpanID
// and ParentSpanID. ParentSpanID is empty for root spans.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	Kind         SpanKind
	StartTime    time.Time
	EndTime      time.Time
	Attributes   []KeyValue
	Status       Status
	TraceState   string
	Flags        byte
}

// Duration returns the elapsed time between start and end.
func (s *Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Resource identifies the monitored process or service. May be empty.
type Resource struct {
	Attributes []KeyValue
}

// Scope is the fixed identity of the producing instrumentation library,
// constant for the process lifetime.
type Scope struct {
	Name    string
	Version string
}

// Batch groups spans under one scope and one resource for export.
type Batch struct {
	Resource Resource
	Scope    Scope
	Spans    []Span
}
