package export

import (
	"encoding/json"

	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// OTLP/JSON wire envelope: resourceSpans -> scopeSpans -> spans. The
// three-level nesting is how the backend attributes telemetry to a
// producing library and a monitored entity.

type envelope struct {
	ResourceSpans []resourceSpans `json:"resourceSpans"`
}

type resourceSpans struct {
	Resource   wireResource `json:"resource"`
	ScopeSpans []scopeSpans `json:"scopeSpans"`
}

type wireResource struct {
	Attributes []wireKeyValue `json:"attributes,omitempty"`
}

type scopeSpans struct {
	Scope wireScope  `json:"scope"`
	Spans []wireSpan `json:"spans"`
}

type wireScope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type wireKeyValue struct {
	Key   string    `json:"key"`
	Value wireValue `json:"value"`
}

type wireValue struct {
	StringValue *string        `json:"stringValue,omitempty"`
	BoolValue   *bool          `json:"boolValue,omitempty"`
	IntValue    *int64         `json:"intValue,omitempty"`
	DoubleValue *float64       `json:"doubleValue,omitempty"`
	BytesValue  []byte         `json:"bytesValue,omitempty"`
	ArrayValue  *wireArray     `json:"arrayValue,omitempty"`
	KvlistValue *wireKeyValues `json:"kvlistValue,omitempty"`
}

type wireArray struct {
	Values []wireValue `json:"values"`
}

type wireKeyValues struct {
	Values []wireKeyValue `json:"values"`
}

type wireSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId,omitempty"`
	TraceState        string         `json:"traceState,omitempty"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano int64          `json:"startTimeUnixNano"`
	EndTimeUnixNano   int64          `json:"endTimeUnixNano"`
	Attributes        []wireKeyValue `json:"attributes,omitempty"`
	Status            wireStatus     `json:"status"`
	Flags             uint32         `json:"flags,omitempty"`
}

type wireStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// exportResponse is the backend's reply; partialSuccess is set when some
// spans were rejected.
type exportResponse struct {
	PartialSuccess struct {
		RejectedSpans int64  `json:"rejectedSpans"`
		ErrorMessage  string `json:"errorMessage"`
	} `json:"partialSuccess"`
}

func marshalBatch(batch trace.Batch) ([]byte, error) {
	spans := make([]wireSpan, len(batch.Spans))
	for i := range batch.Spans {
		spans[i] = encodeSpan(&batch.Spans[i])
	}

	env := envelope{
		ResourceSpans: []resourceSpans{{
			Resource: wireResource{Attributes: encodeAttributes(batch.Resource.Attributes)},
			ScopeSpans: []scopeSpans{{
				Scope: wireScope{Name: batch.Scope.Name, Version: batch.Scope.Version},
				Spans: spans,
			}},
		}},
	}
	return json.Marshal(env)
}

func encodeSpan(s *trace.Span) wireSpan {
	return wireSpan{
		TraceID:           s.TraceID,
		SpanID:            s.SpanID,
		ParentSpanID:      s.ParentSpanID,
		TraceState:        s.TraceState,
		Name:              s.Name,
		Kind:              int(s.Kind),
		StartTimeUnixNano: s.StartTime.UnixNano(),
		EndTimeUnixNano:   s.EndTime.UnixNano(),
		Attributes:        encodeAttributes(s.Attributes),
		Status: wireStatus{
			Code:    int(s.Status.Code),
			Message: s.Status.Message,
		},
		Flags: uint32(s.Flags),
	}
}

func encodeAttributes(attrs []trace.KeyValue) []wireKeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]wireKeyValue, len(attrs))
	for i, kv := range attrs {
		out[i] = wireKeyValue{Key: kv.Key, Value: encodeValue(kv.Value)}
	}
	return out
}

func encodeValue(v trace.AnyValue) wireValue {
	switch v.Type {
	case trace.ValueTypeBool:
		b := v.Bool
		return wireValue{BoolValue: &b}
	case trace.ValueTypeInt64:
		n := v.Int
		return wireValue{IntValue: &n}
	case trace.ValueTypeDouble:
		d := v.Double
		return wireValue{DoubleValue: &d}
	case trace.ValueTypeBytes:
		return wireValue{BytesValue: v.Bytes}
	case trace.ValueTypeArray:
		arr := &wireArray{Values: make([]wireValue, len(v.Array))}
		for i, el := range v.Array {
			arr.Values[i] = encodeValue(el)
		}
		return wireValue{ArrayValue: arr}
	case trace.ValueTypeKeyValueList:
		return wireValue{KvlistValue: &wireKeyValues{Values: encodeAttributes(v.KVList)}}
	default:
		s := v.Str
		return wireValue{StringValue: &s}
	}
}
