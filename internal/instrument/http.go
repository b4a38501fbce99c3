package instrument

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Artur-Abalov/Kortex-agent/internal/sanitize"
	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// TraceparentHeader and TracestateHeader are the W3C trace context headers.
const (
	TraceparentHeader = "traceparent"
	TracestateHeader  = "tracestate"
)

// Middleware wraps an http.Handler with SERVER span creation. Inbound
// traceparent headers continue the caller's trace; a malformed header falls
// back to a fresh root trace. The execution context is cleared when the
// request ends so a pooled goroutine never leaks a stale identity into
// unrelated work.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, op := r.startServer(req)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req.WithContext(ctx))

		r.finishServer(ctx, op, sw.status)
	})
}

func (r *Recorder) startServer(req *http.Request) (outCtx context.Context, op *Operation) {
	outCtx = req.Context()
	defer r.suppress("start server span")

	outCtx, ec := trace.Execution(req.Context())
	if tp := req.Header.Get(TraceparentHeader); tp != "" {
		if !ec.ParseTraceparent(tp) {
			r.logger.Debug("Malformed traceparent header, starting fresh trace")
		}
	}
	if ts := req.Header.Get(TracestateHeader); ts != "" {
		ec.SetTraceState(ts)
	}

	attrs := []trace.KeyValue{
		trace.String("http.method", req.Method),
		trace.String("url.path", req.URL.Path),
	}
	for _, name := range r.captureHeaders {
		if v := req.Header.Get(name); v != "" {
			key := "http.request.header." + strings.ToLower(name)
			attrs = append(attrs, trace.String(key, sanitize.Header(name, v)))
		}
	}

	name := req.Method + " " + req.URL.Path
	outCtx, op = r.StartOperation(outCtx, name, trace.SpanKindServer, attrs...)
	return outCtx, op
}

func (r *Recorder) finishServer(ctx context.Context, op *Operation, status int) {
	defer r.suppress("finish server span")

	op.SetAttribute(trace.Int64("http.status_code", int64(status)))
	var err error
	if status >= http.StatusInternalServerError {
		err = fmt.Errorf("HTTP %d", status)
	}
	op.End(err)

	// End of the unit of work: drop the trace identity entirely.
	if ec := trace.FromContext(ctx); ec != nil {
		ec.Clear()
	}
}

// statusWriter records the response code for span attribution.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RoundTripper wraps an http.RoundTripper with CLIENT span creation and
// outbound trace context injection. The tracestate value is forwarded
// unmodified.
func (r *Recorder) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &tracingRoundTripper{rec: r, base: base}
}

type tracingRoundTripper struct {
	rec  *Recorder
	base http.RoundTripper
}

func (t *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, op := t.rec.startClient(req)
	req = t.rec.inject(req.WithContext(ctx))

	resp, err := t.base.RoundTrip(req)

	t.rec.finishClient(op, resp, err)
	return resp, err
}

func (r *Recorder) startClient(req *http.Request) (outCtx context.Context, op *Operation) {
	outCtx = req.Context()
	defer r.suppress("start client span")

	name := req.Method + " " + req.URL.Host
	outCtx, op = r.StartOperation(outCtx, name, trace.SpanKindClient,
		trace.String("http.method", req.Method),
		trace.String("url.full", req.URL.String()),
	)
	return outCtx, op
}

// inject writes the W3C headers for the active span onto the outbound
// request. Requests are cloned before mutation per http.RoundTripper rules.
func (r *Recorder) inject(req *http.Request) *http.Request {
	defer r.suppress("inject trace context")

	ec := trace.FromContext(req.Context())
	if ec == nil {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set(TraceparentHeader, ec.Traceparent())
	if ts := ec.TraceState(); ts != "" {
		out.Header.Set(TracestateHeader, ts)
	}
	return out
}

func (r *Recorder) finishClient(op *Operation, resp *http.Response, err error) {
	defer r.suppress("finish client span")

	if resp != nil {
		op.SetAttribute(trace.Int64("http.status_code", int64(resp.StatusCode)))
		if err == nil && resp.StatusCode >= http.StatusBadRequest {
			err = fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}
	op.End(err)
}
