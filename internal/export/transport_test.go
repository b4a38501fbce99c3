package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

func singleSpanBatch() trace.Batch {
	now := time.Now()
	return trace.Batch{
		Scope: trace.Scope{Name: "kortex"},
		Spans: []trace.Span{{
			TraceID:   "0af7651916cd43dd8448eb211c80319c",
			SpanID:    "b7ad6b7169203331",
			Name:      "op",
			StartTime: now,
			EndTime:   now,
		}},
	}
}

func newTestTransport(t *testing.T, handler http.HandlerFunc, cfg TransportConfig) *HTTPTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.Endpoint = strings.TrimPrefix(srv.URL, "http://")
	tr, err := NewHTTPTransport(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("transport creation failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestExportSuccess(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}, TransportConfig{})

	result, err := tr.Export(context.Background(), singleSpanBatch())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if result.RejectedSpans != 0 {
		t.Errorf("expected no rejections, got %d", result.RejectedSpans)
	}
	if gotPath != "/v1/traces" {
		t.Errorf("expected POST to /v1/traces, got %q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}

	var env map[string]any
	if err := json.Unmarshal(gotBody, &env); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if _, ok := env["resourceSpans"]; !ok {
		t.Error("body missing resourceSpans")
	}
}

func TestExportAuthHeaders(t *testing.T) {
	var apiKey, auth string
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-Key")
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}, TransportConfig{APIKey: "k123", BearerToken: "t456"})

	if _, err := tr.Export(context.Background(), singleSpanBatch()); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if apiKey != "k123" {
		t.Errorf("expected X-API-Key header, got %q", apiKey)
	}
	if auth != "Bearer t456" {
		t.Errorf("expected bearer Authorization header, got %q", auth)
	}
}

func TestExportPartialSuccess(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"partialSuccess":{"rejectedSpans":3,"errorMessage":"attribute limit"}}`))
	}, TransportConfig{})

	result, err := tr.Export(context.Background(), singleSpanBatch())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if result.RejectedSpans != 3 {
		t.Errorf("expected 3 rejected spans, got %d", result.RejectedSpans)
	}
	if result.ErrorMessage != "attribute limit" {
		t.Errorf("expected backend message, got %q", result.ErrorMessage)
	}
}

func TestExportServerError(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}, TransportConfig{})

	if _, err := tr.Export(context.Background(), singleSpanBatch()); err == nil {
		t.Fatal("expected an error for HTTP 503")
	}
}

func TestExportMalformedSuccessBody(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}, TransportConfig{})

	result, err := tr.Export(context.Background(), singleSpanBatch())
	if err != nil {
		t.Fatalf("a 200 with a bad body should not fail the batch: %v", err)
	}
	if result.RejectedSpans != 0 {
		t.Errorf("expected no rejections, got %d", result.RejectedSpans)
	}
}

func TestExportHonorsContext(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel r.Context(); with unread body bytes
		// the cancellation never fires and srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}, TransportConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := tr.Export(ctx, singleSpanBatch()); err == nil {
		t.Fatal("expected a context deadline error")
	}
}

func TestNewHTTPTransportRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPTransport(TransportConfig{}, zap.NewNop()); err == nil {
		t.Fatal("expected an error for a missing endpoint")
	}
}
