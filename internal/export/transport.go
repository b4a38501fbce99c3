package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// Result reports the outcome of one export call. A non-zero RejectedSpans
// with a nil error means the backend accepted the batch partially.
type Result struct {
	RejectedSpans int64
	ErrorMessage  string
}

// Transport sends one batch of spans to the telemetry backend. Export is
// called synchronously from the exporter's worker goroutine only, never
// from a producer, and must not block longer than a bounded timeout.
type Transport interface {
	Export(ctx context.Context, batch trace.Batch) (Result, error)
	Close() error
}

// TransportConfig configures the HTTP transport.
type TransportConfig struct {
	Endpoint    string
	APIKey      string
	BearerToken string
	Timeout     time.Duration

	TLS struct {
		Enabled    bool
		CAFile     string
		SkipVerify bool
	}

	// ProbeGRPC dials the endpoint's gRPC port and issues a health check at
	// startup so a misconfigured endpoint surfaces in the logs immediately
	// instead of on the first batch.
	ProbeGRPC bool
}

// HTTPTransport wraps batches into the OTLP/JSON envelope and posts them to
// {endpoint}/v1/traces.
type HTTPTransport struct {
	config TransportConfig
	logger *zap.Logger

	client   *http.Client
	url      string
	grpcConn *grpc.ClientConn
}

// NewHTTPTransport creates the transport and, when configured, probes the
// endpoint over gRPC. A failed probe is logged but never fatal: delivery is
// best-effort by design.
func NewHTTPTransport(cfg TransportConfig, logger *zap.Logger) (*HTTPTransport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("transport endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}

	t := &HTTPTransport{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.Timeout},
		url:    fmt.Sprintf("%s://%s/v1/traces", scheme, cfg.Endpoint),
	}

	if cfg.ProbeGRPC {
		t.probeGRPC()
	}

	return t, nil
}

func (t *HTTPTransport) probeGRPC() {
	var opts []grpc.DialOption
	if t.config.TLS.Enabled {
		creds, err := credentials.NewClientTLSFromFile(t.config.TLS.CAFile, "")
		if err != nil {
			t.logger.Warn("Failed to load TLS credentials for probe", zap.Error(err))
			return
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.Dial(t.config.Endpoint, opts...)
	if err != nil {
		t.logger.Warn("Failed to dial collector endpoint", zap.Error(err))
		return
	}
	t.grpcConn = conn

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.logger.Warn("Collector health probe failed",
			zap.String("endpoint", t.config.Endpoint),
			zap.Error(err),
		)
		return
	}
	t.logger.Info("Collector endpoint reachable",
		zap.String("endpoint", t.config.Endpoint),
		zap.String("status", resp.GetStatus().String()),
	)
}

// Export posts one batch and interprets the backend's reply. A transport
// error or HTTP failure status means the whole batch was lost; a
// partialSuccess body reports how many spans the backend rejected.
func (t *HTTPTransport) Export(ctx context.Context, batch trace.Batch) (Result, error) {
	payload, err := marshalBatch(batch)
	if err != nil {
		return Result{}, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.config.APIKey != "" {
		req.Header.Set("X-API-Key", t.config.APIKey)
	}
	if t.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.BearerToken)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var reply exportResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &reply); err != nil {
			// A malformed success body is not worth failing the batch over.
			return Result{}, nil
		}
	}
	return Result{
		RejectedSpans: reply.PartialSuccess.RejectedSpans,
		ErrorMessage:  reply.PartialSuccess.ErrorMessage,
	}, nil
}

// Close releases the probe connection, if any.
func (t *HTTPTransport) Close() error {
	if t.grpcConn != nil {
		return t.grpcConn.Close()
	}
	return nil
}
