// Package agent wires the tracing core together: resource detection,
// transport, batching exporter, recorder, diagnostics server, and config
// watching.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Artur-Abalov/Kortex-agent/internal/config"
	"github.com/Artur-Abalov/Kortex-agent/internal/export"
	"github.com/Artur-Abalov/Kortex-agent/internal/hostinfo"
	"github.com/Artur-Abalov/Kortex-agent/internal/instrument"
	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// Version is the agent release version, reported as the instrumentation
// scope version on every exported batch.
const Version = "0.1.0"

// ScopeName is the fixed identity of this instrumentation library.
const ScopeName = "github.com/Artur-Abalov/Kortex-agent"

// Agent owns the tracing runtime for one process.
type Agent struct {
	config *config.Config
	logger *zap.Logger
	level  zap.AtomicLevel

	registry *prometheus.Registry
	exporter *export.Exporter
	recorder *instrument.Recorder

	healthServer *http.Server

	mu      sync.RWMutex
	running bool
}

// New builds an agent from configuration. The exporter is created but not
// started; Run starts it.
func New(cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel) (*Agent, error) {
	a := &Agent{
		config:   cfg,
		logger:   logger,
		level:    level,
		registry: prometheus.NewRegistry(),
	}

	transportCfg := export.TransportConfig{
		Endpoint:    cfg.Export.Endpoint,
		APIKey:      cfg.Export.Auth.APIKey,
		BearerToken: cfg.Export.Auth.BearerToken,
		Timeout:     cfg.Export.Timeout,
		ProbeGRPC:   cfg.Export.ProbeGRPC,
	}
	transportCfg.TLS.Enabled = cfg.Export.TLS.Enabled
	transportCfg.TLS.CAFile = cfg.Export.TLS.CAFile
	transportCfg.TLS.SkipVerify = cfg.Export.TLS.SkipVerify

	transport, err := export.NewHTTPTransport(transportCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	resource := hostinfo.Detect(cfg.Agent.ServiceName, cfg.Agent.ServiceVersion, cfg.Agent.Environment)
	scope := trace.Scope{Name: ScopeName, Version: Version}

	a.exporter = export.New(
		export.Config{
			MaxBatchSize:  cfg.Export.Batch.MaxSize,
			BatchTimeout:  cfg.Export.Batch.Timeout,
			QueueCapacity: cfg.Export.Queue.Capacity,
			ExportTimeout: cfg.Export.Timeout,
			ShutdownGrace: cfg.Export.ShutdownGrace,
		},
		transport, resource, scope, logger,
		export.WithMetrics(export.NewMetrics(a.registry)),
	)
	a.recorder = instrument.NewRecorder(a.exporter, logger)

	return a, nil
}

// Recorder returns the instrumentation entry point for the interception
// layer.
func (a *Agent) Recorder() *instrument.Recorder {
	return a.recorder
}

// Run starts the agent and blocks until ctx is cancelled, then drains and
// stops the exporter.
func (a *Agent) Run(ctx context.Context, configPath string) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent already running")
	}
	a.running = true
	a.mu.Unlock()

	a.exporter.Start()
	a.startHealthServer()

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, a.logger, a.applyConfig); err != nil {
				a.logger.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	a.logger.Info("Agent started",
		zap.String("service", a.config.Agent.ServiceName),
		zap.String("endpoint", a.config.Export.Endpoint),
	)

	<-ctx.Done()
	a.logger.Info("Shutting down agent")

	a.stopHealthServer()
	a.exporter.Shutdown()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	return nil
}

// applyConfig applies the hot-reloadable subset of a changed config. Only
// the log level takes effect live; everything else needs a restart.
func (a *Agent) applyConfig(cfg *config.Config) {
	if cfg.Agent.LogLevel != a.config.Agent.LogLevel {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(cfg.Agent.LogLevel)); err != nil {
			a.logger.Warn("Invalid log level in config", zap.String("level", cfg.Agent.LogLevel))
		} else {
			a.level.SetLevel(lvl)
			a.config.Agent.LogLevel = cfg.Agent.LogLevel
			a.logger.Info("Log level updated", zap.String("level", cfg.Agent.LogLevel))
		}
	}
	if cfg.Export.Endpoint != a.config.Export.Endpoint {
		a.logger.Info("Export endpoint changed, restart required to apply")
	}
}

func (a *Agent) startHealthServer() {
	if a.config.Agent.HealthPort <= 0 {
		return
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if a.exporter.State() == export.StateRunning {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Ready"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
		}
	})

	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.healthServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Agent.HealthPort),
		Handler: mux,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("Health server error", zap.Error(err))
		}
	}()

	a.logger.Info("Health server started", zap.Int("port", a.config.Agent.HealthPort))
}

func (a *Agent) stopHealthServer() {
	if a.healthServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.healthServer.Shutdown(ctx)
	}
}
