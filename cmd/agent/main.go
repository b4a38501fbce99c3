// Kortex tracing agent.
//
// Runs the tracing runtime that backs zero-code-change instrumentation:
// per-execution trace context, span assembly with sensitive-data redaction,
// and best-effort batched export to a telemetry backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Artur-Abalov/Kortex-agent/internal/agent"
	"github.com/Artur-Abalov/Kortex-agent/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kortex-agent",
		Short: "Kortex tracing agent - best-effort span batching and export",
		Long: `Kortex tracing agent manages trace context, assembles sanitized spans,
and exports them in batches to a telemetry backend. Delivery is
best-effort by design: the host application's latency always wins
over telemetry completeness.`,
		Version: agent.Version,
		RunE:    run,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Agent.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, atomicLevel, err := initLogger(level)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting Kortex agent",
		zap.String("version", agent.Version),
		zap.String("config", cfgFile),
	)

	ag, err := agent.New(cfg, logger, atomicLevel)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	if err := ag.Run(ctx, cfgFile); err != nil {
		return fmt.Errorf("agent error: %w", err)
	}

	logger.Info("Agent stopped gracefully")
	return nil
}

func initLogger(level string) (*zap.Logger, zap.AtomicLevel, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	return logger, cfg.Level, err
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Configuration valid:\n%+v\n", cfg)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Kortex agent v%s\n", agent.Version)
		},
	}
}
