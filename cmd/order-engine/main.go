package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/config"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/telemetry"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "order-engine",
		Short:         "Order lifecycle and payment orchestration engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recoverCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and installs logging and tracing. The returned
// func flushes pending spans.
func setup(ctx context.Context) (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.ServiceName, slog.LevelInfo)
	slog.SetDefault(logger)

	shutdown, err := telemetry.SetupTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	flush := func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer shutdown", "err", err)
		}
	}
	return cfg, logger, flush, nil
}
