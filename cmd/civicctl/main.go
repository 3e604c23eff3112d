package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/observability"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "civicctl",
	Short: "Operational commands for the civic request service",
	Long: `civicctl runs maintenance tasks against the same storage the API uses.

Configuration is read from the environment and an optional .env file:
  POSTGRES_DSN        primary store (required for migrate)
  REDIS_ENABLED       take per-request locks during sweeps
  SLA_DEFAULT_HOURS   fallback SLA when nothing else applies`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logger, err = observability.NewLogger(cfg.Logger)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
