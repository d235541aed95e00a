package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/app"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "ingestor",
	Short:         "Manage face enrollments",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// openApp loads config and connects the backends. Logs go to stderr so
// command output on stdout stays parseable.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log := observability.NewLogger(os.Stderr, cfg.Logging.Level, "text")
	slog.SetDefault(log)

	a, err := app.New(ctx, cfg, log, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}
