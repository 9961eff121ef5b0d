package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcnelson/opnsense-access-control/internal/app"
	"github.com/bcnelson/opnsense-access-control/internal/config"
	"github.com/bcnelson/opnsense-access-control/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "accessctl",
		Short:        "Toggle device internet access through an OPNsense firewall alias",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newToggleCmd("on", "Allow internet access for a device", true),
		newToggleCmd("off", "Block internet access for a device", false),
		newReloadCmd(),
		newLeasesCmd(),
	)
	return rootCmd
}

// loadConfig reads and validates the environment configuration and builds the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// withApp builds the stack, runs fn and closes the stack.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Service.Restore(ctx); err != nil {
		logger.Warn("failed to restore switch snapshots", "error", err)
	}
	return fn(a)
}
