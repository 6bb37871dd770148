package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"evcsedge/backend/libs/logging"
	"evcsedge/backend/services/evcs-edge/internal/app"
	"evcsedge/backend/services/evcs-edge/internal/config"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "evcs-edge",
		Short: "OCPP 1.6J charge point controller",
		Long: `evcs-edge accepts OCPP 1.6J charge points over WebSocket, exposes every
configured connector as an EVCS component and enforces charge power limits
on a fixed control cycle.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: CONFIG_FILE or environment only)")
	root.AddCommand(runCmd(), checkConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the controller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger, err := logging.NewLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to init application", zap.Error(err))
				return err
			}
			defer application.Close()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("application stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			chargers := cfg.EnabledChargers()
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d charger(s), %d grid meter(s), timedata backend %s\n",
				len(chargers), len(cfg.Simulator.GridMeters), cfg.Timedata.Backend)
			for _, ch := range chargers {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s connector %d (managed=%t)\n", ch.ID, ch.OcppID, ch.ConnectorID, ch.Managed)
			}
			return nil
		},
	}
}
