package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stockdesk/backend/pkg/config"
	appLogger "github.com/stockdesk/backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "stockdesk",
	Short: "Grounded warehouse assistant",
	Long: `stockdesk answers questions about stock levels, product composition and
goods movements from the warehouse database, phrased by a language model.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(evalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates config, then starts the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
