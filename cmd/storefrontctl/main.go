// Command storefrontctl runs catalog ingestion from the shell.
package main

import (
	"context"
	"fmt"
	"os"

	"storefront/internal/config"
	"storefront/internal/logger"

	"github.com/spf13/cobra"
)

var (
	// cfgFile is exported as CONFIG_FILE before the configuration loads.
	cfgFile  string
	logLevel string
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Manage storefront product catalogs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(newSyncCommand(), newParseFeedCommand())
	return root
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
