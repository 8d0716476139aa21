package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rubberbot/internal/config"
	"rubberbot/internal/logging"
)

var (
	cfgPath string
	cfg     *config.AppConfig
	logger  *zap.Logger

	rootCmd = &cobra.Command{
		Use:           "rubberbot",
		Short:         "Rubber cultivation question answering over a curated knowledge corpus.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional
			_ = godotenv.Load()

			var err error
			if cfgPath == "" {
				cfg, _, err = config.LoadDefault()
			} else {
				cfg, err = config.Load(cfgPath)
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (uses ./config.yaml or ~/.config/rubberbot/config.yaml if not provided)")
	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, topicsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rubberbot:", err)
		os.Exit(1)
	}
}
