package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abq-pulse/trafficwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trafficwatch",
	Short: "Venue traffic collection and event impact correlation",
	Long:  "Collects point traffic readings around venues on a rotating baseline schedule and during events, under a shared daily API quota, and correlates the two to estimate per-event traffic impact.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
