package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "site-screener",
	Short: "BESS candidate site evaluation and screening",
	Long:  "Scores candidate battery storage sites against grid, setback, road and pole layers, keeps an append-only evaluation history, and screens sites by their current evaluation.",
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
