package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bishleshok",
	Short: "Receipt and voice sales capture with business analytics",
	Long:  "Extracts sales records from receipt images, PDFs and Bangla voice memos via Gemini, keeps them in a per-user collection, and derives KPIs, anomalies, forecasts and answers from them.",
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
