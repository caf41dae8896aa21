package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/notionsync"
	"github.com/bishleshok-ai/bishleshok/pkg/notion"
)

var notionSyncCmd = &cobra.Command{
	Use:   "notion-sync",
	Short: "Mirror saved records into a Notion database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, appOptions{mode: "notion"})
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.loadSnapshot(ctx); err != nil {
			return err
		}

		syncer := notionsync.New(notion.NewClient(cfg.Notion.Token), cfg.Notion.DatabaseID)
		res, err := syncer.Sync(ctx, env.Store.Documents())
		if err != nil {
			return err
		}
		zap.L().Info("notion sync complete",
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
		return json.NewEncoder(os.Stdout).Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(notionSyncCmd)
}
