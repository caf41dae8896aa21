package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the business analyst about your records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, appOptions{mode: "ask"})
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.loadSnapshot(ctx); err != nil {
			return err
		}

		lease := env.Busy.Acquire("Thinking")
		ans, err := env.Assistant.Ask(ctx, strings.Join(args, " "), env.Store.Records())
		lease.Release()
		if ans != nil {
			fmt.Fprintln(os.Stdout, ans.Markdown)
		}
		return err
	},
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show the top fast-moving goods in Bangladesh right now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, appOptions{mode: "trends"})
		if err != nil {
			return err
		}
		defer env.Close()

		t, err := env.Assistant.Trends(ctx)
		if t != nil {
			for i, item := range t.Items {
				fmt.Fprintf(os.Stdout, "%d. %s\n", i+1, item)
			}
			if t.Summary != "" {
				if len(t.Items) > 0 {
					fmt.Fprintln(os.Stdout)
				}
				fmt.Fprintln(os.Stdout, t.Summary)
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(trendsCmd)
}
