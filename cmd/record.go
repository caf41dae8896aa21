package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice memo from the microphone and extract it",
	Long:  "Starts a microphone session that ends on Enter or after recorder.max_seconds, then runs the voice pipeline on the captured audio.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		noSpeak, _ := cmd.Flags().GetBool("no-speak")
		env, err := initApp(ctx, appOptions{mode: "extract", echo: cmd.ErrOrStderr(), speaker: !noSpeak})
		if err != nil {
			return err
		}
		defer env.Close()

		rec := newRecorder(env)
		if err := rec.Start(ctx); err != nil {
			return err
		}
		done := rec.Done()
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Recording (max %ds). Press Enter to stop.\n", cfg.Recorder.MaxSeconds)

		enter := make(chan struct{})
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()

		select {
		case <-enter:
			_ = rec.Stop()
			<-done
			return rec.Err()
		case <-done:
			return rec.Err()
		case <-ctx.Done():
			_ = rec.Stop()
			return ctx.Err()
		}
	},
}

func init() {
	recordCmd.Flags().Bool("no-speak", false, "do not play the spoken confirmation")
	rootCmd.AddCommand(recordCmd)
}
