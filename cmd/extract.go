package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/extract"
	"github.com/bishleshok-ai/bishleshok/internal/media"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <path|gs://bucket/object>...",
	Short: "Extract and save records from receipt images or PDFs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		wantGCS := false
		for _, a := range args {
			if media.IsGCSURI(a) {
				wantGCS = true
			}
		}
		env, err := initApp(ctx, appOptions{mode: "extract", echo: cmd.ErrOrStderr(), gcs: wantGCS})
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		var failed int
		for _, src := range args {
			blob, err := env.Loader.Load(ctx, src)
			if err != nil {
				zap.L().Error("load input failed", zap.String("source", src), zap.Error(err))
				failed++
				continue
			}
			archive(cmd, env, blob)

			res, err := env.Receipts.Process(ctx, extract.Input{Name: blob.Name, MIMEType: blob.MIMEType, Data: blob.Data})
			if err != nil {
				failed++
				continue
			}
			if err := enc.Encode(map[string]any{"id": res.ID, "record": res.Record}); err != nil {
				return eris.Wrap(err, "encode result")
			}
		}
		if failed > 0 {
			return eris.Errorf("receipt: %d of %d inputs failed", failed, len(args))
		}
		return nil
	},
}

var voiceCmd = &cobra.Command{
	Use:   "voice <audio-file>",
	Short: "Extract and save a record from a recorded Bangla voice memo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		noSpeak, _ := cmd.Flags().GetBool("no-speak")
		env, err := initApp(ctx, appOptions{
			mode:    "extract",
			echo:    cmd.ErrOrStderr(),
			gcs:     media.IsGCSURI(args[0]),
			speaker: !noSpeak,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		blob, err := env.Loader.Load(ctx, args[0])
		if err != nil {
			return err
		}
		archive(cmd, env, blob)

		res, err := env.Voice.Process(ctx, extract.Input{Name: blob.Name, MIMEType: blob.MIMEType, Data: blob.Data})
		if err != nil {
			return err
		}
		if res.ConfirmationErr != nil {
			zap.L().Warn("spoken confirmation failed", zap.Error(res.ConfirmationErr))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"id": res.ID, "record": res.Record})
	},
}

// archive copies the raw input to the archive bucket, if one is set.
// Failures only warn.
func archive(cmd *cobra.Command, env *appEnv, blob *media.Blob) {
	if env.Archiver == nil {
		return
	}
	uri, err := env.Archiver.Archive(cmd.Context(), blob)
	if err != nil {
		zap.L().Warn("archive input failed", zap.String("name", blob.Name), zap.Error(err))
		return
	}
	zap.L().Debug("input archived", zap.String("uri", uri))
}

func init() {
	voiceCmd.Flags().Bool("no-speak", false, "do not play the spoken confirmation")

	rootCmd.AddCommand(receiptCmd)
	rootCmd.AddCommand(voiceCmd)
}
