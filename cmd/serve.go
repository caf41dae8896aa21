package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bishleshok-ai/bishleshok/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Follows the user's record collection and serves uploads, recording, analytics, export and the assistant over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, appOptions{mode: "serve", speaker: cfg.Audio.PlayerCommand != ""})
		if err != nil {
			return err
		}
		defer env.Close()

		deps := api.Deps{
			Store:          env.Store,
			Engine:         env.Engine,
			Board:          env.Board,
			Busy:           env.Busy,
			Clips:          env.Clips,
			BaseCtx:        ctx,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		if env.Receipts != nil {
			deps.Receipts = env.Receipts
		}
		if env.Voice != nil {
			deps.Voice = env.Voice
			deps.Recorder = newRecorder(env)
		}
		if env.Assistant != nil {
			deps.Assistant = env.Assistant
		}
		if env.Archiver != nil {
			deps.Archiver = env.Archiver
		}
		srv := api.New(deps)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Store.Run(gctx)
		})
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			err := httpSrv.Shutdown(shutdownCtx)
			srv.Wait()
			return err
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
