package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/analytics"
	"github.com/bishleshok-ai/bishleshok/internal/assistant"
	"github.com/bishleshok-ai/bishleshok/internal/audio"
	"github.com/bishleshok-ai/bishleshok/internal/busy"
	"github.com/bishleshok-ai/bishleshok/internal/collection"
	"github.com/bishleshok-ai/bishleshok/internal/cost"
	"github.com/bishleshok-ai/bishleshok/internal/extract"
	"github.com/bishleshok-ai/bishleshok/internal/identity"
	"github.com/bishleshok-ai/bishleshok/internal/media"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/recorder"
	"github.com/bishleshok-ai/bishleshok/internal/resilience"
	"github.com/bishleshok-ai/bishleshok/internal/status"
	anthropicpkg "github.com/bishleshok-ai/bishleshok/pkg/anthropic"
	"github.com/bishleshok-ai/bishleshok/pkg/gemini"
)

// appOptions selects what initApp builds.
type appOptions struct {
	// mode is passed to config.Validate.
	mode string
	// echo receives every status message; nil disables echoing.
	echo io.Writer
	// gcs opens a Cloud Storage client even when no archive bucket is set.
	gcs bool
	// speaker plays confirmations through the configured player command.
	speaker bool
}

// appEnv holds every initialized component needed by the commands.
// Components a mode does not need are nil.
type appEnv struct {
	Identity *identity.Identity
	Backend  collection.Backend
	Store    *collection.Store
	Engine   *analytics.Engine

	Board *status.Board
	Sink  status.Sink
	Busy  *busy.Indicator
	Costs *cost.Calculator

	Gemini    gemini.Client
	Receipts  *extract.ReceiptPipeline
	Voice     *extract.VoicePipeline
	Clips     *audio.ClipStore
	Assistant *assistant.Assistant

	Loader   *media.Loader
	Archiver *media.Archiver

	closers []func() error
}

// Close releases resources held by the environment, newest first.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initApp resolves the identity, opens the collection backend and builds
// the pipelines the mode needs. Callers should defer env.Close().
func initApp(ctx context.Context, opts appOptions) (*appEnv, error) {
	if err := cfg.Validate(opts.mode); err != nil {
		return nil, err
	}

	env := &appEnv{
		Board: status.NewBoard(extract.MsgReady),
		Costs: cost.NewCalculator(cfg.Pricing),
	}
	sinks := status.Multi{env.Board, status.LogSink{}}
	if opts.echo != nil {
		sinks = append(sinks, echoSink(opts.echo))
	}
	env.Sink = sinks
	env.Busy = busy.New(env.Sink)

	if opts.mode != "trends" {
		if err := env.initCollection(ctx); err != nil {
			env.Close()
			return nil, err
		}
	}

	if cfg.Gemini.Key != "" {
		env.Gemini = newGeminiClient(env.Sink, env.Costs)
	}

	if err := env.initMedia(ctx, opts.gcs); err != nil {
		env.Close()
		return nil, err
	}

	if env.Gemini != nil && env.Store != nil {
		deps := extract.Deps{
			Client:       env.Gemini,
			Store:        env.Store,
			Sink:         env.Sink,
			Busy:         env.Busy,
			ContentModel: cfg.Gemini.ContentModel,
		}
		env.Clips = audio.NewClipStore(cfg.Audio.OutputDir)
		var player audio.Player = env.Clips
		if opts.speaker {
			player = audio.Tee{env.Clips, audio.NewExecPlayer(cfg.Audio.PlayerCommand, cfg.Audio.PlayerArgs...)}
		}
		env.Receipts = extract.NewReceiptPipeline(deps)
		env.Voice = extract.NewVoicePipeline(deps, cfg.Gemini.TTSModel, cfg.Gemini.Voice, player)
	}

	switch opts.mode {
	case "ask", "trends", "serve":
		a, err := newAssistant(env.Gemini, env.Costs)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Assistant = a
	}

	return env, nil
}

// initCollection resolves the user and opens the collection at their path.
func (e *appEnv) initCollection(ctx context.Context) error {
	id, err := identity.Resolve(ctx, identity.Options{
		APIKey:      cfg.Identity.FirebaseAPIKey,
		CustomToken: cfg.Identity.CustomToken,
		UID:         cfg.Identity.UID,
		SessionFile: cfg.Identity.SessionFile,
	})
	if err != nil {
		return eris.Wrap(err, "resolve identity")
	}
	e.Identity = id
	zap.L().Info("signed in", zap.String("uid", id.UID), zap.String("method", string(id.Method)))

	backend, err := initBackend(ctx)
	if err != nil {
		return err
	}
	e.Backend = backend
	e.closers = append(e.closers, backend.Close)

	e.Store = collection.NewStore(backend, collection.UserPath(cfg.Identity.AppID, id.UID), e.Sink)
	e.Engine = analytics.NewEngine()
	e.Engine.OnUpdate(func(v *analytics.View) {
		zap.L().Debug("analytics recomputed",
			zap.Int("records", len(v.Records)),
			zap.Int("anomalies", len(v.Anomalies)),
			zap.Bool("filtered", v.Filter.Active()),
		)
	})
	e.Store.OnChange(e.Engine.SetDocuments)
	return nil
}

// initBackend opens the configured collection backend and migrates it.
func initBackend(ctx context.Context) (collection.Backend, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "bishleshok.db"
		}
		b, err := collection.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := b.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return b, nil
	case "postgres":
		b, err := collection.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := b.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return b, nil
	case "firestore":
		return collection.NewFirestore(ctx, cfg.Store.ProjectID)
	case "memory":
		return collection.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initMedia opens Cloud Storage when archiving is on or gs:// inputs are
// expected.
func (e *appEnv) initMedia(ctx context.Context, wantGCS bool) error {
	bucket := cfg.Media.ArchiveBucket
	if bucket == "" && !wantGCS {
		e.Loader = media.NewLoader(nil)
		return nil
	}

	gcs, err := media.NewGCSStore(ctx)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, gcs.Close)
	e.Loader = media.NewLoader(gcs)
	if bucket != "" && e.Identity != nil {
		e.Archiver = media.NewArchiver(gcs, bucket, e.Identity.UID)
	}
	return nil
}

// newGeminiClient builds the request client. Retries are announced on the
// status sink and token usage is priced.
func newGeminiClient(sink status.Sink, costs *cost.Calculator) gemini.Client {
	opts := []gemini.Option{
		gemini.WithRetry(resilience.ExponentialWithJitter(cfg.Gemini.MaxAttempts, time.Second, time.Second)),
		gemini.WithRateLimit(cfg.Gemini.RequestsPerSecond),
		gemini.WithRetryNotifier(func(n gemini.RetryNotice) {
			status.Info(sink, n.Message())
		}),
		gemini.WithUsageHook(func(model string, u gemini.UsageMetadata) {
			costs.Log("gemini", model, "generateContent", cost.Usage{
				Input:     u.PromptTokenCount,
				Output:    u.CandidatesTokenCount,
				CacheRead: u.CachedContentTokenCount,
			})
		}),
	}
	if cfg.Gemini.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
	}
	if cfg.Gemini.TimeoutSecs > 0 {
		opts = append(opts, gemini.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Gemini.TimeoutSecs) * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}))
	}
	return gemini.NewClient(cfg.Gemini.Key, opts...)
}

// newAssistant picks the answer provider. Trends always go through Gemini.
func newAssistant(gc gemini.Client, costs *cost.Calculator) (*assistant.Assistant, error) {
	var answerer assistant.Answerer
	switch cfg.Assistant.Provider {
	case "anthropic":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		answerer = assistant.NewClaudeAnswerer(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, costs)
	default:
		if gc == nil {
			return nil, eris.New("assistant: gemini.key is required for the gemini provider")
		}
		answerer = assistant.NewGeminiAnswerer(gc, cfg.Gemini.ContentModel)
	}
	return assistant.New(answerer, gc, cfg.Gemini.ContentModel), nil
}

// newRecorder builds the microphone controller that feeds the voice
// pipeline.
func newRecorder(env *appEnv) *recorder.Controller {
	mic := recorder.NewExecMicrophone(cfg.Recorder.Command, cfg.Recorder.Args...)
	handler := func(ctx context.Context, data []byte, mimeType string) error {
		_, err := env.Voice.Process(ctx, extract.Input{Name: model.VoiceFileName, MIMEType: mimeType, Data: data})
		return err
	}
	return recorder.New(mic, handler, env.Sink, recorder.Options{
		MaxDuration: time.Duration(cfg.Recorder.MaxSeconds) * time.Second,
		MIMEType:    cfg.Recorder.MIMEType,
	})
}

// loadSnapshot applies one listing of the collection, for commands that do
// not follow the change feed.
func (e *appEnv) loadSnapshot(ctx context.Context) error {
	docs, err := e.Backend.List(ctx, e.Store.Path())
	if err != nil {
		return eris.Wrap(err, "list records")
	}
	e.Store.Apply(collection.Snapshot{Seq: 1, Docs: docs})
	return nil
}

// echoSink prints status lines for interactive commands.
func echoSink(w io.Writer) status.Sink {
	return status.Func(func(text string, isError bool) {
		if isError {
			_, _ = fmt.Fprintln(w, "! "+text)
			return
		}
		_, _ = fmt.Fprintln(w, "> "+text)
	})
}
