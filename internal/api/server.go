// Package api exposes the receipt, voice, analytics and assistant operations
// over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bishleshok-ai/bishleshok/internal/analytics"
	"github.com/bishleshok-ai/bishleshok/internal/assistant"
	"github.com/bishleshok-ai/bishleshok/internal/audio"
	"github.com/bishleshok-ai/bishleshok/internal/busy"
	"github.com/bishleshok-ai/bishleshok/internal/collection"
	"github.com/bishleshok-ai/bishleshok/internal/extract"
	"github.com/bishleshok-ai/bishleshok/internal/media"
	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/recorder"
	"github.com/bishleshok-ai/bishleshok/internal/status"
)

// maxUploadBytes caps receipt and voice uploads.
const maxUploadBytes = 20 << 20

// ReceiptProcessor runs the receipt pipeline.
type ReceiptProcessor interface {
	Process(ctx context.Context, in extract.Input) (*extract.Result, error)
}

// VoiceProcessor runs the voice pipeline.
type VoiceProcessor interface {
	Process(ctx context.Context, in extract.Input) (*extract.VoiceResult, error)
}

// Recorder is the server-side microphone session.
type Recorder interface {
	Toggle(ctx context.Context) error
	State() recorder.State
	UnavailableReason() string
}

// Assistant answers questions and looks up market trends.
type Assistant interface {
	Ask(ctx context.Context, question string, recs []model.Record) (*assistant.Answer, error)
	Trends(ctx context.Context) (*assistant.Trends, error)
	LastAnswer() *assistant.Answer
	LastTrends() *assistant.Trends
}

// Archiver stores raw uploads.
type Archiver interface {
	Archive(ctx context.Context, b *media.Blob) (string, error)
}

// Deps are the collaborators behind the routes. Store, Engine, Board and
// Busy are required; the rest disable their routes when nil.
type Deps struct {
	Store     *collection.Store
	Engine    *analytics.Engine
	Board     *status.Board
	Busy      *busy.Indicator
	Receipts  ReceiptProcessor
	Voice     VoiceProcessor
	Recorder  Recorder
	Assistant Assistant
	Clips     *audio.ClipStore
	Archiver  Archiver

	// BaseCtx scopes the asynchronous work started by upload handlers. It
	// defaults to context.Background.
	BaseCtx        context.Context
	AllowedOrigins []string
}

// Server holds the handlers. Background pipeline runs are tracked so
// shutdown can wait for them.
type Server struct {
	deps Deps
	wg   sync.WaitGroup
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.BaseCtx == nil {
		deps.BaseCtx = context.Background()
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}
	return &Server{deps: deps}
}

// Wait blocks until every background pipeline run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.getStatus)

		r.Post("/receipts", s.postReceipt)
		r.Post("/voice", s.postVoice)
		r.Post("/recording/toggle", s.toggleRecording)

		r.Get("/records", s.listRecords)
		r.Get("/records/{index}", s.showRecord)
		r.Delete("/records", s.clearRecords)

		r.Put("/filter", s.setFilter)
		r.Delete("/filter", s.clearFilter)
		r.Get("/analytics", s.getAnalytics)

		r.Post("/ask", s.ask)
		r.Get("/trends", s.trends)

		r.Get("/export.csv", s.exportCSV)
		r.Get("/export.xlsx", s.exportXLSX)

		r.Get("/tts/latest", s.latestClip)
	})
	return r
}

// goAsync runs fn detached from the request, on the server's base context.
func (s *Server) goAsync(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.deps.BaseCtx)
	}()
}
