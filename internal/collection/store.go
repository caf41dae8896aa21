package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bishleshok-ai/bishleshok/internal/model"
	"github.com/bishleshok-ai/bishleshok/internal/status"
)

// Transition classifies an applied snapshot.
type Transition int

const (
	// TransitionStale means the snapshot was older than the current view
	// and was dropped.
	TransitionStale Transition = iota
	// TransitionInitial is the first snapshot ever applied.
	TransitionInitial
	// TransitionGrew means the record count went up.
	TransitionGrew
	// TransitionSilent is any other applied snapshot.
	TransitionSilent
)

func (t Transition) String() string {
	switch t {
	case TransitionStale:
		return "stale"
	case TransitionInitial:
		return "initial"
	case TransitionGrew:
		return "grew"
	default:
		return "silent"
	}
}

// Status messages posted by the store.
const (
	MsgNotReady     = "Error: Database not ready. Cannot save data."
	MsgCleared      = "All data cleared from database."
	MsgClearFailed  = "Error clearing data."
	MsgInitialEmpty = "Data loaded (0 items). Ready for input."
)

// ErrNotReady means the store has no backend or no identity yet.
var ErrNotReady = eris.New("database not ready")

// Store is the in-memory owner of the live record list. It only changes
// when a snapshot arrives; writes never update it directly.
type Store struct {
	backend Backend
	path    Path
	sink    status.Sink

	mu        sync.RWMutex
	docs      []model.Document
	received  bool
	lastSeq   uint64
	selected  int
	listeners []func([]model.Document)
	ready     chan struct{}
}

// NewStore creates a Store for path. A nil backend or empty path leaves the
// store permanently not ready.
func NewStore(backend Backend, path Path, sink status.Sink) *Store {
	if sink == nil {
		sink = status.Discard
	}
	return &Store{
		backend:  backend,
		path:     path,
		sink:     sink,
		selected: -1,
		ready:    make(chan struct{}),
	}
}

// Path returns the collection path.
func (s *Store) Path() Path {
	return s.path
}

// Run subscribes to the backend and applies snapshots until ctx is done or
// the feed closes.
func (s *Store) Run(ctx context.Context) error {
	if s.backend == nil || s.path == "" {
		return &PersistenceError{Op: "subscribe", Err: ErrNotReady}
	}
	ch, err := s.backend.Subscribe(ctx, s.path)
	if err != nil {
		status.Error(s.sink, "Error: Could not connect to database.")
		return &PersistenceError{Op: "subscribe", Err: err}
	}
	for snap := range ch {
		s.Apply(snap)
	}
	return ctx.Err()
}

// Apply replaces the local view with snap unless an equal or newer
// snapshot was already applied.
func (s *Store) Apply(snap Snapshot) Transition {
	docs := append([]model.Document(nil), snap.Docs...)

	s.mu.Lock()
	if s.received && snap.Seq <= s.lastSeq {
		last := s.lastSeq
		s.mu.Unlock()
		zap.L().Debug("collection: dropped stale snapshot",
			zap.Uint64("seq", snap.Seq),
			zap.Uint64("last_seq", last),
		)
		return TransitionStale
	}

	first := !s.received
	prev := len(s.docs)
	s.docs = docs
	s.lastSeq = snap.Seq
	s.selected = -1
	s.received = true
	listeners := s.listeners
	if first {
		close(s.ready)
	}
	s.mu.Unlock()

	tr := TransitionSilent
	n := len(docs)
	switch {
	case first:
		tr = TransitionInitial
		if n > 0 {
			status.Info(s.sink, fmt.Sprintf("✓ Data loaded successfully (%d item(s)). All data is displayed in the table below.", n))
		} else {
			status.Info(s.sink, MsgInitialEmpty)
		}
	case n > prev:
		tr = TransitionGrew
		status.Info(s.sink, fmt.Sprintf("✓ Data updated! %d item(s) now in database. All data displayed below.", n))
	}

	zap.L().Debug("collection: snapshot applied",
		zap.Uint64("seq", snap.Seq),
		zap.Int("count", n),
		zap.Stringer("transition", tr),
	)

	for _, fn := range listeners {
		fn(docs)
	}
	return tr
}

// OnChange registers fn to receive every applied snapshot's documents.
// fn must not modify the slice.
func (s *Store) OnChange(fn func([]model.Document)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Ready is closed once the first snapshot has been applied.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the first snapshot or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "collection: wait for first snapshot")
	}
}

// Documents returns the current documents. The slice is shared and must
// not be modified.
func (s *Store) Documents() []model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs
}

// Records returns the current records in order.
func (s *Store) Records() []model.Record {
	return model.Records(s.Documents())
}

// Len returns the number of documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Select marks row index as active and returns its pretty-printed JSON.
func (s *Store) Select(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.docs) {
		return "", eris.Errorf("collection: row %d out of range (have %d)", index, len(s.docs))
	}
	b, err := json.MarshalIndent(s.docs[index], "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "collection: marshal row")
	}
	s.selected = index
	return string(b), nil
}

// Selected returns the active row, if any.
func (s *Store) Selected() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected >= 0
}

// Append writes rec to the backend. The local view is not touched; the
// record shows up with the next snapshot.
func (s *Store) Append(ctx context.Context, rec model.Record) (string, error) {
	if s.backend == nil || s.path == "" {
		return "", &PersistenceError{Op: "append", Err: ErrNotReady}
	}
	id, err := s.backend.Create(ctx, s.path, rec)
	if err != nil {
		zap.L().Error("collection: append failed", zap.String("path", string(s.path)), zap.Error(err))
		return "", &PersistenceError{Op: "append", Err: err}
	}
	zap.L().Info("collection: record saved",
		zap.String("id", id),
		zap.String("source", string(rec.Source())),
	)
	return id, nil
}

// ClearAll deletes every remote document. A partial failure is reported as
// one generic error without naming the survivors.
func (s *Store) ClearAll(ctx context.Context) error {
	if s.backend == nil || s.path == "" {
		status.Error(s.sink, MsgNotReady)
		return &PersistenceError{Op: "clear", Err: ErrNotReady}
	}

	docs, err := s.backend.List(ctx, s.path)
	if err != nil {
		status.Error(s.sink, MsgClearFailed)
		return &PersistenceError{Op: "clear", Err: err}
	}

	// Every delete is attempted even after one fails.
	var g errgroup.Group
	g.SetLimit(8)
	for _, d := range docs {
		g.Go(func() error {
			return s.backend.Delete(ctx, s.path, d.ID)
		})
	}
	err = g.Wait()

	s.mu.Lock()
	s.selected = -1
	s.mu.Unlock()

	if err != nil {
		zap.L().Error("collection: clear failed", zap.Int("documents", len(docs)), zap.Error(err))
		status.Error(s.sink, MsgClearFailed)
		return &PersistenceError{Op: "clear", Err: err}
	}
	status.Info(s.sink, MsgCleared)
	return nil
}
