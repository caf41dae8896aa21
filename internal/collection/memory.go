package collection

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// MemoryBackend keeps documents in process memory. Nothing survives a
// restart; it backs the "memory" store driver and tests.
type MemoryBackend struct {
	hub *hub

	mu   sync.Mutex
	seq  uint64
	docs map[Path][]model.Document

	// FailCreate and FailDelete force errors for the given operations.
	FailCreate error
	FailDelete func(id string) error
	FailList   error
}

// NewMemory creates an empty MemoryBackend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{hub: newHub(), docs: make(map[Path][]model.Document)}
}

func (m *MemoryBackend) Create(_ context.Context, path Path, rec model.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return "", m.FailCreate
	}
	id := uuid.New().String()
	m.docs[path] = append(m.docs[path], model.Document{ID: id, Record: rec})
	m.publishLocked(path)
	return id, nil
}

func (m *MemoryBackend) List(_ context.Context, path Path) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailList != nil {
		return nil, m.FailList
	}
	return append([]model.Document(nil), m.docs[path]...), nil
}

func (m *MemoryBackend) Delete(_ context.Context, path Path, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		if err := m.FailDelete(id); err != nil {
			return err
		}
	}
	docs := m.docs[path]
	for i, d := range docs {
		if d.ID == id {
			m.docs[path] = append(docs[:i:i], docs[i+1:]...)
			m.publishLocked(path)
			return nil
		}
	}
	return eris.Errorf("memory: document not found: %s", id)
}

func (m *MemoryBackend) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	id, ch := m.hub.add(path)

	m.mu.Lock()
	m.seq++
	m.hub.sendTo(path, id, Snapshot{Seq: m.seq, Docs: append([]model.Document(nil), m.docs[path]...)})
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.hub.remove(path, id)
	}()
	return ch, nil
}

// Close closes every subscription.
func (m *MemoryBackend) Close() error {
	m.hub.closeAll()
	return nil
}

func (m *MemoryBackend) publishLocked(path Path) {
	m.seq++
	m.hub.publish(path, Snapshot{Seq: m.seq, Docs: append([]model.Document(nil), m.docs[path]...)})
}
