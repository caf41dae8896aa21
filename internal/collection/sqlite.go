package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// SQLiteBackend stores documents in a local SQLite file. Its change feed is
// in-process: writers publish a fresh snapshot after each committed change.
type SQLiteBackend struct {
	db  *sql.DB
	hub *hub

	// pubMu orders list-and-publish so Seq follows commit order.
	pubMu sync.Mutex
	seq   uint64
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteBackend{db: db, hub: newHub()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	collection_path TEXT NOT NULL,
	data            TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(collection_path, created_at);
`

// Migrate creates the documents table.
func (s *SQLiteBackend) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes every subscription and the database.
func (s *SQLiteBackend) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}

func (s *SQLiteBackend) Create(ctx context.Context, path Path, rec model.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal record")
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection_path, data, created_at) VALUES (?, ?, ?, ?)`,
		id, string(path), string(data), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert document")
	}
	s.publish(ctx, path)
	return id, nil
}

func (s *SQLiteBackend) List(ctx context.Context, path Path) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection_path = ? ORDER BY created_at, rowid`,
		string(path),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		rec, err := model.DecodeRecord([]byte(data))
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: document %s", id)
		}
		docs = append(docs, model.Document{ID: id, Record: rec})
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func (s *SQLiteBackend) Delete(ctx context.Context, path Path, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection_path = ? AND id = ?`,
		string(path), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete document %s", id)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return err
	}
	s.publish(ctx, path)
	return nil
}

func (s *SQLiteBackend) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	id, ch := s.hub.add(path)

	s.pubMu.Lock()
	docs, err := s.List(ctx, path)
	if err != nil {
		s.pubMu.Unlock()
		s.hub.remove(path, id)
		return nil, err
	}
	s.seq++
	s.hub.sendTo(path, id, Snapshot{Seq: s.seq, Docs: docs})
	s.pubMu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.remove(path, id)
	}()
	return ch, nil
}

// publish lists path and pushes the result to its subscribers. A failed
// listing is skipped; the next change publishes again.
func (s *SQLiteBackend) publish(ctx context.Context, path Path) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	docs, err := s.List(context.WithoutCancel(ctx), path)
	if err != nil {
		return
	}
	s.seq++
	s.hub.publish(path, Snapshot{Seq: s.seq, Docs: docs})
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("document not found: %s", id)
	}
	return nil
}
