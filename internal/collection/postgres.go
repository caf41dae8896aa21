package collection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// notifyChannel carries the collection path of every changed document.
const notifyChannel = "bishleshok_documents"

// Pool is the subset of pgxpool.Pool used by the backend.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Listener opens a LISTEN session on a dedicated connection.
type Listener interface {
	Listen(ctx context.Context, channel string) (Waiter, error)
}

// Waiter blocks for the next notification payload.
type Waiter interface {
	Wait(ctx context.Context) (string, error)
	Close()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresBackend stores documents as JSONB rows. A trigger raises
// NOTIFY on every insert and delete, which drives the change feed.
type PostgresBackend struct {
	pool     Pool
	listener Listener
	closeFn  func()
}

// NewPostgres creates a PostgresBackend with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresBackend{pool: pool, listener: &poolListener{pool: pool}, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool and listener.
func NewPostgresWithPool(pool Pool, listener Listener) *PostgresBackend {
	return &PostgresBackend{pool: pool, listener: listener}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	collection_path TEXT NOT NULL,
	data            JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(collection_path, created_at);

CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('bishleshok_documents', COALESCE(NEW.collection_path, OLD.collection_path));
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify
	AFTER INSERT OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_document_change();
`

// Migrate creates the documents table and its notify trigger.
func (s *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresBackend) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresBackend) Create(ctx context.Context, path Path, rec model.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal record")
	}
	id := uuid.New().String()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, collection_path, data, created_at) VALUES ($1, $2, $3, $4)`,
		id, string(path), data, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert document")
	}
	return id, nil
}

func (s *PostgresBackend) List(ctx context.Context, path Path) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, data FROM documents WHERE collection_path = $1 ORDER BY created_at, id`,
		string(path),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		rec, err := model.DecodeRecord(data)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: document %s", id)
		}
		docs = append(docs, model.Document{ID: id, Record: rec})
	}
	return docs, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func (s *PostgresBackend) Delete(ctx context.Context, path Path, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection_path = $1 AND id = $2`,
		string(path), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: document not found: %s", id)
	}
	return nil
}

// Subscribe listens for change notifications and re-lists path on every
// one that names it.
func (s *PostgresBackend) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	if s.listener == nil {
		return nil, eris.New("postgres: no listener configured")
	}
	w, err := s.listener.Listen(ctx, notifyChannel)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: listen")
	}

	docs, err := s.List(ctx, path)
	if err != nil {
		w.Close()
		return nil, err
	}

	ch := make(chan Snapshot, 1)
	ch <- Snapshot{Seq: 1, Docs: docs}

	go func() {
		defer close(ch)
		defer w.Close()
		seq := uint64(1)
		for {
			payload, err := w.Wait(ctx)
			if err != nil {
				if ctx.Err() == nil {
					zap.L().Error("postgres: change feed stopped", zap.String("path", string(path)), zap.Error(err))
				}
				return
			}
			if payload != string(path) {
				continue
			}
			docs, err := s.List(ctx, path)
			if err != nil {
				zap.L().Warn("postgres: relist after notify failed", zap.Error(err))
				continue
			}
			seq++
			offer(ch, Snapshot{Seq: seq, Docs: docs})
		}
	}()
	return ch, nil
}

// poolListener acquires a pooled connection for the lifetime of a LISTEN.
type poolListener struct {
	pool *pgxpool.Pool
}

func (l *poolListener) Listen(ctx context.Context, channel string) (Waiter, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: acquire listen conn")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, eris.Wrap(err, "postgres: LISTEN")
	}
	return &connWaiter{conn: conn}, nil
}

type connWaiter struct {
	conn *pgxpool.Conn
}

func (w *connWaiter) Wait(ctx context.Context) (string, error) {
	n, err := w.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

func (w *connWaiter) Close() {
	// The connection still holds the LISTEN; drop it instead of returning
	// it to the pool.
	_ = w.conn.Conn().Close(context.Background())
	w.conn.Release()
}
