package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// chanListener feeds notification payloads from a channel.
type chanListener struct {
	payloads chan string
	closed   chan struct{}
	err      error
}

func newChanListener() *chanListener {
	return &chanListener{payloads: make(chan string, 4), closed: make(chan struct{})}
}

func (l *chanListener) Listen(context.Context, string) (Waiter, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l, nil
}

func (l *chanListener) Wait(ctx context.Context) (string, error) {
	select {
	case p := <-l.payloads:
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *chanListener) Close() { close(l.closed) }

func newMockPostgres(t *testing.T) (*PostgresBackend, pgxmock.PgxPoolIface, *chanListener) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	l := newChanListener()
	return NewPostgresWithPool(mock, l), mock, l
}

const listQuery = `SELECT id, data FROM documents WHERE collection_path = \$1`

func TestPostgres_Migrate(t *testing.T) {
	s, mock, _ := newMockPostgres(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Create(t *testing.T) {
	s, mock, _ := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(pgxmock.AnyArg(), string(testPath), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.Create(context.Background(), testPath, &model.Voice{UserName: "Rahim"})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateError(t *testing.T) {
	s, mock, _ := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO documents`).
		WillReturnError(errors.New("connection refused"))

	_, err := s.Create(context.Background(), testPath, &model.Voice{})
	assert.ErrorContains(t, err, "insert document")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	s, mock, _ := newMockPostgres(t)
	rows := pgxmock.NewRows([]string{"id", "data"}).
		AddRow("r1", []byte(`{"Source":"Receipt","File Name":"a.jpg","date":"2025-01-01","merchant_name":"M","total_amount":5,"currency":"BDT"}`)).
		AddRow("v1", []byte(`{"Source":"Voice","File Name":"Voice Input","user_name":"K","amount_purchased":1}`))
	mock.ExpectQuery(listQuery).WithArgs(string(testPath)).WillReturnRows(rows)

	docs, err := s.List(context.Background(), testPath)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, model.SourceReceipt, docs[0].Record.Source())
	assert.Equal(t, model.SourceVoice, docs[1].Record.Source())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteNotFound(t *testing.T) {
	s, mock, _ := newMockPostgres(t)
	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs(string(testPath), "missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.Delete(context.Background(), testPath, "missing")
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SubscribeRelistsOnNotify(t *testing.T) {
	s, mock, l := newMockPostgres(t)
	mock.ExpectQuery(listQuery).WithArgs(string(testPath)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}))
	mock.ExpectQuery(listQuery).WithArgs(string(testPath)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow("v1", []byte(`{"Source":"Voice","user_name":"K"}`)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.Subscribe(ctx, testPath)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, uint64(1), first.Seq)
	assert.Empty(t, first.Docs)

	l.payloads <- "artifacts/app/users/someone-else/extracted_data"
	l.payloads <- string(testPath)

	select {
	case snap := <-ch:
		assert.Equal(t, uint64(2), snap.Seq)
		assert.Len(t, snap.Docs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after notify")
	}

	cancel()
	select {
	case <-l.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("listener not closed after cancel")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SubscribeListenError(t *testing.T) {
	s, _, l := newMockPostgres(t)
	l.err = errors.New("too many connections")
	_, err := s.Subscribe(context.Background(), testPath)
	assert.ErrorContains(t, err, "listen")
}
