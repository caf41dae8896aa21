package collection

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateListDelete(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	id1, err := st.Create(ctx, testPath, &model.Receipt{Date: "2025-01-01", MerchantName: "Agora", TotalAmount: 120, Currency: "BDT", File: "a.jpg"})
	require.NoError(t, err)
	id2, err := st.Create(ctx, testPath, &model.Voice{UserName: "Rahim", AmountPurchased: 2, File: model.VoiceFileName})
	require.NoError(t, err)
	_, err = st.Create(ctx, "artifacts/app/users/other/extracted_data", &model.Voice{})
	require.NoError(t, err)

	docs, err := st.List(ctx, testPath)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, id1, docs[0].ID)
	assert.Equal(t, id2, docs[1].ID)

	r, ok := docs[0].Record.(*model.Receipt)
	require.True(t, ok)
	assert.Equal(t, "a.jpg", r.File)
	v, ok := docs[1].Record.(*model.Voice)
	require.True(t, ok)
	assert.Equal(t, model.Count(2), v.AmountPurchased)

	require.NoError(t, st.Delete(ctx, testPath, id1))
	assert.Error(t, st.Delete(ctx, testPath, id1))

	docs, err = st.List(ctx, testPath)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLite_SubscribeDeliversSnapshots(t *testing.T) {
	st := newTestSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := st.Subscribe(ctx, testPath)
	require.NoError(t, err)

	first := <-ch
	assert.Empty(t, first.Docs)

	_, err = st.Create(ctx, testPath, &model.Voice{UserName: "a"})
	require.NoError(t, err)

	select {
	case snap := <-ch:
		assert.Greater(t, snap.Seq, first.Seq)
		assert.Len(t, snap.Docs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after create")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSQLite_OtherPathDoesNotNotify(t *testing.T) {
	st := newTestSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := st.Subscribe(ctx, testPath)
	require.NoError(t, err)
	<-ch

	_, err = st.Create(ctx, "artifacts/app/users/other/extracted_data", &model.Voice{})
	require.NoError(t, err)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}
