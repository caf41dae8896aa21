//go:build integration

package collection

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

func TestFirestore_RoundTrip(t *testing.T) {
	project := os.Getenv("FIRESTORE_PROJECT_ID")
	if project == "" {
		t.Skip("FIRESTORE_PROJECT_ID not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fs, err := NewFirestore(ctx, project)
	require.NoError(t, err)
	defer fs.Close() //nolint:errcheck

	path := UserPath("integration", uuid.NewString())
	ch, err := fs.Subscribe(ctx, path)
	require.NoError(t, err)
	first := <-ch
	assert.Empty(t, first.Docs)

	id, err := fs.Create(ctx, path, &model.Voice{UserName: "Rahim", AmountPurchased: 2, File: model.VoiceFileName})
	require.NoError(t, err)

	snap := <-ch
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, id, snap.Docs[0].ID)

	require.NoError(t, fs.Delete(ctx, path, id))
	docs, err := fs.List(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
