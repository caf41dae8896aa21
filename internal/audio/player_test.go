package audio

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipStore_MemoryOnly(t *testing.T) {
	t.Parallel()
	s := NewClipStore("")
	assert.Nil(t, s.Latest())

	require.NoError(t, s.Play(context.Background(), []byte("RIFF")))
	clip := s.Latest()
	require.NotNil(t, clip)
	assert.Equal(t, []byte("RIFF"), clip.WAV)
	assert.Empty(t, clip.Path)
}

func TestClipStore_WritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewClipStore(dir)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Play(context.Background(), []byte("abc")))
	clip := s.Latest()
	require.NotNil(t, clip)

	data, err := os.ReadFile(clip.Path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.Contains(t, clip.Path, "confirmation-20250301-100000.000.wav")
}

type failingPlayer struct{ calls int }

func (f *failingPlayer) Play(context.Context, []byte) error {
	f.calls++
	return errors.New("no device")
}

func TestTee_StopsAtFirstError(t *testing.T) {
	t.Parallel()
	store := NewClipStore("")
	bad := &failingPlayer{}
	after := NewClipStore("")

	err := Tee{store, bad, after}.Play(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.NotNil(t, store.Latest())
	assert.Equal(t, 1, bad.calls)
	assert.Nil(t, after.Latest())
}

func TestExecPlayer_MissingBinary(t *testing.T) {
	t.Parallel()
	p := NewExecPlayer("/nonexistent/player-binary")
	err := p.Play(context.Background(), []byte("x"))
	assert.Error(t, err)
}
