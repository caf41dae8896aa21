package audio

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Player plays a WAV clip and returns once playback has ended.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// ExecPlayer pipes WAV data to an external player such as aplay or ffplay.
type ExecPlayer struct {
	binPath string
	args    []string
}

// NewExecPlayer creates an ExecPlayer. If binPath is empty, "aplay -q -" is
// used.
func NewExecPlayer(binPath string, args ...string) *ExecPlayer {
	if binPath == "" {
		binPath = "aplay"
		args = []string{"-q", "-"}
	}
	return &ExecPlayer{binPath: binPath, args: args}
}

// Play blocks until the player process exits.
func (p *ExecPlayer) Play(ctx context.Context, wav []byte) error {
	cmd := exec.CommandContext(ctx, p.binPath, p.args...)
	cmd.Stdin = bytes.NewReader(wav)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "audio: %s failed: %s", p.binPath, stderr.String())
	}
	return nil
}

// Clip is a played WAV clip.
type Clip struct {
	WAV  []byte
	At   time.Time
	Path string
}

// ClipStore keeps the most recent clip in memory so it can be fetched later,
// and optionally writes each clip into a directory.
type ClipStore struct {
	dir string
	now func() time.Time

	mu     sync.RWMutex
	latest *Clip
}

// NewClipStore creates a ClipStore. An empty dir keeps clips in memory only.
func NewClipStore(dir string) *ClipStore {
	return &ClipStore{dir: dir, now: time.Now}
}

// Play records wav as the latest clip.
func (s *ClipStore) Play(_ context.Context, wav []byte) error {
	clip := &Clip{WAV: append([]byte(nil), wav...), At: s.now()}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return eris.Wrap(err, "audio: create output dir")
		}
		clip.Path = filepath.Join(s.dir, "confirmation-"+clip.At.Format("20060102-150405.000")+".wav")
		if err := os.WriteFile(clip.Path, clip.WAV, 0o644); err != nil {
			return eris.Wrapf(err, "audio: write %s", clip.Path)
		}
		zap.L().Info("audio: confirmation written", zap.String("path", clip.Path))
	}

	s.mu.Lock()
	s.latest = clip
	s.mu.Unlock()
	return nil
}

// Latest returns the last clip, or nil.
func (s *ClipStore) Latest() *Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Tee plays through every player in order, stopping at the first error.
type Tee []Player

// Play implements Player.
func (t Tee) Play(ctx context.Context, wav []byte) error {
	for _, p := range t {
		if err := p.Play(ctx, wav); err != nil {
			return err
		}
	}
	return nil
}
