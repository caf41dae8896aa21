package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rotisserie/eris"
)

const chunkSize = 16 * 1024

// ExecMicrophone records by running a capture command that writes audio to
// stdout, for example ffmpeg or arecord.
type ExecMicrophone struct {
	binPath string
	args    []string
}

// NewExecMicrophone creates an ExecMicrophone. If binPath is empty, ffmpeg
// captures the default PulseAudio source as Opus in WebM.
func NewExecMicrophone(binPath string, args ...string) *ExecMicrophone {
	if binPath == "" {
		binPath = "ffmpeg"
		args = []string{"-loglevel", "error", "-f", "pulse", "-i", "default", "-c:a", "libopus", "-f", "webm", "-"}
	}
	return &ExecMicrophone{binPath: binPath, args: args}
}

// Start launches the capture process. A missing binary or a refused device
// is reported as *PermissionError.
func (m *ExecMicrophone) Start(ctx context.Context) (Capture, error) {
	cmd := exec.CommandContext(ctx, m.binPath, m.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, eris.Wrap(err, "recorder: stdout pipe")
	}
	c := &execCapture{cmd: cmd, done: make(chan struct{})}
	cmd.Stderr = &c.stderr

	if err := cmd.Start(); err != nil {
		reason := "capture command could not be started"
		if errors.Is(err, exec.ErrNotFound) {
			reason = m.binPath + " not found"
		} else if errors.Is(err, os.ErrPermission) {
			reason = "permission denied"
		}
		return nil, &PermissionError{Reason: reason, Err: err}
	}

	go c.read(stdout)
	return c, nil
}

type execCapture struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}

	mu      sync.Mutex
	chunks  [][]byte
	readErr error
}

func (c *execCapture) read(r io.Reader) {
	defer close(c.done)
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.chunks = append(c.chunks, buf[:n])
			c.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
			}
			return
		}
	}
}

// Stop interrupts the capture so the encoder can flush, then collects
// everything written.
func (c *execCapture) Stop() ([][]byte, error) {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(os.Interrupt)
	}
	<-c.done
	waitErr := c.cmd.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.chunks, eris.Wrap(c.readErr, "recorder: read capture")
	}
	// An interrupted encoder exits non-zero; that is the normal stop path.
	if waitErr != nil && len(c.chunks) == 0 {
		return nil, eris.Wrapf(waitErr, "recorder: %s failed: %s", c.cmd.Path, c.stderr.String())
	}
	return c.chunks, nil
}
