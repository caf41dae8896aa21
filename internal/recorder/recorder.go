// Package recorder drives one microphone session at a time through
// Idle → RequestingPermission → Recording → Stopping → Idle, with a hard
// timeout on the Recording state.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/status"
)

// Status lines posted by the controller.
const (
	MsgListening   = "Listening for Bangla input..."
	MsgNoAudio     = "No audio recorded. Try speaking louder."
	MsgMicDenied   = "Error: Cannot access microphone. Check permissions."
	DefaultMaxTime = 17 * time.Second
	DefaultMIME    = "audio/webm;codecs=opus"
)

// State is a controller state.
type State int

const (
	Idle State = iota
	RequestingPermission
	Recording
	Stopping
	// Unavailable is terminal: the microphone was refused.
	Unavailable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingPermission:
		return "requesting-permission"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PermissionError means the microphone could not be opened.
type PermissionError struct {
	Reason string
	Err    error
}

func (e *PermissionError) Error() string {
	return "recorder: microphone unavailable: " + e.Reason
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Microphone opens capture sessions.
type Microphone interface {
	Start(ctx context.Context) (Capture, error)
}

// Capture is a running capture.
type Capture interface {
	// Stop ends capture and returns the chunks recorded so far.
	Stop() ([][]byte, error)
}

// Handler receives the assembled recording.
type Handler func(ctx context.Context, audio []byte, mimeType string) error

// Options tunes a Controller. Zero values use the defaults.
type Options struct {
	MaxDuration time.Duration
	MIMEType    string
	// AfterFunc arms the hard timeout; the returned func disarms it.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Controller owns the microphone. At most one session is active.
type Controller struct {
	mic     Microphone
	sink    status.Sink
	handler Handler
	maxDur  time.Duration
	mime    string
	after   func(d time.Duration, f func()) func() bool

	mu      sync.Mutex
	state   State
	reason  string
	capture Capture
	disarm  func() bool
	ctx     context.Context
	done    chan struct{}
	lastErr error
}

// New creates a Controller in the Idle state.
func New(mic Microphone, handler Handler, sink status.Sink, opts Options) *Controller {
	if sink == nil {
		sink = status.Discard
	}
	c := &Controller{
		mic:     mic,
		sink:    sink,
		handler: handler,
		maxDur:  opts.MaxDuration,
		mime:    opts.MIMEType,
		after:   opts.AfterFunc,
	}
	if c.maxDur <= 0 {
		c.maxDur = DefaultMaxTime
	}
	if c.mime == "" {
		c.mime = DefaultMIME
	}
	if c.after == nil {
		c.after = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UnavailableReason is set once the controller is Unavailable.
func (c *Controller) UnavailableReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Toggle starts a session when idle and stops it when recording. It does
// nothing while permission is pending or a stop is in progress.
func (c *Controller) Toggle(ctx context.Context) error {
	switch c.State() {
	case Idle:
		return c.Start(ctx)
	case Recording:
		return c.Stop()
	case Unavailable:
		return &PermissionError{Reason: c.UnavailableReason()}
	}
	return nil
}

// Start opens the microphone and arms the timeout. ctx is also used for
// the handler call when the session ends.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Unavailable:
		c.mu.Unlock()
		return &PermissionError{Reason: c.reason}
	case Idle:
	default:
		st := c.state
		c.mu.Unlock()
		return eris.Errorf("recorder: cannot start while %s", st)
	}
	c.state = RequestingPermission
	c.mu.Unlock()

	capture, err := c.mic.Start(ctx)
	if err != nil {
		perr := asPermissionError(err)
		c.mu.Lock()
		c.state = Unavailable
		c.reason = perr.Reason
		c.mu.Unlock()
		zap.L().Error("recorder: microphone unavailable", zap.Error(err))
		status.Error(c.sink, MsgMicDenied)
		return perr
	}

	c.mu.Lock()
	c.state = Recording
	c.capture = capture
	c.ctx = context.WithoutCancel(ctx)
	c.done = make(chan struct{})
	c.lastErr = nil
	c.disarm = c.after(c.maxDur, c.timeout)
	c.mu.Unlock()

	status.Info(c.sink, MsgListening)
	return nil
}

// Stop ends a Recording session and hands the audio over. It returns the
// handler's error.
func (c *Controller) Stop() error {
	return c.finish("user")
}

func (c *Controller) timeout() {
	zap.L().Info("recorder: maximum duration reached", zap.Duration("max", c.maxDur))
	_ = c.finish("timeout")
}

// Done is closed when the current session has fully ended, including the
// handler call. It is nil before the first session.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err is the outcome of the last finished session.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) finish(trigger string) error {
	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopping
	capture, disarm, ctx, done := c.capture, c.disarm, c.ctx, c.done
	c.capture, c.disarm = nil, nil
	c.mu.Unlock()

	if disarm != nil {
		disarm()
	}

	chunks, err := capture.Stop()
	if err != nil {
		zap.L().Warn("recorder: capture stop reported an error", zap.Error(err))
	}

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()

	var herr error
	blob := bytes.Join(chunks, nil)
	zap.L().Info("recorder: session ended",
		zap.String("trigger", trigger),
		zap.Int("chunks", len(chunks)),
		zap.Int("bytes", len(blob)),
	)
	if len(blob) == 0 {
		status.Error(c.sink, MsgNoAudio)
	} else if c.handler != nil {
		herr = c.handler(ctx, blob, c.mime)
	}

	c.mu.Lock()
	c.lastErr = herr
	c.mu.Unlock()
	close(done)
	return herr
}

func asPermissionError(err error) *PermissionError {
	var perr *PermissionError
	if errors.As(err, &perr) {
		return perr
	}
	return &PermissionError{Reason: err.Error(), Err: err}
}
