// Package status carries human-readable progress and error messages from
// the pipelines to whoever is watching: the log, the CLI, the HTTP API.
package status

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one status line.
type Message struct {
	Text    string    `json:"message"`
	IsError bool      `json:"isError"`
	At      time.Time `json:"at"`
}

// Sink receives status messages.
type Sink interface {
	Post(text string, isError bool)
}

// Info posts a non-error message.
func Info(s Sink, text string) {
	s.Post(text, false)
}

// Error posts an error message.
func Error(s Sink, text string) {
	s.Post(text, true)
}

// Discard drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) Post(string, bool) {}

// LogSink writes messages to the global zap logger.
type LogSink struct{}

// Post implements Sink.
func (LogSink) Post(text string, isError bool) {
	if isError {
		zap.L().Warn("status", zap.String("message", text))
		return
	}
	zap.L().Info("status", zap.String("message", text))
}

// Multi fans a message out to several sinks.
type Multi []Sink

// Post implements Sink.
func (m Multi) Post(text string, isError bool) {
	for _, s := range m {
		s.Post(text, isError)
	}
}

// Func adapts a function to Sink.
type Func func(text string, isError bool)

// Post implements Sink.
func (f Func) Post(text string, isError bool) {
	f(text, isError)
}

const defaultHistory = 50

// Board keeps the latest message and a short history, and notifies
// subscribers.
type Board struct {
	now func() time.Time
	cap int

	mu      sync.RWMutex
	history []Message
	subs    map[int]chan Message
	nextSub int
}

// NewBoard creates a Board with an initial message.
func NewBoard(initial string) *Board {
	b := &Board{now: time.Now, cap: defaultHistory, subs: make(map[int]chan Message)}
	if initial != "" {
		b.Post(initial, false)
	}
	return b
}

// Post implements Sink.
func (b *Board) Post(text string, isError bool) {
	msg := Message{Text: text, IsError: isError, At: b.now()}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.cap {
		b.history = b.history[len(b.history)-b.cap:]
	}
	subs := make([]chan Message, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Latest returns the most recent message.
func (b *Board) Latest() (Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.history) == 0 {
		return Message{}, false
	}
	return b.history[len(b.history)-1], true
}

// History returns a copy of the retained messages, oldest first.
func (b *Board) History() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Message(nil), b.history...)
}

// Texts returns the text of every retained message, oldest first.
func (b *Board) Texts() []string {
	h := b.History()
	out := make([]string, len(h))
	for i, m := range h {
		out[i] = m.Text
	}
	return out
}

// Subscribe returns a channel of new messages and a cancel func. Slow
// subscribers miss messages rather than block posters.
func (b *Board) Subscribe(buffer int) (<-chan Message, func()) {
	ch := make(chan Message, max(buffer, 1))
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
