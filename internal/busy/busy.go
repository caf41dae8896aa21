// Package busy tracks the process-wide "processing" indicator as leases.
// Every pipeline acquires a lease on entry; the indicator is busy while any
// lease is outstanding. A lease may be handed to a downstream step, which
// then owns its release.
package busy

import (
	"sync"

	"github.com/bishleshok-ai/bishleshok/internal/status"
)

// State is a point-in-time view of the indicator.
type State struct {
	Busy bool   `json:"busy"`
	Task string `json:"task,omitempty"`
}

// Indicator is a reference-counted busy flag.
type Indicator struct {
	sink status.Sink

	mu        sync.Mutex
	count     int
	task      string
	listeners []func(State)
}

// New creates an Indicator that announces "<task>..." on sink for every
// acquisition.
func New(sink status.Sink) *Indicator {
	if sink == nil {
		sink = status.Discard
	}
	return &Indicator{sink: sink}
}

// OnChange registers fn to run on every busy/idle transition and task
// change.
func (i *Indicator) OnChange(fn func(State)) {
	i.mu.Lock()
	i.listeners = append(i.listeners, fn)
	i.mu.Unlock()
}

// Acquire marks the indicator busy with task and returns the lease that
// clears it.
func (i *Indicator) Acquire(task string) *Lease {
	i.mu.Lock()
	i.count++
	i.task = task
	st, ls := i.stateLocked(), i.listeners
	i.mu.Unlock()

	status.Info(i.sink, task+"...")
	notify(ls, st)
	return &Lease{ind: i}
}

// State returns the current state.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stateLocked()
}

// Outstanding returns the number of unreleased leases.
func (i *Indicator) Outstanding() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.count
}

func (i *Indicator) stateLocked() State {
	if i.count == 0 {
		return State{}
	}
	return State{Busy: true, Task: i.task}
}

func (i *Indicator) release() {
	i.mu.Lock()
	i.count--
	if i.count == 0 {
		i.task = ""
	}
	st, ls := i.stateLocked(), i.listeners
	i.mu.Unlock()
	notify(ls, st)
}

func (i *Indicator) retask(task string) {
	i.mu.Lock()
	i.task = task
	st, ls := i.stateLocked(), i.listeners
	i.mu.Unlock()

	status.Info(i.sink, task+"...")
	notify(ls, st)
}

func notify(ls []func(State), st State) {
	for _, fn := range ls {
		fn(st)
	}
}

// Lease is one outstanding claim on the indicator.
type Lease struct {
	ind  *Indicator
	once sync.Once
	done bool
	mu   sync.Mutex
}

// Release clears this claim. Calling it more than once is a no-op.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.mu.Lock()
		l.done = true
		l.mu.Unlock()
		l.ind.release()
	})
}

// Retask relabels the indicator while this lease is still held.
func (l *Lease) Retask(task string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if !done {
		l.ind.retask(task)
	}
}

// Released reports whether Release has run.
func (l *Lease) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
