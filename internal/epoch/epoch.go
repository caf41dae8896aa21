// Package epoch discards results of superseded asynchronous requests. Each
// invocation takes a ticket; a result is applied only if its ticket is still
// the newest when it arrives.
package epoch

import "sync/atomic"

// Counter issues tickets.
type Counter struct {
	n atomic.Uint64
}

// Ticket identifies one invocation.
type Ticket struct {
	c *Counter
	n uint64
}

// Next starts a new invocation, making every earlier ticket stale.
func (c *Counter) Next() Ticket {
	return Ticket{c: c, n: c.n.Add(1)}
}

// Current reports whether no newer ticket has been issued.
func (t Ticket) Current() bool {
	return t.c != nil && t.c.n.Load() == t.n
}

// Value returns the ticket number.
func (t Ticket) Value() uint64 {
	return t.n
}
