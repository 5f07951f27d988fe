// Package shutdown provides a one-shot broadcast signal observed by every
// long-lived task in the server: connection handlers, the expiry reaper,
// and the accept loop all select on it alongside their normal I/O.
package shutdown

import "sync"

// Bus is a broadcast "shutdown requested" signal. Closing the channel
// returned by Done delivers to every current and future holder at once —
// at-least-once, and idempotent, since Notify only ever closes it once.
type Bus struct {
	once sync.Once
	ch   chan struct{}
}

// New returns a Bus that has not yet fired.
func New() *Bus {
	return &Bus{ch: make(chan struct{})}
}

// Done returns the channel to select on; it is closed exactly once, by the
// first call to Notify.
func (b *Bus) Done() <-chan struct{} { return b.ch }

// Notify requests shutdown. Safe to call more than once or concurrently;
// only the first call has any effect.
func (b *Bus) Notify() {
	b.once.Do(func() { close(b.ch) })
}

// Requested reports whether Notify has already been called, without
// blocking.
func (b *Bus) Requested() bool {
	select {
	case <-b.ch:
		return true
	default:
		return false
	}
}
