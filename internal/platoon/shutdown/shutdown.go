// Package shutdown implements the graceful-shutdown latch of spec.md
// section 4.11: one idempotent process-wide "requested" flag that
// wakes blocked consumers, closes registered sockets, and lets the
// caller join its workers.
package shutdown

import (
	"io"
	"net"
	"sync"
)

// Latch is the idempotent shutdown gate. The zero value is usable.
type Latch struct {
	once      sync.Once
	requested chan struct{}
	initOnce  sync.Once

	mu      sync.Mutex
	reason  string
	closers []io.Closer
	wakers  []func()
}

func (l *Latch) init() {
	l.initOnce.Do(func() {
		l.requested = make(chan struct{})
	})
}

// Done returns a channel closed once Request has been called.
func (l *Latch) Done() <-chan struct{} {
	l.init()
	return l.requested
}

// Requested reports whether shutdown has been requested.
func (l *Latch) Requested() bool {
	l.init()
	select {
	case <-l.requested:
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to the first Request call.
func (l *Latch) Reason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// RegisterCloser adds a socket (net.Conn, net.PacketConn, or anything
// else closeable) to be closed on shutdown, per spec.md section 4.11
// step 4 ("closes all sockets with shutdown + close to unblock
// recv/accept/select"). Registering after shutdown has already been
// requested closes it immediately.
func (l *Latch) RegisterCloser(c io.Closer) {
	l.registerCloser(c)
}

// RegisterListener is the net.Listener-specific spelling of
// RegisterCloser, kept for callers that want the type documented at
// the call site.
func (l *Latch) RegisterListener(c net.Listener) {
	l.registerCloser(c)
}

func (l *Latch) registerCloser(c io.Closer) {
	l.init()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Requested() {
		c.Close()
		return
	}
	l.closers = append(l.closers, c)
}

// RegisterWaker adds a wake-up callback (e.g. a sync.Cond.Broadcast)
// invoked on shutdown, per step 3 ("broadcasts on any condition
// variables used by secondary queues").
func (l *Latch) RegisterWaker(wake func()) {
	l.init()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wakers = append(l.wakers, wake)
}

// Request sets the latch, wakes every registered waker, and closes
// every registered socket. Subsequent calls are no-ops (idempotent).
func (l *Latch) Request(reason string) {
	l.init()
	l.once.Do(func() {
		l.mu.Lock()
		l.reason = reason
		wakers := append([]func(){}, l.wakers...)
		closers := append([]io.Closer{}, l.closers...)
		l.mu.Unlock()

		close(l.requested)
		for _, wake := range wakers {
			wake()
		}
		for _, c := range closers {
			c.Close()
		}
	})
}
