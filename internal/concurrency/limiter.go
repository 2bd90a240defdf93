// Package concurrency bounds how many upstream invocations run at once.
//
// Limiter is a FIFO admission gate: callers beyond the limit queue in
// arrival order and are admitted one by one as slots are released. A caller
// whose context ends while queued leaves the queue without taking a slot.
//
//	release, err := limiter.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer release()
package concurrency

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// DefaultLimit is the number of concurrent slots used when none is configured.
const DefaultLimit = 5

// ErrClosed is returned by Acquire after Close, including to callers still queued.
var ErrClosed = errors.New("concurrency: limiter closed")

// Stats is a point-in-time view of the gate.
type Stats struct {
	Active  int `json:"active"`
	Pending int `json:"pending"`
	Limit   int `json:"limit"`
}

type waiter struct {
	ready chan struct{}
	err   error
}

// Limiter is a FIFO counting gate. A limit of 0 or less admits everyone.
// All methods are safe for concurrent use.
type Limiter struct {
	waiters list.List
	mu      sync.Mutex
	limit   int
	active  int
	closed  bool
}

// NewLimiter creates a gate with limit slots.
func NewLimiter(limit int) *Limiter {
	return &Limiter{limit: limit}
}

func (l *Limiter) hasRoom() bool {
	return l.limit <= 0 || l.active < l.limit
}

// grant admits queued callers while slots are free. Caller holds mu.
func (l *Limiter) grant() {
	for l.waiters.Len() > 0 && l.hasRoom() {
		front := l.waiters.Front()
		w, _ := l.waiters.Remove(front).(*waiter)
		l.active++
		close(w.ready)
	}
}

// Acquire blocks until a slot is free or ctx ends. The returned release
// must be called exactly once; later calls are no-ops.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.waiters.Len() == 0 && l.hasRoom() {
		l.active++
		l.mu.Unlock()
		return l.releaser(), nil
	}

	w := &waiter{ready: make(chan struct{})}
	elem := l.waiters.PushBack(w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		if w.err != nil {
			return nil, w.err
		}
		return l.releaser(), nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			// Granted while we were giving up: hand the slot on.
			if w.err == nil {
				l.active--
				l.grant()
			}
		default:
			l.waiters.Remove(elem)
		}
		l.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (l *Limiter) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			l.grant()
			l.mu.Unlock()
		})
	}
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// WithSlot runs fn while holding a slot of l and returns its result.
// The slot is released however fn returns, including by panic.
func WithSlot[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	release, err := l.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}

// SetLimit changes the number of slots. Raising it admits queued callers
// immediately; lowering it lets active holders finish.
func (l *Limiter) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.grant()
}

// Limit returns the configured number of slots.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Active returns the number of held slots.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Pending returns the number of queued callers.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}

// Stats returns Active, Pending and Limit read together.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Active: l.active, Pending: l.waiters.Len(), Limit: l.limit}
}

// Close fails every queued caller with ErrClosed and rejects new ones.
// Slots already held stay valid until released.
func (l *Limiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for l.waiters.Len() > 0 {
		w, _ := l.waiters.Remove(l.waiters.Front()).(*waiter)
		w.err = ErrClosed
		close(w.ready)
	}
	return nil
}
