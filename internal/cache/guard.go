package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// guard gives a backend its open/closed lifecycle: operations run under a
// read lock and shutdown waits for them to drain.
type guard struct {
	mu     sync.RWMutex
	closed atomic.Bool
}

// enter admits an operation. Call the returned func when it finishes.
func (g *guard) enter(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.closed.Load() {
		return nil, ErrClosed
	}
	g.mu.RLock()
	if g.closed.Load() {
		g.mu.RUnlock()
		return nil, ErrClosed
	}
	return g.mu.RUnlock, nil
}

// shutdown runs release once, after in-flight operations finish.
func (g *guard) shutdown(release func() error) error {
	if g.closed.Load() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed.Swap(true) {
		return nil
	}
	return release()
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
