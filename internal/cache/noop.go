package cache

import (
	"context"
	"time"
)

// noopCache stores nothing: writes succeed and reads miss.
type noopCache struct {
	g guard
}

func newNoopCache() *noopCache {
	log := logger()
	log.Debug().Str("backend", "noop").Msg("caching is disabled")
	return &noopCache{}
}

func (c *noopCache) Get(ctx context.Context, _ string) ([]byte, error) {
	done, err := c.g.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return nil, ErrNotFound
}

func (c *noopCache) SetWithTTL(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	done, err := c.g.enter(ctx)
	if err != nil {
		return err
	}
	done()
	return nil
}

func (c *noopCache) Delete(ctx context.Context, _ string) error {
	done, err := c.g.enter(ctx)
	if err != nil {
		return err
	}
	done()
	return nil
}

func (c *noopCache) Close() error {
	return c.g.shutdown(func() error { return nil })
}

var _ Cache = (*noopCache)(nil)
