package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// ristrettoCache is the single-instance backend.
type ristrettoCache struct {
	cache *ristretto.Cache[string, []byte]
	log   zerolog.Logger
	g     guard
}

func newRistrettoCache(cfg RistrettoConfig) (*ristrettoCache, error) {
	log := logger().With().Str("backend", "ristretto").Logger()

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("num_counters", cfg.NumCounters).
		Int64("max_cost", cfg.MaxCost).
		Msg("ristretto cache created")

	return &ristrettoCache{cache: c, log: log}, nil
}

func (r *ristrettoCache) Get(ctx context.Context, key string) ([]byte, error) {
	done, err := r.g.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	value, found := r.cache.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

// SetWithTTL waits for the write to be applied so a following Get observes it.
// Ristretto may still reject the item under cost pressure.
func (r *ristrettoCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	done, err := r.g.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	if !r.cache.SetWithTTL(key, cloneBytes(value), int64(len(value)), ttl) {
		r.log.Debug().Str("key", key).Msg("ristretto dropped write")
	}
	r.cache.Wait()
	return nil
}

func (r *ristrettoCache) Delete(ctx context.Context, key string) error {
	done, err := r.g.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	r.cache.Del(key)
	return nil
}

func (r *ristrettoCache) Close() error {
	return r.g.shutdown(func() error {
		r.cache.Wait()
		r.cache.Close()
		r.log.Info().Msg("ristretto cache closed")
		return nil
	})
}

var _ Cache = (*ristrettoCache)(nil)
