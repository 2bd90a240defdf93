package cache

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/olric-data/olric"
	olricconfig "github.com/olric-data/olric/config"
	"github.com/rs/zerolog"
)

// olricCache is the distributed backend. In embedded mode db is the local
// node; in client mode db is nil and client talks to a remote cluster.
type olricCache struct {
	db     *olric.Olric
	client olric.Client
	dmap   olric.DMap
	log    zerolog.Logger
	g      guard
}

func newOlricCache(ctx context.Context, cfg *OlricConfig) (*olricCache, error) {
	lg := logger().With().Str("backend", "olric").Logger()
	if cfg.Embedded {
		return newEmbeddedOlricCache(ctx, cfg, lg)
	}
	return newClientOlricCache(ctx, cfg, lg)
}

// splitBindAddr accepts "host" or "host:port"; a missing port is returned as 0.
func splitBindAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

func newEmbeddedOlricCache(ctx context.Context, cfg *OlricConfig, lg zerolog.Logger) (*olricCache, error) {
	c := olricconfig.New("local")
	host, port := splitBindAddr(cfg.BindAddr)
	c.BindAddr = host
	if port > 0 {
		c.BindPort = port
	}
	if len(cfg.Peers) > 0 {
		c.Peers = cfg.Peers
	}
	c.LogOutput = io.Discard
	c.Logger = log.New(io.Discard, "", 0)

	ready := make(chan struct{})
	c.Started = func() { close(ready) }

	db, err := olric.New(c)
	if err != nil {
		return nil, err
	}

	startErr := make(chan error, 1)
	go func() {
		if err := db.Start(); err != nil {
			startErr <- err
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, cfg.startTimeout())
	defer cancel()

	select {
	case <-ready:
	case err := <-startErr:
		return nil, err
	case <-startCtx.Done():
		_ = db.Shutdown(context.Background())
		return nil, startCtx.Err()
	}

	client := db.NewEmbeddedClient()
	dm, err := client.NewDMap(cfg.dmapName())
	if err != nil {
		if shutdownErr := db.Shutdown(context.Background()); shutdownErr != nil {
			lg.Error().Err(shutdownErr).Msg("olric shutdown after dmap failure")
		}
		return nil, err
	}

	lg.Info().
		Str("bind_addr", host).
		Int("bind_port", port).
		Str("dmap", cfg.dmapName()).
		Int("peers", len(cfg.Peers)).
		Msg("olric embedded node started")

	return &olricCache{db: db, client: client, dmap: dm, log: lg}, nil
}

func newClientOlricCache(ctx context.Context, cfg *OlricConfig, lg zerolog.Logger) (*olricCache, error) {
	client, err := olric.NewClusterClient(cfg.Addresses)
	if err != nil {
		return nil, err
	}

	dm, err := client.NewDMap(cfg.dmapName())
	if err != nil {
		if closeErr := client.Close(ctx); closeErr != nil {
			lg.Error().Err(closeErr).Msg("olric client close after dmap failure")
		}
		return nil, err
	}

	lg.Info().
		Strs("addresses", cfg.Addresses).
		Str("dmap", cfg.dmapName()).
		Msg("olric cluster client connected")

	return &olricCache{client: client, dmap: dm, log: lg}, nil
}

func (o *olricCache) Get(ctx context.Context, key string) ([]byte, error) {
	done, err := o.g.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	resp, err := o.dmap.Get(ctx, key)
	if errors.Is(err, olric.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	value, err := resp.Byte()
	if err != nil {
		return nil, err
	}
	return cloneBytes(value), nil
}

func (o *olricCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	done, err := o.g.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	return o.dmap.Put(ctx, key, cloneBytes(value), olric.EX(ttl))
}

func (o *olricCache) Delete(ctx context.Context, key string) error {
	done, err := o.g.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	_, err = o.dmap.Delete(ctx, key)
	if err != nil && !errors.Is(err, olric.ErrKeyNotFound) {
		return err
	}
	return nil
}

// Lock takes a cluster-wide lock on a companion key so the value key itself
// stays free for Get and Put.
func (o *olricCache) Lock(
	ctx context.Context, key string, wait, ttl time.Duration,
) (func(context.Context) error, error) {
	done, err := o.g.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	lc, err := o.dmap.LockWithTimeout(ctx, "lock:"+key, ttl, wait)
	if errors.Is(err, olric.ErrLockNotAcquired) {
		return nil, ErrLockTimeout
	}
	if err != nil {
		return nil, err
	}
	return lc.Unlock, nil
}

// Ping probes the map; a miss proves the cluster answered.
func (o *olricCache) Ping(ctx context.Context) error {
	done, err := o.g.enter(ctx)
	if err != nil {
		return err
	}
	defer done()

	_, err = o.dmap.Get(ctx, "__ping__")
	if err == nil || errors.Is(err, olric.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (o *olricCache) Close() error {
	return o.g.shutdown(func() error {
		ctx := context.Background()
		if err := o.dmap.Close(ctx); err != nil {
			o.log.Debug().Err(err).Msg("olric dmap close")
		}
		if o.db != nil {
			return o.db.Shutdown(ctx)
		}
		return o.client.Close(ctx)
	})
}

var (
	_ Cache  = (*olricCache)(nil)
	_ Locker = (*olricCache)(nil)
	_ Pinger = (*olricCache)(nil)
)
