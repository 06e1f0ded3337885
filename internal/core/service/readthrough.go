package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

// computeTimeout bounds a shared compute once its starter has gone away.
const computeTimeout = 30 * time.Second

// ComputeFunc produces the serialized payload for a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// ReadThrough memoizes serialized read responses in the cache backend.
// Entries only expire by TTL unless a caller invalidates them explicitly.
type ReadThrough struct {
	cache   port.CacheRepository
	group   singleflight.Group
	metrics *metrics.Registry
	log     zerolog.Logger
}

func NewReadThrough(cache port.CacheRepository, m *metrics.Registry) *ReadThrough {
	return &ReadThrough{
		cache:   cache,
		metrics: m,
		log:     log.With().Str("component", "readthrough").Logger(),
	}
}

// GetOrCompute returns the cached bytes for key verbatim, or runs compute and
// stores its result for ttl. Concurrent misses on one key share a single
// compute, which keeps running when the caller that started it gives up.
// A compute error is returned and nothing is stored.
func (c *ReadThrough) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	cached, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		c.metrics.CacheRequests.WithLabelValues("error").Inc()
	} else if ok {
		c.metrics.CacheRequests.WithLabelValues("hit").Inc()
		return cached, nil
	} else {
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	// The shared compute outlives the caller that started it.
	ch := c.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()

		value, err := compute(cctx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(cctx, key, value, ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Invalidate drops a single key.
func (c *ReadThrough) Invalidate(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, key)
}

// InvalidatePrefix drops kind:id and every kind:id:* key, e.g. all cached
// pages of one product.
func (c *ReadThrough) InvalidatePrefix(ctx context.Context, kind, id string) error {
	base := kind + ":" + id
	if err := c.cache.Delete(ctx, base); err != nil {
		return err
	}
	return c.cache.DeletePrefix(ctx, base+":")
}
