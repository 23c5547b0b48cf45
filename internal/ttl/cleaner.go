// Package ttl sweeps expired peer caches out of the in-memory backend.
// Reads already treat expired entries as missing; the sweep only reclaims
// memory for peers that are no longer queried.
package ttl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"registry-federation/internal/metrics"
)

// Sweepable is the part of a cache backend the cleaner needs.
type Sweepable interface {
	RemoveExpired() int
}

// Cleaner periodically removes expired entries from a cache backend.
type Cleaner struct {
	cache    Sweepable
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Registry
}

func NewCleaner(
	cache Sweepable,
	interval time.Duration,
	logger *zap.Logger,
	reg *metrics.Registry,
) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{
		cache:    cache,
		interval: interval,
		logger:   logger,
		metrics:  reg,
	}
}

// Start runs the sweep loop until ctx is cancelled. It blocks.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Debug("ttl cleaner started", zap.Duration("interval", c.interval))
	for {
		select {
		case <-ticker.C:
			c.runOnce()
		case <-ctx.Done():
			c.logger.Debug("ttl cleaner stopped")
			return
		}
	}
}

func (c *Cleaner) runOnce() int {
	c.metrics.Inc(metrics.TTLCleanupRunsTotal)

	removed := c.cache.RemoveExpired()
	if removed > 0 {
		c.metrics.Add(metrics.TTLKeysRemovedTotal, int64(removed))
		c.logger.Info("ttl cleaner removed expired keys", zap.Int("removed", removed))
	}
	return removed
}
