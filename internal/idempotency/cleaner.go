package idempotency

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cleaner purges expired outcomes on a fixed interval.
type Cleaner struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCleaner(store Store, interval time.Duration, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Cleaner{store: store, interval: interval, logger: logger}
}

// Start launches the background loop. It must be paired with Stop.
func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanOnce(ctx)
			}
		}
	}()
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// CleanOnce runs a single purge.
func (c *Cleaner) CleanOnce(ctx context.Context) {
	n, err := c.store.Purge(ctx)
	if err != nil {
		c.logger.Error("idempotency cleanup", zap.Error(err))
		return
	}
	if n > 0 {
		c.logger.Info("idempotency cleanup: purged expired keys", zap.Int64("count", n))
	}
}
