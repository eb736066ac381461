package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SyncScheduler is the capability called after every enqueue and manual retry.
type SyncScheduler interface {
	ScheduleSync()
}

// Passer runs one sync pass.
type Passer interface {
	SyncPending(ctx context.Context) (Report, error)
}

type SchedulerConfig struct {
	// Interval between periodic passes; zero disables the ticker.
	Interval time.Duration
	// Debounce delays a requested pass so bursts of requests share one.
	Debounce time.Duration
	// RetryBase and RetryMax bound the backoff after a pass that left work behind.
	RetryBase time.Duration
	RetryMax  time.Duration
}

// Scheduler runs sync passes in the background: on request, on a ticker, and
// with exponential backoff after a pass that needs a retry.
type Scheduler struct {
	passer Passer
	cfg    SchedulerConfig
	logger *zap.Logger

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ SyncScheduler = (*Scheduler)(nil)

func NewScheduler(p Passer, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	return &Scheduler{
		passer:  p,
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// ScheduleSync requests a pass without blocking. Requests made while one is
// already waiting are coalesced into it.
func (s *Scheduler) ScheduleSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start begins the background loop. It must be paired with Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("sync scheduler started",
		zap.Duration("interval", s.cfg.Interval), zap.Duration("debounce", s.cfg.Debounce))
}

// Stop cancels any running pass and waits for the loop to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
			if !s.wait(ctx, s.cfg.Debounce) {
				return
			}
			// Requests that arrived during the debounce share this pass.
			select {
			case <-s.trigger:
			default:
			}
		case <-tick:
		case <-retry.C:
		}

		report, err := s.passer.SyncPending(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("sync pass failed", zap.Error(err))
		}
		if err != nil || report.NeedsRetry {
			failures++
			delay := Backoff(s.cfg.RetryBase, s.cfg.RetryMax, failures)
			retry.Reset(delay)
			s.logger.Debug("sync retry scheduled", zap.Duration("delay", delay), zap.Int("failures", failures))
		} else {
			failures = 0
			retry.Stop()
		}
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Backoff returns base × 2^(n-1), capped at max.
func Backoff(base, max time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
