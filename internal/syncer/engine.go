// Package syncer delivers queued submissions to the server.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/queue"
	"github.com/lofari/DynamicForms-sub000/internal/remote"
)

// DefaultMaxAttempts bounds delivery attempts before a submission is FAILED.
const DefaultMaxAttempts = 5

type Outcome int

const (
	// Synced: the server accepted the submission and it was deleted.
	Synced Outcome = iota
	// Failed: the submission is FAILED and needs user action.
	Failed
	// Retryable: the submission is PENDING again for a later pass.
	Retryable
	// Skipped: the submission no longer exists or is not PENDING.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Synced:
		return "synced"
	case Failed:
		return "failed"
	case Retryable:
		return "retryable"
	default:
		return "skipped"
	}
}

// Queue is the part of the submission store the engine drives.
type Queue interface {
	Pending(ctx context.Context) ([]queue.Submission, error)
	Transition(ctx context.Context, id string, fn func(*queue.Submission) error) (*queue.Submission, error)
	Delete(ctx context.Context, id string) error
	ResetInterrupted(ctx context.Context) (int64, error)
}

// Report summarizes one sync pass.
type Report struct {
	Attempted  int  `json:"attempted"`
	Synced     int  `json:"synced"`
	Failed     int  `json:"failed"`
	Retryable  int  `json:"retryable"`
	Skipped    int  `json:"skipped"`
	Cancelled  bool `json:"cancelled"`
	NeedsRetry bool `json:"needsRetry"`
}

// Engine runs sync passes. It keeps no per-submission state between calls;
// the queue store is the only source of truth.
type Engine struct {
	queue       Queue
	remote      remote.Submitter
	maxAttempts int
	concurrency int
	logger      *zap.Logger

	pass chan struct{}
}

type Option func(*Engine)

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithConcurrency lets up to n submissions of a pass be in flight at once.
// Items still start oldest first.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(q Queue, r remote.Submitter, opts ...Option) *Engine {
	e := &Engine{
		queue:       q,
		remote:      r,
		maxAttempts: DefaultMaxAttempts,
		concurrency: 1,
		logger:      zap.NewNop(),
		pass:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncOne attempts a single delivery of sub.
func (e *Engine) SyncOne(ctx context.Context, sub queue.Submission) (Outcome, error) {
	claimed, err := e.queue.Transition(ctx, sub.ID, func(s *queue.Submission) error {
		if s.Status != queue.StatusPending {
			return queue.ErrNotEligible
		}
		s.Status = queue.StatusSyncing
		return nil
	})
	if errors.Is(err, queue.ErrNotFound) || errors.Is(err, queue.ErrNotEligible) {
		return Skipped, nil
	}
	if err != nil {
		return Retryable, fmt.Errorf("claim submission: %w", err)
	}

	log := e.logger.With(zap.String("submission_id", claimed.ID), zap.String("form_id", claimed.FormID))

	resp, err := e.remote.Submit(ctx, claimed.FormID, claimed.Values, claimed.ID)
	if err != nil {
		if ctx.Err() != nil {
			// The outcome was never observed; the attempt does not count.
			if rerr := e.release(context.WithoutCancel(ctx), claimed.ID); rerr != nil {
				return Retryable, rerr
			}
			log.Info("sync interrupted", zap.Error(ctx.Err()))
			return Retryable, ctx.Err()
		}
		return e.recordFailure(ctx, log, claimed.ID, err)
	}

	if resp.Success {
		if err := e.queue.Delete(context.WithoutCancel(ctx), claimed.ID); err != nil {
			return Synced, fmt.Errorf("delete synced submission: %w", err)
		}
		log.Info("submission synced", zap.String("server_id", resp.SubmissionID))
		return Synced, nil
	}

	msg := rejectionMessage(resp)
	_, err = e.queue.Transition(context.WithoutCancel(ctx), claimed.ID, func(s *queue.Submission) error {
		s.AttemptCount++
		s.Status = queue.StatusFailed
		s.ErrorMessage = queue.Message(msg)
		return nil
	})
	if err != nil {
		return Failed, fmt.Errorf("record rejection: %w", err)
	}
	log.Warn("submission rejected by server", zap.String("reason", msg))
	return Failed, nil
}

// recordFailure counts a failed attempt. Transport errors, timeouts and
// unstructured 404/5xx answers are all transient until attempts run out.
func (e *Engine) recordFailure(ctx context.Context, log *zap.Logger, id string, cause error) (Outcome, error) {
	outcome := Retryable
	_, err := e.queue.Transition(context.WithoutCancel(ctx), id, func(s *queue.Submission) error {
		s.AttemptCount++
		s.ErrorMessage = queue.Message(cause.Error())
		if s.AttemptCount >= e.maxAttempts {
			s.Status = queue.StatusFailed
			outcome = Failed
		} else {
			s.Status = queue.StatusPending
			outcome = Retryable
		}
		return nil
	})
	if err != nil {
		return Retryable, fmt.Errorf("record failure: %w", err)
	}

	kind := apperr.KindOf(cause)
	if outcome == Failed {
		log.Warn("submission failed, attempts exhausted",
			zap.Int("max_attempts", e.maxAttempts), zap.Stringer("kind", kind), zap.Error(cause))
	} else {
		log.Info("submission will be retried", zap.Stringer("kind", kind), zap.Error(cause))
	}
	return outcome, nil
}

// release puts a claimed submission back to PENDING untouched.
func (e *Engine) release(ctx context.Context, id string) error {
	_, err := e.queue.Transition(ctx, id, func(s *queue.Submission) error {
		if s.Status == queue.StatusSyncing {
			s.Status = queue.StatusPending
		}
		return nil
	})
	if err != nil && !errors.Is(err, queue.ErrNotFound) {
		return fmt.Errorf("release submission: %w", err)
	}
	return nil
}

// SyncPending runs one pass over the PENDING submissions, oldest first. Only
// one pass runs at a time; a concurrent caller waits for the running pass.
// Records left SYNCING by an interrupted pass are made PENDING first.
func (e *Engine) SyncPending(ctx context.Context) (Report, error) {
	select {
	case e.pass <- struct{}{}:
	case <-ctx.Done():
		return Report{Cancelled: true, NeedsRetry: true}, ctx.Err()
	}
	defer func() { <-e.pass }()

	if n, err := e.queue.ResetInterrupted(ctx); err != nil {
		return Report{NeedsRetry: true}, fmt.Errorf("reset interrupted: %w", err)
	} else if n > 0 {
		e.logger.Info("recovered interrupted submissions", zap.Int64("count", n))
	}

	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return Report{NeedsRetry: true}, fmt.Errorf("load pending: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	tally := func(o Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Attempted++
		switch o {
		case Synced:
			report.Synced++
		case Failed:
			report.Failed++
		case Retryable:
			report.Retryable++
		case Skipped:
			report.Skipped++
		}
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			e.logger.Error("sync item error", zap.Error(err))
		}
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, sub := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up only after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			tally(e.SyncOne(ctx, sub))
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		report.Cancelled = true
	}
	report.NeedsRetry = report.Retryable > 0 || report.Cancelled
	e.logger.Info("sync pass finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Int("retryable", report.Retryable),
		zap.Bool("cancelled", report.Cancelled))
	return report, nil
}

func rejectionMessage(resp *remote.SubmitResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	if len(resp.FieldErrors) > 0 {
		return apperr.JoinFieldErrors(resp.FieldErrors)
	}
	return "rejected by server"
}
