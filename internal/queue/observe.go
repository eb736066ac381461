package queue

import (
	"context"

	"go.uber.org/zap"
)

// ObserveAll streams the full queue, oldest first. The current state is sent
// immediately and again after every committed change; intermediate states may
// be coalesced. The channel closes when ctx ends.
func (s *Store) ObserveAll(ctx context.Context) <-chan []Submission {
	out := make(chan []Submission, 1)
	changes, cancel := s.hub.Subscribe()

	go func() {
		defer close(out)
		defer cancel()
		for {
			subs, err := s.List(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("queue observer read failed", zap.Error(err))
			} else {
				select {
				case out <- subs:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ObservePendingCount streams the number of not-in-flight records for
// formID. Only distinct values are sent after the initial one.
func (s *Store) ObservePendingCount(ctx context.Context, formID string) <-chan int {
	out := make(chan int, 1)
	changes, cancel := s.hub.Subscribe()

	go func() {
		defer close(out)
		defer cancel()
		last := -1
		for {
			n, err := s.CountPendingByForm(ctx, formID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("pending count observer read failed",
					zap.String("form_id", formID), zap.Error(err))
			} else if n != last {
				select {
				case out <- n:
					last = n
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
