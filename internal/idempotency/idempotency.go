// Package idempotency makes submission handling safe under at-least-once
// delivery: a repeated request with the same key within the TTL replays the
// first outcome instead of running again.
package idempotency

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Outcome is a stored response.
type Outcome struct {
	Status int
	Body   []byte
}

// Store persists outcomes by key until they expire.
type Store interface {
	// Get returns the live outcome for key, or nil.
	Get(ctx context.Context, key string) (*Outcome, error)
	Put(ctx context.Context, key string, o Outcome) error
	// Purge removes expired entries and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
}

// Cacheable reports whether an outcome is final and may be replayed:
// an acceptance or a structured rejection.
func Cacheable(status int) bool {
	return status == http.StatusOK || status == http.StatusUnprocessableEntity
}

// Key scopes a client key to one form.
func Key(formID, clientKey string) string {
	return formID + ":" + clientKey
}

// Guard runs a handler at most once per key.
type Guard struct {
	store  Store
	group  singleflight.Group
	logger *zap.Logger
}

func NewGuard(store Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, logger: logger}
}

type result struct {
	outcome Outcome
	replay  bool
	runner  *int
}

// Do returns the stored outcome for key when there is one; otherwise it runs
// fn and stores its outcome if Cacheable. Concurrent calls with the same key
// share one execution. replayed is true for every caller whose outcome was
// not produced by its own fn.
func (g *Guard) Do(ctx context.Context, key string, fn func(context.Context) (Outcome, error)) (out Outcome, replayed bool, err error) {
	self := new(int)
	v, err, _ := g.group.Do(key, func() (any, error) {
		stored, err := g.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if stored != nil {
			return result{outcome: *stored, replay: true}, nil
		}

		o, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if Cacheable(o.Status) {
			// The submission already happened; a failed put only loses the replay.
			if err := g.store.Put(context.WithoutCancel(ctx), key, o); err != nil {
				g.logger.Error("store idempotency outcome", zap.String("key", key), zap.Error(err))
			}
		}
		return result{outcome: o, runner: self}, nil
	})
	if err != nil {
		return Outcome{}, false, err
	}
	res := v.(result)
	return res.outcome, res.replay || res.runner != self, nil
}
