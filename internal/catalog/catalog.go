// Package catalog caches form definitions on the client so forms stay
// usable offline.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/remote"
	"github.com/lofari/DynamicForms-sub000/internal/store"
)

const summariesKey = "summaries"

func formKey(id string) string { return "form:" + id }

// Catalog fetches from the server and falls back to the last good copy. A
// failed refresh never overwrites what is cached.
type Catalog struct {
	source remote.FormSource
	db     *store.Store
	logger *zap.Logger
	group  singleflight.Group
}

func New(source remote.FormSource, db *store.Store, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{source: source, db: db, logger: logger}
}

// Summaries returns the form list. When the refresh fails, the cached list is
// returned together with the refresh error; callers may show the list and
// report the error.
func (c *Catalog) Summaries(ctx context.Context) ([]form.Summary, error) {
	v, fetchErr, _ := c.group.Do(summariesKey, func() (any, error) {
		sums, err := c.source.ListFormSummaries(ctx)
		if err != nil {
			return nil, err
		}
		c.put(ctx, summariesKey, sums)
		return sums, nil
	})
	if fetchErr == nil {
		return v.([]form.Summary), nil
	}

	var cached []form.Summary
	if ok := c.get(ctx, summariesKey, &cached); ok {
		return cached, fetchErr
	}
	return nil, fetchErr
}

// Form returns one definition, with the same fallback as Summaries.
func (c *Catalog) Form(ctx context.Context, id string) (*form.Definition, error) {
	v, fetchErr, _ := c.group.Do(formKey(id), func() (any, error) {
		def, err := c.source.GetForm(ctx, id)
		if err != nil {
			return nil, err
		}
		c.put(ctx, formKey(id), def)
		return def, nil
	})
	if fetchErr == nil {
		return v.(*form.Definition), nil
	}

	if def, ok := c.Cached(ctx, id); ok {
		return def, fetchErr
	}
	return nil, fetchErr
}

// Cached returns the stored definition without contacting the server.
func (c *Catalog) Cached(ctx context.Context, id string) (*form.Definition, bool) {
	var raw json.RawMessage
	if !c.get(ctx, formKey(id), &raw) {
		return nil, false
	}
	def, err := form.Decode(raw)
	if err != nil {
		c.logger.Warn("ignoring unreadable cached form", zap.String("form_id", id), zap.Error(err))
		return nil, false
	}
	return def, true
}

func (c *Catalog) put(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cannot encode catalog entry", zap.String("key", key), zap.Error(err))
		return
	}
	pb := c.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO _form_cache (cache_key, payload, fetched_at) VALUES (%s, %s, %s)
		 ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		pb.Add(key), pb.Add(string(payload)), pb.Add(time.Now().UnixNano()))
	if _, err := store.Exec(ctx, c.db.DB, sqlStr, pb.Params()...); err != nil {
		c.logger.Warn("cannot persist catalog entry", zap.String("key", key),
			zap.Error(apperr.Storage("cache form", err)))
	}
}

func (c *Catalog) get(ctx context.Context, key string, dst any) bool {
	pb := c.db.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, c.db.DB, "SELECT payload FROM _form_cache WHERE cache_key = "+pb.Add(key), pb.Params()...)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cannot read catalog entry", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(store.String(row, "payload")), dst); err != nil {
		c.logger.Warn("ignoring unreadable catalog entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
