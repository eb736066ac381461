package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/lofari/DynamicForms-sub000/internal/store"
	"github.com/lofari/DynamicForms-sub000/internal/store/storetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Unix(1_700_000_000, 0)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func stores(t *testing.T, ttl time.Duration) map[string]struct {
	store Store
	clock *clock
} {
	mc := newClock()
	mem := NewMemoryStore(ttl, 100)
	mem.now = mc.Now

	sc := newClock()
	sq := NewSQLStore(storetest.Open(t, store.ServerSchema), ttl)
	sq.now = sc.Now

	return map[string]struct {
		store Store
		clock *clock
	}{
		"memory": {mem, mc},
		"sql":    {sq, sc},
	}
}

func TestStores_PutGetExpire(t *testing.T) {
	for name, tc := range stores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := tc.store.Get(ctx, "f:k1")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, tc.store.Put(ctx, "f:k1", Outcome{Status: 200, Body: []byte(`{"success":true}`)}))
			got, err = tc.store.Get(ctx, "f:k1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 200, got.Status)
			assert.Equal(t, `{"success":true}`, string(got.Body))

			require.NoError(t, tc.store.Put(ctx, "f:k1", Outcome{Status: 422, Body: []byte(`{}`)}))
			got, err = tc.store.Get(ctx, "f:k1")
			require.NoError(t, err)
			assert.Equal(t, 422, got.Status)

			tc.clock.Advance(time.Hour)
			got, err = tc.store.Get(ctx, "f:k1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStores_Purge(t *testing.T) {
	for name, tc := range stores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, tc.store.Put(ctx, "a", Outcome{Status: 200}))
			tc.clock.Advance(30 * time.Second)
			require.NoError(t, tc.store.Put(ctx, "b", Outcome{Status: 200}))
			tc.clock.Advance(45 * time.Second)

			n, err := tc.store.Purge(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			got, err := tc.store.Get(ctx, "b")
			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Hour, 2)

	require.NoError(t, m.Put(ctx, "a", Outcome{Status: 200}))
	require.NoError(t, m.Put(ctx, "b", Outcome{Status: 200}))
	require.NoError(t, m.Put(ctx, "c", Outcome{Status: 200}))
	assert.Equal(t, 2, m.Len())

	got, _ := m.Get(ctx, "a")
	assert.Nil(t, got)
	got, _ = m.Get(ctx, "c")
	assert.NotNil(t, got)
}

func TestGuard_ReplaysStoredOutcome(t *testing.T) {
	g := NewGuard(NewMemoryStore(time.Hour, 0), zaptest.NewLogger(t))
	ctx := context.Background()
	var calls int
	fn := func(context.Context) (Outcome, error) {
		calls++
		return Outcome{Status: http.StatusOK, Body: []byte(`{"success":true,"submissionId":"s1"}`)}, nil
	}

	first, replayed, err := g.Do(ctx, Key("f", "k"), fn)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := g.Do(ctx, Key("f", "k"), fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, replayed, err = g.Do(ctx, Key("other", "k"), fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, calls)
}

func TestGuard_DoesNotCacheTransientOutcomes(t *testing.T) {
	g := NewGuard(NewMemoryStore(time.Hour, 0), nil)
	ctx := context.Background()
	var calls int
	fn := func(context.Context) (Outcome, error) {
		calls++
		return Outcome{Status: http.StatusInternalServerError}, nil
	}

	_, _, err := g.Do(ctx, "k", fn)
	require.NoError(t, err)
	_, replayed, err := g.Do(ctx, "k", fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	_, _, err = g.Do(ctx, "k2", func(context.Context) (Outcome, error) { return Outcome{}, boom })
	assert.ErrorIs(t, err, boom)
}

func TestGuard_CollapsesConcurrentDuplicates(t *testing.T) {
	g := NewGuard(NewMemoryStore(time.Hour, 0), nil)
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(context.Context) (Outcome, error) {
		calls.Add(1)
		<-release
		return Outcome{Status: http.StatusOK, Body: []byte("ok")}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	var fresh atomic.Int32
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			out, replayed, err := g.Do(ctx, "k", fn)
			assert.NoError(t, err)
			assert.Equal(t, "ok", string(out.Body))
			if !replayed {
				fresh.Add(1)
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), fresh.Load())
}

func TestCleaner(t *testing.T) {
	m := NewMemoryStore(time.Millisecond, 0)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "a", Outcome{Status: 200}))

	c := NewCleaner(m, 5*time.Millisecond, zaptest.NewLogger(t))
	c.Start(ctx)
	defer c.Stop()

	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
