package draft

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/store"
	"github.com/lofari/DynamicForms-sub000/internal/store/storetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStore_LastWriteWins(t *testing.T) {
	db := storetest.Open(t, store.ClientSchema)
	s := New(db, zaptest.NewLogger(t))
	ctx := context.Background()

	d, err := s.Get(ctx, "f")
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, s.Save(ctx, "f", 0, form.Values{"a": "1", "b": "2"}))
	require.NoError(t, s.Save(ctx, "f", 2, form.Values{"a": "3"}))

	d, err = s.Get(ctx, "f")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2, d.PageIndex)
	assert.Equal(t, form.Values{"a": "3"}, d.Values, "no merge with the earlier draft")

	require.NoError(t, s.Delete(ctx, "f"))
	d, err = s.Get(ctx, "f")
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NoError(t, s.Delete(ctx, "f"))
}

func TestStore_CorruptDraftIsAbsent(t *testing.T) {
	db := storetest.Open(t, store.ClientSchema)
	s := New(db, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := store.Exec(ctx, db.DB, "INSERT INTO _drafts (form_id, page_index, values_json, updated_at) VALUES (?1, 0, ?2, 0)", "f", "[[[")
	require.NoError(t, err)

	d, err := s.Get(ctx, "f")
	require.NoError(t, err)
	assert.Nil(t, d)
}

type recordingSaver struct {
	mu    sync.Mutex
	saves []snapshot
	err   error
	block chan struct{}
}

func (r *recordingSaver) Save(_ context.Context, _ string, page int, values form.Values) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, snapshot{pageIndex: page, values: values})
	return r.err
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func TestAutosaver_Debounces(t *testing.T) {
	r := &recordingSaver{}
	a := NewAutosaver(r, "f", 30*time.Millisecond, zaptest.NewLogger(t))
	defer a.Close(context.Background())

	for i := 0; i < 5; i++ {
		a.Schedule(i, form.Values{"n": string(rune('a' + i))})
	}
	assert.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, r.count())
	assert.Equal(t, 4, r.saves[0].pageIndex)
	assert.Equal(t, "e", r.saves[0].values["n"])
}

func TestAutosaver_SnapshotIsolation(t *testing.T) {
	r := &recordingSaver{}
	a := NewAutosaver(r, "f", time.Hour, nil)
	values := form.Values{"a": "1"}
	a.Schedule(0, values)
	values["a"] = "changed"

	require.NoError(t, a.Flush(context.Background()))
	require.Equal(t, 1, r.count())
	assert.Equal(t, "1", r.saves[0].values["a"])
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, 1, r.count(), "nothing pending after flush")
}

func TestAutosaver_CloseFlushesSynchronously(t *testing.T) {
	r := &recordingSaver{}
	a := NewAutosaver(r, "f", time.Hour, nil)
	a.Schedule(1, form.Values{"a": "x"})

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, 1, r.count())

	a.Schedule(2, form.Values{"a": "y"})
	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 1, r.count(), "closed autosaver ignores new state")
}

func TestAutosaver_CancelDropsPending(t *testing.T) {
	r := &recordingSaver{}
	a := NewAutosaver(r, "f", 10*time.Millisecond, nil)
	a.Schedule(0, form.Values{"a": "x"})
	a.Cancel()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, r.count())
	require.NoError(t, a.Close(context.Background()))
}

func TestAutosaver_CancelWaitsForInFlightSave(t *testing.T) {
	r := &recordingSaver{block: make(chan struct{})}
	a := NewAutosaver(r, "f", time.Millisecond, nil)
	a.Schedule(0, form.Values{"a": "x"})

	// Let the timer fire and block inside Save.
	time.Sleep(20 * time.Millisecond)

	cancelled := make(chan struct{})
	go func() {
		a.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while a save was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(r.block)
	<-cancelled
	assert.Equal(t, 1, r.count())
}

func TestAutosaver_FlushReturnsSaveError(t *testing.T) {
	boom := errors.New("disk full")
	a := NewAutosaver(&recordingSaver{err: boom}, "f", time.Hour, nil)
	a.Schedule(0, form.Values{})
	assert.ErrorIs(t, a.Flush(context.Background()), boom)
}
