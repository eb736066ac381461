package draft

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

// Saver persists a draft.
type Saver interface {
	Save(ctx context.Context, formID string, pageIndex int, values form.Values) error
}

type snapshot struct {
	pageIndex int
	values    form.Values
}

// Autosaver debounces draft saves for one editing session. Close flushes the
// pending save synchronously; Cancel drops it and waits out any save already
// running, so a later Delete cannot be overtaken by a stale write.
type Autosaver struct {
	saver  Saver
	formID string
	delay  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending *snapshot
	closed  bool

	saveMu sync.Mutex
}

func NewAutosaver(s Saver, formID string, delay time.Duration, logger *zap.Logger) *Autosaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{saver: s, formID: formID, delay: delay, logger: logger}
}

// Schedule records the latest state and restarts the debounce timer.
func (a *Autosaver) Schedule(pageIndex int, values form.Values) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending = &snapshot{pageIndex: pageIndex, values: values.Clone()}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Autosaver) fire() {
	if err := a.Flush(context.Background()); err != nil {
		a.logger.Warn("autosave failed", zap.String("form_id", a.formID), zap.Error(err))
	}
}

// Flush saves the pending state now, if there is one.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	snap := a.pending
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()

	if snap == nil {
		return nil
	}
	return a.saver.Save(ctx, a.formID, snap.pageIndex, snap.values)
}

// Cancel discards the pending save and blocks until an in-flight save ends.
func (a *Autosaver) Cancel() {
	a.mu.Lock()
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()

	// Wait for a save that already took its snapshot.
	a.saveMu.Lock()
	a.saveMu.Unlock()
}

// Close flushes the pending save and stops accepting new ones.
func (a *Autosaver) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return a.Flush(ctx)
}
