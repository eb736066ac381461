// Package session holds the state of one form being filled in on the client.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/draft"
	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/rules"
	"github.com/lofari/DynamicForms-sub000/internal/syncer"
)

var ErrSubmitted = errors.New("session already submitted")

// Enqueuer accepts a finished submission.
type Enqueuer interface {
	Enqueue(ctx context.Context, formID, formTitle string, values form.Values) (string, error)
}

// DraftStore persists in-progress values.
type DraftStore interface {
	draft.Saver
	Get(ctx context.Context, formID string) (*draft.Draft, error)
	Delete(ctx context.Context, formID string) error
}

type Deps struct {
	Queue         Enqueuer
	Drafts        DraftStore
	Scheduler     syncer.SyncScheduler
	AutosaveDelay time.Duration
	Logger        *zap.Logger
}

// Session is a single editing context. It is not safe for concurrent use.
type Session struct {
	def       *form.Definition
	values    form.Values
	page      int
	errs      rules.Errors
	submitted bool

	deps     Deps
	autosave *draft.Autosaver
	logger   *zap.Logger
}

// Open starts a session for def, resuming its draft when there is one.
func Open(ctx context.Context, def *form.Definition, deps Deps) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		def:      def,
		values:   form.Values{},
		errs:     rules.Errors{},
		deps:     deps,
		autosave: draft.NewAutosaver(deps.Drafts, def.ID, deps.AutosaveDelay, logger),
		logger:   logger.With(zap.String("form_id", def.ID)),
	}

	d, err := deps.Drafts.Get(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	if d != nil {
		s.values = d.Values.Clone()
		s.page = clamp(d.PageIndex, 0, len(def.Pages)-1)
		s.logger.Debug("resumed draft", zap.Int("page", s.page))
	}
	return s, nil
}

func clamp(n, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func (s *Session) Definition() *form.Definition { return s.def }

func (s *Session) Values() form.Values { return s.values.Clone() }

func (s *Session) Page() int { return s.page }

func (s *Session) IsLastPage() bool { return s.page >= len(s.def.Pages)-1 }

// Errors returns the field errors from the last validation.
func (s *Session) Errors() rules.Errors { return s.errs }

// Set records a value and schedules an autosave. A stale error for the key is
// cleared.
func (s *Session) Set(key, value string) {
	s.values[key] = value
	delete(s.errs, key)
	s.autosave.Schedule(s.page, s.values)
}

// VisibleElements returns the current page's visible elements.
func (s *Session) VisibleElements() []form.Element {
	if len(s.def.Pages) == 0 {
		return nil
	}
	return rules.VisibleElements(s.def.Pages[s.page], s.values)
}

// ValidatePage validates the current page and remembers the result.
func (s *Session) ValidatePage() rules.Errors {
	if len(s.def.Pages) == 0 {
		s.errs = rules.Errors{}
		return s.errs
	}
	s.errs = rules.Validate(s.def.Pages[s.page], s.values)
	return s.errs
}

// Next advances one page when the current page is valid.
func (s *Session) Next() bool {
	if len(s.ValidatePage()) > 0 || s.IsLastPage() {
		return false
	}
	s.page++
	s.autosave.Schedule(s.page, s.values)
	return true
}

// Back moves one page back without validating.
func (s *Session) Back() bool {
	if s.page == 0 {
		return false
	}
	s.page--
	s.errs = rules.Errors{}
	s.autosave.Schedule(s.page, s.values)
	return true
}

// Submit validates every page and enqueues the values. On validation errors
// the session moves to the first page with an error and returns an
// apperr.KindValidation error. After a successful enqueue the draft is
// removed and a sync is scheduled.
func (s *Session) Submit(ctx context.Context) (string, error) {
	if s.submitted {
		return "", ErrSubmitted
	}

	errs := rules.ValidateAll(s.def.Pages, s.values)
	if len(errs) > 0 {
		s.errs = errs
		s.page = rules.FirstPageWithErrors(s.def.Pages, errs)
		return "", apperr.Validation("form has errors", errs)
	}
	s.errs = rules.Errors{}

	// No autosave may land after the draft is deleted.
	s.autosave.Cancel()

	id, err := s.deps.Queue.Enqueue(ctx, s.def.ID, s.def.Title, s.values.Clone())
	if err != nil {
		s.autosave.Schedule(s.page, s.values)
		return "", err
	}
	s.submitted = true
	// Nothing is pending after Cancel; closing stops later edits from
	// recreating the draft.
	_ = s.autosave.Close(ctx)

	if err := s.deps.Drafts.Delete(ctx, s.def.ID); err != nil {
		s.logger.Error("draft not removed after enqueue", zap.String("submission_id", id), zap.Error(err))
	}
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.ScheduleSync()
	}
	s.logger.Info("submission enqueued", zap.String("submission_id", id))
	return id, nil
}

// DiscardDraft clears the values and removes the saved draft.
func (s *Session) DiscardDraft(ctx context.Context) error {
	s.autosave.Cancel()
	s.values = form.Values{}
	s.errs = rules.Errors{}
	s.page = 0
	return s.deps.Drafts.Delete(ctx, s.def.ID)
}

// Close releases the session, saving any pending draft state first unless
// the form was submitted.
func (s *Session) Close(ctx context.Context) error {
	if s.submitted {
		return nil
	}
	return s.autosave.Close(ctx)
}
