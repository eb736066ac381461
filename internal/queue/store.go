package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/store"
)

const selectColumns = "SELECT id, form_id, form_title, values_json, status, error_message, attempt_count, created_at, updated_at FROM _pending_submissions"

// Store is the durable submission queue. Every mutation is a single statement
// or one transaction, and observers are notified after it commits.
type Store struct {
	db     *store.Store
	hub    *Hub
	logger *zap.Logger

	clockMu sync.Mutex
	last    int64
}

func New(db *store.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, hub: NewHub(), logger: logger}
}

// Hub exposes the change feed, mainly for observers outside this package.
func (s *Store) Hub() *Hub { return s.hub }

// stamp returns a strictly increasing unix-nano timestamp so records enqueued
// by this process keep their insertion order.
func (s *Store) stamp() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Enqueue persists a new PENDING submission and returns its id.
func (s *Store) Enqueue(ctx context.Context, formID, formTitle string, values form.Values) (string, error) {
	if values == nil {
		values = form.Values{}
	}
	blob, err := json.Marshal(values)
	if err != nil {
		return "", apperr.Storage("encode values", err)
	}

	id := uuid.New().String()
	now := s.stamp()

	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _pending_submissions (id, form_id, form_title, values_json, status, attempt_count, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, 0, %s, %s)",
		pb.Add(id), pb.Add(formID), pb.Add(formTitle), pb.Add(string(blob)), pb.Add(string(StatusPending)), pb.Add(now), pb.Add(now))
	if _, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...); err != nil {
		return "", apperr.Storage("enqueue", err)
	}

	s.hub.Notify()
	return id, nil
}

// List returns every record, oldest first.
func (s *Store) List(ctx context.Context) ([]Submission, error) {
	rows, err := store.QueryRows(ctx, s.db.DB, selectColumns+" ORDER BY created_at, id")
	if err != nil {
		return nil, apperr.Storage("list submissions", err)
	}
	return s.decodeRows(rows), nil
}

// Pending returns a snapshot of the PENDING records, oldest first.
func (s *Store) Pending(ctx context.Context) ([]Submission, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := selectColumns + " WHERE status = " + pb.Add(string(StatusPending)) + " ORDER BY created_at, id"
	rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, apperr.Storage("list pending", err)
	}
	return s.decodeRows(rows), nil
}

// Get returns one record. A record whose values cannot be decoded is
// reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Submission, error) {
	return s.get(ctx, s.db.DB, id, "")
}

func (s *Store) get(ctx context.Context, q store.Querier, id, suffix string) (*Submission, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := selectColumns + " WHERE id = " + pb.Add(id) + suffix
	row, err := store.QueryRow(ctx, q, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Storage("get submission", err)
	}
	sub, ok := s.decodeRow(row)
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

// UpdateStatus applies a partial update in a single statement.
func (s *Store) UpdateStatus(ctx context.Context, id string, u Update) error {
	pb := s.db.Dialect.NewParamBuilder()
	sets := []string{"updated_at = " + pb.Add(s.stamp())}
	if u.Status != "" {
		sets = append(sets, "status = "+pb.Add(string(u.Status)))
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = "+pb.Add(nullable(*u.ErrorMessage)))
	}
	if u.AttemptCount != nil {
		sets = append(sets, "attempt_count = "+pb.Add(*u.AttemptCount))
	}
	sqlStr := fmt.Sprintf("UPDATE _pending_submissions SET %s WHERE id = %s", strings.Join(sets, ", "), pb.Add(id))

	n, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return apperr.Storage("update submission", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.hub.Notify()
	return nil
}

// Transition runs a read-modify-write of one record in a single transaction.
// fn receives the current record and mutates it in place; returning an error
// aborts without writing. Status, error message and attempt count are
// persisted.
func (s *Store) Transition(ctx context.Context, id string, fn func(*Submission) error) (*Submission, error) {
	var out *Submission
	var fnErr error
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		sub, err := s.get(ctx, tx, id, s.db.Dialect.ForUpdate())
		if err != nil {
			return err
		}
		if fnErr = fn(sub); fnErr != nil {
			return fnErr
		}

		sub.UpdatedAt = time.Unix(0, s.stamp())
		var errMsg any
		if sub.ErrorMessage != nil {
			errMsg = nullable(*sub.ErrorMessage)
		}
		pb := s.db.Dialect.NewParamBuilder()
		sqlStr := fmt.Sprintf(
			"UPDATE _pending_submissions SET status = %s, error_message = %s, attempt_count = %s, updated_at = %s WHERE id = %s",
			pb.Add(string(sub.Status)), pb.Add(errMsg), pb.Add(sub.AttemptCount), pb.Add(sub.UpdatedAt.UnixNano()), pb.Add(id))
		if _, err := store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
			return apperr.Storage("transition submission", err)
		}
		out = sub
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if fnErr != nil || errors.Is(err, ErrNotFound) || errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Storage("transition submission", err)
	}
	s.hub.Notify()
	return out, nil
}

// Delete removes a record. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	pb := s.db.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.db.DB, "DELETE FROM _pending_submissions WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return apperr.Storage("delete submission", err)
	}
	if n > 0 {
		s.hub.Notify()
	}
	return nil
}

// Retry moves a FAILED record back to PENDING with a fresh attempt budget.
func (s *Store) Retry(ctx context.Context, id string) error {
	_, err := s.Transition(ctx, id, func(sub *Submission) error {
		if sub.Status != StatusFailed {
			return ErrNotEligible
		}
		sub.Status = StatusPending
		sub.AttemptCount = 0
		sub.ErrorMessage = nil
		return nil
	})
	return err
}

// Discard deletes a FAILED record. Records in any other state are not
// eligible: PENDING and SYNCING items still belong to the sync engine.
func (s *Store) Discard(ctx context.Context, id string) error {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _pending_submissions WHERE id = %s AND status = %s", pb.Add(id), pb.Add(string(StatusFailed)))
	n, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return apperr.Storage("discard submission", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotEligible
	}
	s.hub.Notify()
	return nil
}

// ResetInterrupted returns every SYNCING record to PENDING. A SYNCING flag
// found outside a running sync pass means the outcome was never observed.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE _pending_submissions SET status = %s, updated_at = %s WHERE status = %s",
		pb.Add(string(StatusPending)), pb.Add(s.stamp()), pb.Add(string(StatusSyncing)))
	n, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return 0, apperr.Storage("reset interrupted", err)
	}
	if n > 0 {
		s.hub.Notify()
	}
	return n, nil
}

// CountPendingByForm counts the records of formID that are not in flight.
func (s *Store) CountPendingByForm(ctx context.Context, formID string) (int, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS n FROM _pending_submissions WHERE form_id = %s AND status <> %s",
		pb.Add(formID), pb.Add(string(StatusSyncing)))
	row, err := store.QueryRow(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return 0, apperr.Storage("count pending", err)
	}
	return int(store.Int64(row, "n")), nil
}

func (s *Store) decodeRows(rows []map[string]any) []Submission {
	out := make([]Submission, 0, len(rows))
	for _, row := range rows {
		if sub, ok := s.decodeRow(row); ok {
			out = append(out, *sub)
		}
	}
	return out
}

func (s *Store) decodeRow(row map[string]any) (*Submission, bool) {
	id := store.String(row, "id")
	var values form.Values
	if err := json.Unmarshal([]byte(store.String(row, "values_json")), &values); err != nil {
		s.logger.Warn("skipping submission with unreadable values",
			zap.String("submission_id", id), zap.Error(err))
		return nil, false
	}
	if values == nil {
		values = form.Values{}
	}
	return &Submission{
		ID:           id,
		FormID:       store.String(row, "form_id"),
		FormTitle:    store.String(row, "form_title"),
		Values:       values,
		Status:       Status(store.String(row, "status")),
		ErrorMessage: store.NullString(row, "error_message"),
		AttemptCount: int(store.Int64(row, "attempt_count")),
		CreatedAt:    time.Unix(0, store.Int64(row, "created_at")),
		UpdatedAt:    time.Unix(0, store.Int64(row, "updated_at")),
	}, true
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
