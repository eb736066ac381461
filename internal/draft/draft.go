// Package draft keeps in-progress form values between sessions.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/store"
)

// Draft is the saved state of one form. There is at most one per form.
type Draft struct {
	FormID    string      `json:"formId"`
	PageIndex int         `json:"pageIndex"`
	Values    form.Values `json:"values"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type Store struct {
	db     *store.Store
	logger *zap.Logger
}

func New(db *store.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Save replaces any existing draft for formID. The last write wins.
func (s *Store) Save(ctx context.Context, formID string, pageIndex int, values form.Values) error {
	if values == nil {
		values = form.Values{}
	}
	blob, err := json.Marshal(values)
	if err != nil {
		return apperr.Storage("encode draft", err)
	}

	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO _drafts (form_id, page_index, values_json, updated_at) VALUES (%s, %s, %s, %s)
		 ON CONFLICT (form_id) DO UPDATE SET page_index = excluded.page_index, values_json = excluded.values_json, updated_at = excluded.updated_at`,
		pb.Add(formID), pb.Add(pageIndex), pb.Add(string(blob)), pb.Add(time.Now().UnixNano()))
	if _, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...); err != nil {
		return apperr.Storage("save draft", err)
	}
	return nil
}

// Get returns the draft for formID, or nil when there is none or it cannot
// be decoded.
func (s *Store) Get(ctx context.Context, formID string) (*Draft, error) {
	pb := s.db.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.db.DB,
		"SELECT form_id, page_index, values_json, updated_at FROM _drafts WHERE form_id = "+pb.Add(formID),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("get draft", err)
	}

	var values form.Values
	if err := json.Unmarshal([]byte(store.String(row, "values_json")), &values); err != nil {
		s.logger.Warn("ignoring unreadable draft", zap.String("form_id", formID), zap.Error(err))
		return nil, nil
	}
	if values == nil {
		values = form.Values{}
	}
	return &Draft{
		FormID:    formID,
		PageIndex: int(store.Int64(row, "page_index")),
		Values:    values,
		UpdatedAt: time.Unix(0, store.Int64(row, "updated_at")),
	}, nil
}

// Delete removes the draft for formID, if any.
func (s *Store) Delete(ctx context.Context, formID string) error {
	pb := s.db.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, s.db.DB, "DELETE FROM _drafts WHERE form_id = "+pb.Add(formID), pb.Params()...); err != nil {
		return apperr.Storage("delete draft", err)
	}
	return nil
}
