package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/store"
)

// StoredSubmission is an accepted submission.
type StoredSubmission struct {
	ID             string      `json:"id"`
	FormID         string      `json:"formId"`
	Values         form.Values `json:"values"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// SubmissionStore persists accepted submissions in _submissions.
type SubmissionStore struct {
	db *store.Store

	mu   sync.Mutex
	last int64
}

func NewSubmissionStore(db *store.Store) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func (s *SubmissionStore) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return now
}

// Insert stores values and returns the new submission id.
func (s *SubmissionStore) Insert(ctx context.Context, formID string, values form.Values, idempotencyKey string) (string, error) {
	blob, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}

	var key any
	if idempotencyKey != "" {
		key = idempotencyKey
	}

	id := uuid.New().String()
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _submissions (id, form_id, values_json, idempotency_key, created_at) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(id), pb.Add(formID), pb.Add(string(blob)), pb.Add(key), pb.Add(s.stamp()))
	if _, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...); err != nil {
		return "", fmt.Errorf("insert submission: %w", store.MapError(s.db.Dialect, err))
	}
	return id, nil
}

// List returns the submissions of formID, oldest first.
func (s *SubmissionStore) List(ctx context.Context, formID string) ([]StoredSubmission, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := "SELECT id, form_id, values_json, idempotency_key, created_at FROM _submissions WHERE form_id = " +
		pb.Add(formID) + " ORDER BY created_at, id"
	rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]StoredSubmission, 0, len(rows))
	for _, row := range rows {
		values, err := decodeValues(row["values_json"])
		if err != nil {
			return nil, fmt.Errorf("submission %s: %w", store.String(row, "id"), err)
		}
		var key string
		if k := store.NullString(row, "idempotency_key"); k != nil {
			key = *k
		}
		out = append(out, StoredSubmission{
			ID:             store.String(row, "id"),
			FormID:         store.String(row, "form_id"),
			Values:         values,
			IdempotencyKey: key,
			CreatedAt:      time.Unix(0, store.Int64(row, "created_at")).UTC(),
		})
	}
	return out, nil
}

// decodeValues accepts the TEXT column of sqlite and the JSONB column of
// postgres, which the pgx driver may hand back already decoded.
func decodeValues(raw any) (form.Values, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}
	values := form.Values{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
