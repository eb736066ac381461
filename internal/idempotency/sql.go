package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lofari/DynamicForms-sub000/internal/store"
)

// SQLStore keeps outcomes in the _idempotency_keys table so replays survive
// restarts and are shared by every server instance on the database.
type SQLStore struct {
	db  *store.Store
	ttl time.Duration
	now func() time.Time
}

func NewSQLStore(db *store.Store, ttl time.Duration) *SQLStore {
	return &SQLStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, key string) (*Outcome, error) {
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT status, body FROM _idempotency_keys WHERE idem_key = %s AND expires_at > %s",
		pb.Add(key), pb.Add(s.now().UnixNano()))
	row, err := store.QueryRow(ctx, s.db.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Status: int(store.Int64(row, "status")),
		Body:   []byte(store.String(row, "body")),
	}, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, o Outcome) error {
	now := s.now()
	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _idempotency_keys (idem_key, status, body, created_at, expires_at) VALUES (%s, %s, %s, %s, %s) "+
			"ON CONFLICT (idem_key) DO UPDATE SET status = excluded.status, body = excluded.body, "+
			"created_at = excluded.created_at, expires_at = excluded.expires_at",
		pb.Add(key), pb.Add(o.Status), pb.Add(string(o.Body)), pb.Add(now.UnixNano()), pb.Add(now.Add(s.ttl).UnixNano()))
	if _, err := store.Exec(ctx, s.db.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("put idempotency key: %w", err)
	}
	return nil
}

func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	pb := s.db.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.db.DB, "DELETE FROM _idempotency_keys WHERE expires_at <= "+pb.Add(s.now().UnixNano()), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return n, nil
}
