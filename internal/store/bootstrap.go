package store

import (
	"context"
	"fmt"
)

// Bootstrap creates the tables of schema if they do not exist yet.
func (s *Store) Bootstrap(ctx context.Context, schema Schema) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.TablesSQL(schema)); err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}
	return nil
}
