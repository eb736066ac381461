// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/lofari/DynamicForms-sub000/internal/config"
	"github.com/lofari/DynamicForms-sub000/internal/store"
)

// Open returns a bootstrapped SQLite store under t.TempDir(), closed when the
// test ends.
func Open(t testing.TB, schema store.Schema) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx, schema); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}
