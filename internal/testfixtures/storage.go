package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/worktrack/internal/persistence"
	"github.com/example/worktrack/internal/persistence/memory"
	"github.com/example/worktrack/internal/persistence/sqlstore"
)

// NewSQLiteStore opens a migrated SQLite store in a temporary directory. The
// store is closed when the test ends.
func NewSQLiteStore(tb testing.TB) *sqlstore.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "worktrack.db")
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, sqlstore.DefaultConfig("sqlite://"+path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return store
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(tb testing.TB) *memory.Storage {
	tb.Helper()
	return memory.New()
}

// StoreFactories lists every store implementation so contract tests can run
// against each of them.
func StoreFactories() map[string]func(testing.TB) persistence.Store {
	return map[string]func(testing.TB) persistence.Store{
		"memory": func(tb testing.TB) persistence.Store { return NewMemoryStore(tb) },
		"sqlite": func(tb testing.TB) persistence.Store { return NewSQLiteStore(tb) },
	}
}
