// Package testutil provides shared test fixtures.
package testutil

import (
	"testing"

	"github.com/splitpilot/splitpilot/internal/store"
)

// SetupStore creates a SQLite store in a temp directory, cleaned up when the
// test finishes.
func SetupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := t.TempDir() + "/test.db"
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
