package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/contextcatcher/internal/store"
)

// NewTestStore creates a SQLiteStore in a temporary directory with all
// migrations applied. It automatically closes the store when the test
// completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(TestStorePath(t))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// TestStorePath returns a fresh database path under t.TempDir.
func TestStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "storage", "index.db")
}
