package store

import (
	"context"

	"github.com/nhle/contextcatcher/internal/model"
)

// Store defines the persistence interface for normalized messages and the
// fetch-run log. Message identity is the only deduplication key.
type Store interface {
	// === Messages ===

	// Save inserts msg unless its ID is already stored and reports whether
	// an insert happened. Saving a known ID is a no-op, never an error, and
	// does not update the stored content.
	Save(ctx context.Context, msg model.NormalizedMessage) (bool, error)

	// List returns messages newest first. A non-positive limit means no
	// limit.
	List(ctx context.Context, limit, offset int) ([]model.NormalizedMessage, error)

	// GetThread assembles every message sharing threadID. The boolean is
	// false when no message matches.
	GetThread(ctx context.Context, threadID string) (*model.ThreadView, bool, error)

	Stats(ctx context.Context) (model.StorageStats, error)

	// === Fetch runs ===

	RecordFetchRun(ctx context.Context, run model.FetchRun) error

	// LastFetchRun returns the most recently finished run, or nil when no
	// run has been recorded.
	LastFetchRun(ctx context.Context) (*model.FetchRun, error)

	Close() error
}
