package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/contextcatcher/internal/model"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB

	// mu serializes Save so the existence check, insert and counter
	// updates happen as one step for in-process callers.
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creating
// the parent directory if needed, enables WAL mode, and runs any pending
// schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
		dsn = "file:" + dbPath +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *SQLiteStore) applyMigration(m migration) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	return tx.Commit()
}

// Save inserts msg if its ID is new. The thread and counter rows are
// updated in the same transaction so Stats never observes a partial save.
func (s *SQLiteStore) Save(
	ctx context.Context,
	msg model.NormalizedMessage,
) (bool, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("marshaling message %s: %w", msg.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, thread_id, subject, from_addr, sent_at, sent_nanos, data
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.Subject, msg.FromAddr,
		msg.Date.Unix(), msg.Date.Nanosecond(), string(data),
	)
	if err != nil {
		return false, fmt.Errorf("inserting message %s: %w", msg.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("inserting message %s: %w", msg.ID, err)
	} else if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO threads (thread_id) VALUES (?)", msg.ThreadID,
	)
	if err != nil {
		return false, fmt.Errorf("recording thread %s: %w", msg.ThreadID, err)
	}
	newThreads, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording thread %s: %w", msg.ThreadID, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE counters SET messages = messages + 1, threads = threads + ? WHERE id = 1",
		newThreads,
	)
	if err != nil {
		return false, fmt.Errorf("updating counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing message %s: %w", msg.ID, err)
	}
	return true, nil
}

// List returns stored messages ordered by send date, newest first, with ID
// as the tie breaker.
func (s *SQLiteStore) List(
	ctx context.Context,
	limit, offset int,
) ([]model.NormalizedMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	var blobs []string
	err := s.db.SelectContext(ctx, &blobs, `
		SELECT data FROM messages
		ORDER BY sent_at DESC, sent_nanos DESC, id ASC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	return decodeMessages(blobs)
}

// GetThread assembles the thread's messages oldest first.
func (s *SQLiteStore) GetThread(
	ctx context.Context,
	threadID string,
) (*model.ThreadView, bool, error) {
	var blobs []string
	err := s.db.SelectContext(ctx, &blobs, `
		SELECT data FROM messages
		WHERE thread_id = ?
		ORDER BY sent_at ASC, sent_nanos ASC, id ASC`,
		threadID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("getting thread %s: %w", threadID, err)
	}
	if len(blobs) == 0 {
		return nil, false, nil
	}

	msgs, err := decodeMessages(blobs)
	if err != nil {
		return nil, false, err
	}

	view := buildThreadView(threadID, msgs)
	return &view, true, nil
}

func buildThreadView(threadID string, msgs []model.NormalizedMessage) model.ThreadView {
	view := model.ThreadView{
		ThreadID:     threadID,
		Subject:      msgs[0].Subject,
		Messages:     msgs,
		Participants: []string{},
		Earliest:     msgs[0].Date,
		Latest:       msgs[len(msgs)-1].Date,
	}

	seen := make(map[string]bool)
	for _, m := range msgs {
		if m.FromAddr == "" || seen[m.FromAddr] {
			continue
		}
		seen[m.FromAddr] = true
		view.Participants = append(view.Participants, m.FromAddr)
	}

	return view
}

// Stats reads the maintained counters and the indexed date bounds.
func (s *SQLiteStore) Stats(ctx context.Context) (model.StorageStats, error) {
	var counts struct {
		Messages int `db:"messages"`
		Threads  int `db:"threads"`
	}
	err := s.db.GetContext(ctx, &counts,
		"SELECT messages, threads FROM counters WHERE id = 1",
	)
	if err != nil {
		return model.StorageStats{}, fmt.Errorf("reading counters: %w", err)
	}

	stats := model.StorageStats{
		MessageCount: counts.Messages,
		ThreadCount:  counts.Threads,
	}
	if stats.Oldest, err = s.sentBound(ctx, "ASC"); err != nil {
		return model.StorageStats{}, err
	}
	if stats.Newest, err = s.sentBound(ctx, "DESC"); err != nil {
		return model.StorageStats{}, err
	}

	return stats, nil
}

// sentBound returns the earliest (ASC) or latest (DESC) send time, or nil
// when the store is empty.
func (s *SQLiteStore) sentBound(ctx context.Context, dir string) (*time.Time, error) {
	var row struct {
		Sec   int64 `db:"sent_at"`
		Nanos int64 `db:"sent_nanos"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT sent_at, sent_nanos FROM messages
		ORDER BY sent_at `+dir+`, sent_nanos `+dir+`
		LIMIT 1`,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading date bounds: %w", err)
	}

	t := time.Unix(row.Sec, row.Nanos).UTC()
	return &t, nil
}

type fetchRunRow struct {
	ID         string `db:"id"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
	Fetched    int    `db:"fetched"`
	Duplicates int    `db:"duplicates"`
	Errors     string `db:"errors"`
}

// RecordFetchRun appends a completed cycle to the fetch-run log.
func (s *SQLiteStore) RecordFetchRun(ctx context.Context, run model.FetchRun) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshaling fetch run errors: %w", err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO fetch_runs (
			id, started_at, finished_at, fetched, duplicates, errors
		) VALUES (
			:id, :started_at, :finished_at, :fetched, :duplicates, :errors
		)`,
		fetchRunRow{
			ID:         run.ID,
			StartedAt:  run.StartedAt.UTC().UnixNano(),
			FinishedAt: run.FinishedAt.UTC().UnixNano(),
			Fetched:    run.Fetched,
			Duplicates: run.Duplicates,
			Errors:     string(errJSON),
		},
	)
	if err != nil {
		return fmt.Errorf("recording fetch run %s: %w", run.ID, err)
	}
	return nil
}

// LastFetchRun returns the run with the latest finish time.
func (s *SQLiteStore) LastFetchRun(ctx context.Context) (*model.FetchRun, error) {
	var row fetchRunRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, started_at, finished_at, fetched, duplicates, errors
		FROM fetch_runs
		ORDER BY finished_at DESC
		LIMIT 1`,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last fetch run: %w", err)
	}

	run := model.FetchRun{
		ID:         row.ID,
		StartedAt:  time.Unix(0, row.StartedAt).UTC(),
		FinishedAt: time.Unix(0, row.FinishedAt).UTC(),
		Fetched:    row.Fetched,
		Duplicates: row.Duplicates,
	}
	if err := json.Unmarshal([]byte(row.Errors), &run.Errors); err != nil {
		return nil, fmt.Errorf("decoding fetch run %s errors: %w", row.ID, err)
	}

	return &run, nil
}

func decodeMessages(blobs []string) ([]model.NormalizedMessage, error) {
	msgs := make([]model.NormalizedMessage, 0, len(blobs))
	for _, b := range blobs {
		var m model.NormalizedMessage
		if err := json.Unmarshal([]byte(b), &m); err != nil {
			return nil, fmt.Errorf("decoding stored message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
