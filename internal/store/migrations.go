package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	thread_id  TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	from_addr  TEXT NOT NULL DEFAULT '',
	sent_at    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages(sent_at);

CREATE TABLE IF NOT EXISTS threads (
	thread_id  TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS counters (
	id       INTEGER PRIMARY KEY CHECK(id = 1),
	messages INTEGER NOT NULL DEFAULT 0,
	threads  INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO counters (id) VALUES (1);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS fetch_runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	fetched     INTEGER NOT NULL DEFAULT 0,
	duplicates  INTEGER NOT NULL DEFAULT 0,
	errors      TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_fetch_runs_finished_at ON fetch_runs(finished_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},	{
		version: 3,
		sql: `
ALTER TABLE messages ADD COLUMN sent_nanos INTEGER NOT NULL DEFAULT 0;

UPDATE messages SET
	sent_nanos = ((sent_at % 1000000000) + 1000000000) % 1000000000,
	sent_at = (sent_at - ((sent_at % 1000000000) + 1000000000) % 1000000000) / 1000000000;

DROP INDEX IF EXISTS idx_messages_sent_at;
CREATE INDEX IF NOT EXISTS idx_messages_sent ON messages(sent_at, sent_nanos);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
