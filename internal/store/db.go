// Package store provides the SQLite-backed schemas and typed accessors for
// cortex's memory engine: memories, knowledge facts, memory links, usage
// records, and the activity log. It mirrors the teacher's single-writer,
// WAL-mode embedded-database convention (see internal/northstar in the
// example pack) rather than introducing an ORM.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"cortex/internal/logging"
)

// DB wraps a memory.db connection with typed accessors.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the memory database at path and applies
// the idempotent schema. WAL mode is required so the orchestrator (writer)
// and cron runners (readers/writers) can coexist.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY under WAL for the
	// process that owns this file, matching the teacher's northstar store.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: migrating %s: %w", path, err)
	}
	logging.Store("opened memory store at %s", path)
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	embedding   BLOB,
	tier        TEXT NOT NULL DEFAULT 'short_term',
	importance  REAL NOT NULL DEFAULT 0.2,
	tags        TEXT NOT NULL DEFAULT '[]',
	source_agent TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	chunk_of    TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL DEFAULT 0,
	access_count INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS knowledge_cache (
	id             TEXT PRIMARY KEY,
	fact           TEXT NOT NULL,
	embedding      BLOB,
	source         TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	verifier       TEXT NOT NULL DEFAULT '',
	verified_at    TEXT NOT NULL,
	confidence     REAL NOT NULL DEFAULT 0.5,
	last_accessed_at TEXT NOT NULL,
	access_count   INTEGER NOT NULL DEFAULT 0,
	metadata       TEXT NOT NULL DEFAULT '{}',
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_confidence ON knowledge_cache(confidence);

CREATE TABLE IF NOT EXISTS memory_links (
	a             TEXT NOT NULL,
	b             TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	strength      REAL NOT NULL DEFAULT 1.0,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (a, b, relation_type)
);
CREATE INDEX IF NOT EXISTS idx_links_a ON memory_links(a);
CREATE INDEX IF NOT EXISTS idx_links_b ON memory_links(b);

CREATE TABLE IF NOT EXISTS usage_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	agent         TEXT NOT NULL,
	model         TEXT NOT NULL,
	provider      TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL DEFAULT 1,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_records(created_at);
CREATE INDEX IF NOT EXISTS idx_usage_agent ON usage_records(agent);

CREATE TABLE IF NOT EXISTS activity_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	agent      TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
`

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	return err
}
