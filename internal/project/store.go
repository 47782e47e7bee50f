// Package project implements the project/feature/task/idea state machine:
// detection heuristics for conversational triggers, the single-active-
// project invariant, dependency-aware task selection, and the completion
// cascade from task to feature to project.
package project

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cortex/internal/logging"
)

// Status enums, one set per entity.
type ProjectStatus string
type FeatureStatus string
type TaskStatus string
type IdeaStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectPaused     ProjectStatus = "paused"

	FeaturePending    FeatureStatus = "pending"
	FeatureInProgress FeatureStatus = "in_progress"
	FeatureCompleted  FeatureStatus = "completed"

	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"

	IdeaBacklog  IdeaStatus = "backlog"
	IdeaPromoted IdeaStatus = "promoted"
	IdeaArchived IdeaStatus = "archived"
)

// terminalTaskStatuses are the task statuses that satisfy a dependency.
var terminalTaskStatuses = map[TaskStatus]bool{
	TaskCompleted: true,
	TaskSkipped:   true,
}

// isTerminalTask reports whether a task in status s satisfies a dependency.
func isTerminalTask(s TaskStatus) bool { return terminalTaskStatuses[s] }

// Store wraps the projects database.
type Store struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	spec        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'planning',
	domain      TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	ord         INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_features_project ON features(project_id);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	feature_id   TEXT NOT NULL DEFAULT '',
	project_id   TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	agent        TEXT NOT NULL DEFAULT 'builder',
	depends_on   TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'pending',
	result       TEXT NOT NULL DEFAULT '',
	ord          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_feature ON tasks(feature_id);

CREATE TABLE IF NOT EXISTS ideas (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	domain      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'backlog',
	created_at  TEXT NOT NULL
);
`

// Open opens (creating if necessary) the projects database at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("project: opening %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("project: migrating %s: %w", path, err)
	}
	logging.Project("opened project store at %s", path)
	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }
