package project

import "strings"

// Digest is a point-in-time snapshot of the task queue across every
// project, used by the morning-brief cron job. It deliberately ignores the
// single-active-project invariant other Store methods enforce — a digest
// reports on everything, not just what's currently active.
type Digest struct {
	CompletedTitles []string
	CompletedCount  int
	QueuedTitles    []string
	QueuedCount     int
	FailedCount     int
}

// BuildDigest summarizes completed, queued, and failed tasks across every
// project. Tasks have no completed_at column, so "completed" is reported as
// a running total rather than a last-24h delta — the caller's cron cadence
// determines how often this snapshot is taken.
func (s *Store) BuildDigest() (Digest, error) {
	var d Digest

	completedRows, err := s.conn.Query(`SELECT title FROM tasks WHERE status = ?`, string(TaskCompleted))
	if err != nil {
		return d, err
	}
	for completedRows.Next() {
		var title string
		if err := completedRows.Scan(&title); err != nil {
			completedRows.Close()
			return d, err
		}
		d.CompletedCount++
		if len(d.CompletedTitles) < 5 {
			d.CompletedTitles = append(d.CompletedTitles, title)
		}
	}
	completedRows.Close()

	queuedRows, err := s.conn.Query(
		`SELECT title FROM tasks WHERE status IN (?, ?) ORDER BY ord ASC`,
		string(TaskPending), string(TaskInProgress),
	)
	if err != nil {
		return d, err
	}
	for queuedRows.Next() {
		var title string
		if err := queuedRows.Scan(&title); err != nil {
			queuedRows.Close()
			return d, err
		}
		d.QueuedCount++
		if len(d.QueuedTitles) < 5 {
			d.QueuedTitles = append(d.QueuedTitles, title)
		}
	}
	queuedRows.Close()

	row := s.conn.QueryRow(`SELECT COUNT(*) FROM tasks WHERE status = ?`, string(TaskFailed))
	if err := row.Scan(&d.FailedCount); err != nil {
		return d, err
	}

	return d, nil
}

// ExistingNames returns the lowercased names of every project and backlog
// idea, used to filter out memory mentions that are already tracked.
func (s *Store) ExistingNames() (map[string]bool, error) {
	existing := map[string]bool{}

	projectRows, err := s.conn.Query(`SELECT name FROM projects`)
	if err != nil {
		return nil, err
	}
	for projectRows.Next() {
		var name string
		if err := projectRows.Scan(&name); err != nil {
			projectRows.Close()
			return nil, err
		}
		existing[strings.ToLower(name)] = true
	}
	projectRows.Close()

	ideaRows, err := s.conn.Query(`SELECT title FROM ideas WHERE status = ?`, string(IdeaBacklog))
	if err != nil {
		return nil, err
	}
	for ideaRows.Next() {
		var title string
		if err := ideaRows.Scan(&title); err != nil {
			ideaRows.Close()
			return nil, err
		}
		existing[strings.ToLower(title)] = true
	}
	ideaRows.Close()

	return existing, nil
}
