package store

import "time"

// MemoryStats is a point-in-time snapshot of the memory store's size, used
// by the morning-brief cron job.
type MemoryStats struct {
	NewMemories    int
	TotalMemories  int
	KnowledgeCount int
}

// BuildMemoryStats reports counts since cutoff alongside running totals.
func (db *DB) BuildMemoryStats(cutoff time.Time) (MemoryStats, error) {
	var stats MemoryStats

	row := db.conn.QueryRow(`SELECT COUNT(*) FROM memories WHERE created_at >= ?`, cutoff.Format(time.RFC3339Nano))
	if err := row.Scan(&stats.NewMemories); err != nil {
		return stats, err
	}

	row = db.conn.QueryRow(`SELECT COUNT(*) FROM memories`)
	if err := row.Scan(&stats.TotalMemories); err != nil {
		return stats, err
	}

	row = db.conn.QueryRow(`SELECT COUNT(*) FROM knowledge_cache`)
	if err := row.Scan(&stats.KnowledgeCount); err != nil {
		return stats, err
	}

	return stats, nil
}
