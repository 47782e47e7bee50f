package store

import (
	"fmt"
	"time"
)

// RelationType names how two memories relate in the memory_links audit
// trail.
type RelationType string

const (
	// RelationConsolidatedInto marks that memory A was folded into summary
	// memory B during a consolidation pass. These links are never deleted,
	// even after the summary itself ages out, so provenance of any
	// consolidated memory can always be traced back to its sources.
	RelationConsolidatedInto RelationType = "consolidated_into"
	// RelationDuplicateOf marks that A was rejected at ingest as a
	// near-duplicate of existing memory B.
	RelationDuplicateOf RelationType = "duplicate_of"
	// RelationRelatedTo marks that A was stored despite resembling existing
	// memory B closely enough to flag as a near-duplicate at ingest.
	RelationRelatedTo RelationType = "related_to"
	// RelationChunkOf marks that A is one chunk of a larger source document B.
	RelationChunkOf RelationType = "chunk_of"
)

// MemoryLink records a directed relation between two memory IDs.
type MemoryLink struct {
	A            string
	B            string
	RelationType RelationType
	Strength     float64
	CreatedAt    time.Time
}

// InsertLink records a relation between two memories. It is idempotent on
// (a, b, relation_type).
func (db *DB) InsertLink(l *MemoryLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO memory_links (a, b, relation_type, strength, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.A, l.B, string(l.RelationType), l.Strength, l.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: inserting memory link: %w", err)
	}
	return nil
}

// LinksFrom returns every link with the given source memory ID.
func (db *DB) LinksFrom(a string) ([]*MemoryLink, error) {
	return db.queryLinks(`SELECT a, b, relation_type, strength, created_at FROM memory_links WHERE a = ?`, a)
}

// LinksTo returns every link with the given target memory ID — used to trace
// a consolidated summary back to its source memories.
func (db *DB) LinksTo(b string) ([]*MemoryLink, error) {
	return db.queryLinks(`SELECT a, b, relation_type, strength, created_at FROM memory_links WHERE b = ?`, b)
}

func (db *DB) queryLinks(query string, arg string) ([]*MemoryLink, error) {
	rows, err := db.conn.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("store: querying memory links: %w", err)
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		var l MemoryLink
		var relation, createdAt string
		if err := rows.Scan(&l.A, &l.B, &relation, &l.Strength, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scanning memory link: %w", err)
		}
		l.RelationType = RelationType(relation)
		if l.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("store: parsing link created_at: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
